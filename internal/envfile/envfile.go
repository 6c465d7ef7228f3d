// Package envfile reads and edits .env files in place: comments, blank
// lines, and entry order survive a round trip, so hand-maintained files
// stay hand-maintainable.
package envfile

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// File is a parsed .env file. Lines holds the raw file lines; values
// are resolved on demand so edits only touch the line they change.
type File struct {
	path  string
	lines []string
}

// Load parses the .env file at path. A missing file yields an empty
// File that Save will create.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{path: path}, nil
		}
		return nil, fmt.Errorf("read env file: %w", err)
	}
	text := strings.TrimSuffix(string(data), "\n")
	f := &File{path: path}
	if text != "" {
		f.lines = strings.Split(text, "\n")
	}
	return f, nil
}

// Get returns the value for key and whether it is set. The last
// assignment wins, matching shell sourcing semantics.
func (f *File) Get(key string) (string, bool) {
	value, found := "", false
	for _, line := range f.lines {
		if k, v, ok := parseLine(line); ok && k == key {
			value, found = v, true
		}
	}
	return value, found
}

// Set updates the last assignment of key in place, or appends a new
// line when the key is absent.
func (f *File) Set(key, value string) {
	last := -1
	for i, line := range f.lines {
		if k, _, ok := parseLine(line); ok && k == key {
			last = i
		}
	}
	entry := key + "=" + quoteIfNeeded(value)
	if last >= 0 {
		f.lines[last] = entry
		return
	}
	f.lines = append(f.lines, entry)
}

// Unset removes every assignment of key, leaving comments intact.
func (f *File) Unset(key string) {
	kept := f.lines[:0]
	for _, line := range f.lines {
		if k, _, ok := parseLine(line); ok && k == key {
			continue
		}
		kept = append(kept, line)
	}
	f.lines = kept
}

// Keys returns the set keys in sorted order.
func (f *File) Keys() []string {
	seen := map[string]bool{}
	for _, line := range f.lines {
		if k, _, ok := parseLine(line); ok {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Save writes the file back with 0600 permissions; .env files carry
// credentials.
func (f *File) Save() error {
	var b strings.Builder
	for _, line := range f.lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(f.path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}
	return nil
}

// parseLine splits a KEY=VALUE line, handling optional "export "
// prefixes and single/double quoted values. Comments and blanks are
// not entries.
func parseLine(line string) (key, value string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	trimmed = strings.TrimPrefix(trimmed, "export ")
	eq := strings.IndexByte(trimmed, '=')
	if eq <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(trimmed[:eq])
	value = strings.TrimSpace(trimmed[eq+1:])
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return key, value, true
}

func quoteIfNeeded(value string) string {
	if strings.ContainsAny(value, " \t#\"'") {
		return `"` + strings.ReplaceAll(value, `"`, `\"`) + `"`
	}
	return value
}
