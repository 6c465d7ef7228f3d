// Package command implements the slash commands the console delegates:
// venue queries, manual orders, and .env editing.
package command

import (
	"strings"
)

// Command is a parsed slash command line.
type Command struct {
	Name string
	Args []string
	Raw  string
}

// Parse returns the Command when input starts with "/". The name is
// lowercased; Raw keeps everything after the slash untrimmed of case.
func Parse(input string) (Command, bool) {
	trimmed := strings.TrimLeft(input, " \t")
	if !strings.HasPrefix(trimmed, "/") {
		return Command{}, false
	}
	raw := strings.TrimSpace(trimmed[1:])
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Command{Raw: raw}, true
	}
	return Command{
		Name: strings.ToLower(fields[0]),
		Args: fields[1:],
		Raw:  raw,
	}, true
}
