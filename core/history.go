package core

import "strings"

const defaultHistoryMax = 200

// History keeps submitted prompts for up/down recall. Blank entries and
// immediate duplicates are skipped; the buffer is bounded.
type History struct {
	entries []string
	max     int
}

// NewHistory constructs a history buffer; max <= 0 applies the default.
func NewHistory(max int) *History {
	if max <= 0 {
		max = defaultHistoryMax
	}
	return &History{max: max}
}

// NewHistoryFrom restores persisted entries, keeping only the newest max.
func NewHistoryFrom(entries []string, max int) *History {
	h := NewHistory(max)
	if len(entries) > h.max {
		entries = entries[len(entries)-h.max:]
	}
	h.entries = append([]string(nil), entries...)
	return h
}

// Append records an entry. It reports whether the entry was added.
func (h *History) Append(entry string) bool {
	if strings.TrimSpace(entry) == "" {
		return false
	}
	if len(h.entries) > 0 && h.entries[len(h.entries)-1] == entry {
		return false
	}
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
	return true
}

// Entries returns a copy of the stored entries, oldest first.
func (h *History) Entries() []string {
	return append([]string(nil), h.entries...)
}

// Len returns the number of stored entries.
func (h *History) Len() int { return len(h.entries) }
