package console

import "strings"

// Wrap breaks text into display rows no wider than width runes,
// breaking at spaces where possible and hard-splitting words longer
// than the width. Existing newlines are respected. Empty input yields a
// single empty row so blank lines keep their height in the transcript.
// A non-positive width disables wrapping entirely.
func Wrap(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}
	var rows []string
	for _, line := range strings.Split(text, "\n") {
		rows = append(rows, wrapLine(line, width)...)
	}
	return rows
}

func wrapLine(line string, width int) []string {
	runes := []rune(line)
	if len(runes) <= width {
		return []string{line}
	}
	var rows []string
	cur := make([]rune, 0, width)
	curWidth := func() int { return len(cur) }
	flush := func() {
		rows = append(rows, string(cur))
		cur = cur[:0]
	}
	for _, word := range splitWords(runes) {
		if len(word) > width {
			// Hard split into width-sized fragments; the last fragment
			// stays open so following words can join it.
			if curWidth() > 0 {
				flush()
			}
			for len(word) > width {
				rows = append(rows, string(word[:width]))
				word = word[width:]
			}
			cur = append(cur, word...)
			continue
		}
		needed := len(word)
		if curWidth() > 0 {
			needed++ // joining space
		}
		if curWidth()+needed > width {
			flush()
		}
		if curWidth() > 0 {
			cur = append(cur, ' ')
		}
		cur = append(cur, word...)
	}
	flush()
	return rows
}

// splitWords splits on single spaces, preserving empty words so runs of
// spaces survive wrapping as far as width allows.
func splitWords(runes []rune) [][]rune {
	var words [][]rune
	start := 0
	for i, r := range runes {
		if r == ' ' {
			words = append(words, runes[start:i])
			start = i + 1
		}
	}
	return append(words, runes[start:])
}
