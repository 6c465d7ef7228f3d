// Package console implements the interactive terminal front-end: raw
// input decoding, transcript rendering, and the session event loop. It
// is transport-agnostic; cmd/pitline drives it over a local tty and
// sshserver drives it over an SSH channel.
package console

import "strings"

// Scrub removes terminal control sequences and stray control bytes from
// text headed for the input field, leaving printable content intact.
// CRLF and bare CR are normalized to LF first; tab and newline survive
// so multi-paragraph pastes do. The function is pure and idempotent.
//
// Escape-stripped partial mouse forms ("[<65;10;5M" with no leading
// ESC) are scrubbed too, so a report split across chunks leaves no
// residue. A literal paste that happens to look like one is eaten as
// well; that trade-off is inherited from the design, not an accident.
func Scrub(text string) string {
	text = normalizeNewlines(text)
	// Removing a sequence can splice its neighbors into a fresh
	// stripped-partial form ("[" + removed CSI + "<1;2;3M"), so
	// scrub repeats until the text stops changing. Every pass only
	// deletes bytes, so this terminates.
	for {
		out := scrubPass(text)
		if out == text {
			return out
		}
		text = out
	}
}

func scrubPass(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		c := text[i]
		if c == 0x1b {
			i = skipEscape(text, i+1)
			continue
		}
		if c == '[' {
			if n := strippedMouseLen(text, i); n > 0 {
				i += n
				continue
			}
		}
		if c == '\t' || c == '\n' {
			b.WriteByte(c)
			i++
			continue
		}
		if c < 0x20 || c == 0x7f {
			i++
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

func normalizeNewlines(text string) string {
	if !strings.ContainsRune(text, '\r') {
		return text
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// skipEscape consumes a sequence starting after an ESC byte at i-1 and
// returns the index of the first byte past it. Unterminated sequences
// consume to end of input.
func skipEscape(text string, i int) int {
	if i >= len(text) {
		return i
	}
	switch text[i] {
	case '[':
		return skipCSI(text, i+1)
	case ']':
		return skipOSC(text, i+1)
	default:
		// Bare ESC: drop the escape byte only.
		return i
	}
}

// skipCSI consumes CSI parameter/intermediate bytes through the final
// byte. An X10 mouse report (CSI M) is followed by three raw bytes.
func skipCSI(text string, i int) int {
	if i < len(text) && text[i] == 'M' {
		return min(i+1+3, len(text))
	}
	for i < len(text) {
		b := text[i]
		if b >= 0x40 && b <= 0x7e {
			return i + 1
		}
		i++
	}
	return i
}

func skipOSC(text string, i int) int {
	for i < len(text) {
		switch text[i] {
		case 0x07:
			return i + 1
		case 0x1b:
			if i+1 < len(text) && text[i+1] == '\\' {
				return i + 2
			}
		}
		i++
	}
	return i
}

// strippedMouseLen matches an escape-stripped partial mouse report at
// text[i] ('['): "[<btn;col;rowM", "[btn;col;rowM" (trailing m or M),
// or the X10 form "[M" plus three raw bytes. Returns the matched length
// or 0.
func strippedMouseLen(text string, i int) int {
	j := i + 1
	if j < len(text) && text[j] == 'M' {
		if j+4 <= len(text) {
			return j + 4 - i
		}
		return 0
	}
	if j < len(text) && text[j] == '<' {
		j++
	}
	for field := 0; field < 3; field++ {
		start := j
		for j < len(text) && text[j] >= '0' && text[j] <= '9' {
			j++
		}
		if j == start {
			return 0
		}
		if field < 2 {
			if j >= len(text) || text[j] != ';' {
				return 0
			}
			j++
		}
	}
	if j < len(text) && (text[j] == 'm' || text[j] == 'M') {
		return j + 1 - i
	}
	return 0
}
