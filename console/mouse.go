package console

import "strings"

// wheelMaxPending bounds how much trailing input DecodeWheel may hold
// back while waiting for the rest of a split mouse report. The longest
// report is 18 bytes ("\x1b[<" + three fields of up to four digits +
// two separators + the final byte), so a split prefix is at most 17.
const wheelMaxPending = 17

// maxSGRFieldDigits caps one button/coordinate field. Terminals never
// report five-digit values; anything longer is not a mouse report and
// must not be buffered waiting for a terminator.
const maxSGRFieldDigits = 4

// DecodeWheel extracts SGR mouse wheel events from chunk and returns
// the net scroll delta (positive = up, one line per click) plus any
// trailing bytes that could still be the start of a report split across
// chunks. Callers prepend remaining to the next chunk. Complete mouse
// reports that are not wheel events are left alone; Scrub disposes of
// them before anything reaches the line editor.
func DecodeWheel(chunk string) (delta int, remaining string) {
	i := 0
	for i < len(chunk) {
		esc := strings.IndexByte(chunk[i:], 0x1b)
		if esc < 0 {
			return delta, ""
		}
		i += esc
		n, btn, complete := parseSGRReport(chunk[i:])
		if complete {
			delta += wheelDelta(btn)
			i += n
			continue
		}
		if n > 0 {
			// Proper prefix of a report at end of chunk.
			rem := chunk[i:]
			if len(rem) > wheelMaxPending {
				return delta, ""
			}
			return delta, rem
		}
		// ESC that cannot start a mouse report; leave it for the
		// scrubber and keep scanning past it.
		i++
	}
	return delta, ""
}

// wheelDelta maps an SGR button code to a scroll contribution: 64 and
// 96 scroll up, 65 and 97 scroll down, everything else is not a wheel.
func wheelDelta(btn int) int {
	switch btn {
	case 64, 96:
		return 1
	case 65, 97:
		return -1
	}
	return 0
}

// parseSGRReport matches ESC [ < btn ; col ; row (M|m) at the start of
// s. It returns the matched length and button code when the report is
// complete, or n>0,complete=false when s is a proper prefix of one.
func parseSGRReport(s string) (n, btn int, complete bool) {
	const intro = "\x1b[<"
	if len(s) < len(intro) {
		if strings.HasPrefix(intro, s) {
			return len(s), 0, false
		}
		return 0, 0, false
	}
	if !strings.HasPrefix(s, intro) {
		return 0, 0, false
	}
	j := len(intro)
	for field := 0; field < 3; field++ {
		v := 0
		start := j
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			if j-start == maxSGRFieldDigits {
				return 0, 0, false
			}
			v = v*10 + int(s[j]-'0')
			j++
		}
		if j == start {
			if j == len(s) {
				return j, 0, false
			}
			return 0, 0, false
		}
		if field == 0 {
			btn = v
		}
		if field < 2 {
			if j == len(s) {
				return j, 0, false
			}
			if s[j] != ';' {
				return 0, 0, false
			}
			j++
		}
	}
	if j == len(s) {
		return j, 0, false
	}
	switch s[j] {
	case 'M', 'm':
		return j + 1, btn, true
	}
	return 0, 0, false
}
