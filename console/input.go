package console

import (
	"unicode"
	"unicode/utf8"
)

type keyKind int

const (
	keyRune keyKind = iota
	keyEnter
	keyBackspace
	keyDelete
	keyLeft
	keyRight
	keyHome
	keyEnd
	keyPageUp
	keyPageDown
	keyCtrlA
	keyCtrlE
	keyCtrlW
	keyCtrlD
	keyCtrlC
	keyCtrlL
	keyTab
	keyShiftTab
	keyAltB
	keyAltF
	keyUp
	keyDown
	keyCtrlJ
	keyCtrlU
	keyCtrlK
)

type key struct {
	kind keyKind
	r    rune
}

// maxPending bounds the carry-over between Feed calls: at most one
// unfinished escape sequence or UTF-8 rune. It must cover a split SGR
// mouse report minus its final byte (17 bytes, see wheelMaxPending);
// anything longer is garbage and gets dropped rather than accumulated.
const maxPending = wheelMaxPending

// Decoder turns raw terminal chunks into key events and wheel scroll
// deltas. A sequence split across chunks is carried in pending and
// finished on the next Feed. Printable runs pass through Scrub before
// they become rune keys, so mouse residue whose ESC was already
// consumed never lands in the editor.
type Decoder struct {
	pending   string
	lastWasCR bool
}

// Feed decodes one chunk. Keys come back in input order; scroll is the
// net wheel delta seen in the chunk (positive = up).
func (d *Decoder) Feed(chunk string) (keys []key, scroll int) {
	data := d.pending + chunk
	d.pending = ""
	// Wheel deltas come from DecodeWheel over the same bytes; the key
	// loop below consumes mouse reports without emitting. A split
	// report's prefix is carried by the key loop, so the next Feed
	// hands the completed report to DecodeWheel exactly once.
	scroll, _ = DecodeWheel(data)
	i := 0
	for i < len(data) {
		b := data[i]
		if d.lastWasCR {
			d.lastWasCR = false
			if b == '\n' {
				i++
				continue
			}
		}
		switch {
		case b == 0x1b:
			if n, _, complete := parseSGRReport(data[i:]); complete {
				i += n
				continue
			} else if n > 0 && i+n == len(data) {
				d.carry(data[i:])
				return keys, scroll
			}
			n, k, emit, complete := decodeEscape(data[i:])
			if !complete {
				d.carry(data[i:])
				return keys, scroll
			}
			if emit {
				keys = append(keys, k)
			}
			i += n
		case b >= 0x20 && b != 0x7f:
			n := printableRun(data[i:])
			text := data[i : i+n]
			i += n
			if i == len(data) {
				if tail := partialRuneLen(text); tail > 0 {
					d.carry(text[len(text)-tail:])
					text = text[:len(text)-tail]
				}
			}
			for _, r := range Scrub(text) {
				keys = append(keys, key{kind: keyRune, r: r})
			}
		default:
			if k, ok := controlKey(b); ok {
				if k.kind == keyEnter {
					d.lastWasCR = true
				}
				keys = append(keys, k)
			}
			i++
		}
	}
	return keys, scroll
}

func (d *Decoder) carry(tail string) {
	if len(tail) <= maxPending {
		d.pending = tail
	}
}

func controlKey(b byte) (key, bool) {
	switch b {
	case '\r':
		return key{kind: keyEnter}, true
	case '\n':
		return key{kind: keyCtrlJ}, true
	case 0x7f, 0x08:
		return key{kind: keyBackspace}, true
	case 0x01:
		return key{kind: keyCtrlA}, true
	case 0x05:
		return key{kind: keyCtrlE}, true
	case 0x15:
		return key{kind: keyCtrlU}, true
	case 0x0b:
		return key{kind: keyCtrlK}, true
	case 0x17:
		return key{kind: keyCtrlW}, true
	case 0x04:
		return key{kind: keyCtrlD}, true
	case 0x03:
		return key{kind: keyCtrlC}, true
	case 0x09:
		return key{kind: keyTab}, true
	case 0x0c:
		return key{kind: keyCtrlL}, true
	}
	return key{}, false
}

// decodeEscape parses a non-mouse escape sequence at the start of s
// (s[0] is ESC). complete=false means the sequence may still finish in
// a later chunk. emit=false with complete=true consumes a sequence we
// recognize but do not map to a key.
func decodeEscape(s string) (n int, k key, emit, complete bool) {
	if len(s) < 2 {
		return 0, key{}, false, false
	}
	switch s[1] {
	case '[':
		return decodeCSI(s)
	case 'O':
		if len(s) < 3 {
			return 0, key{}, false, false
		}
		switch s[2] {
		case 'H':
			return 3, key{kind: keyHome}, true, true
		case 'F':
			return 3, key{kind: keyEnd}, true, true
		}
		return 3, key{}, false, true
	case 'b', 'B':
		return 2, key{kind: keyAltB}, true, true
	case 'f', 'F':
		return 2, key{kind: keyAltF}, true, true
	}
	// Unknown alt chord: swallow ESC plus one byte.
	return 2, key{}, false, true
}

func decodeCSI(s string) (n int, k key, emit, complete bool) {
	if len(s) < 3 {
		return 0, key{}, false, false
	}
	if s[2] == 'M' {
		// X10 mouse report: three raw bytes follow.
		if len(s) < 6 {
			return 0, key{}, false, false
		}
		return 6, key{}, false, true
	}
	j := 2
	for {
		if j >= len(s) {
			if j-2 > 8 {
				return j, key{}, false, true // runaway, drop it
			}
			return 0, key{}, false, false
		}
		b := s[j]
		j++
		if b == '~' || unicode.IsLetter(rune(b)) {
			break
		}
		if j-2 > 8 {
			return j, key{}, false, true
		}
	}
	switch s[2:j] {
	case "A":
		k = key{kind: keyUp}
	case "B":
		k = key{kind: keyDown}
	case "C":
		k = key{kind: keyRight}
	case "D":
		k = key{kind: keyLeft}
	case "H":
		k = key{kind: keyHome}
	case "F":
		k = key{kind: keyEnd}
	case "5~":
		k = key{kind: keyPageUp}
	case "6~":
		k = key{kind: keyPageDown}
	case "3~":
		k = key{kind: keyDelete}
	case "Z", "1;2Z":
		k = key{kind: keyShiftTab}
	default:
		return j, key{}, false, true
	}
	return j, k, true, true
}

// printableRun returns the length of the run of bytes at the start of s
// that are neither C0 controls, DEL, nor ESC.
func printableRun(s string) int {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b < 0x20 || b == 0x7f {
			return i
		}
	}
	return len(s)
}

// partialRuneLen returns the length of an incomplete UTF-8 rune at the
// end of s, or 0 when s ends on a rune boundary.
func partialRuneLen(s string) int {
	for back := 1; back <= utf8.UTFMax && back <= len(s); back++ {
		b := s[len(s)-back]
		if b < 0x80 {
			return 0
		}
		if b >= 0xc0 {
			// Lead byte: partial unless the rune is fully present.
			if r, size := utf8.DecodeRuneInString(s[len(s)-back:]); r != utf8.RuneError && size == back {
				return 0
			}
			return back
		}
	}
	return 0
}
