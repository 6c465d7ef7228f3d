package console

import "slices"

// lineEditor is the prompt's rune buffer with a cursor. Multi-line
// values are allowed (Ctrl-J inserts a newline); vertical movement
// keeps the column where it can.
type lineEditor struct {
	buf    []rune
	cursor int
}

func (e *lineEditor) String() string { return string(e.buf) }

func (e *lineEditor) Len() int { return len(e.buf) }

func (e *lineEditor) Clear() {
	e.buf = nil
	e.cursor = 0
}

func (e *lineEditor) SetString(value string) {
	if value == "" {
		e.Clear()
		return
	}
	e.buf = []rune(value)
	e.cursor = len(e.buf)
}

func (e *lineEditor) InsertRune(r rune) {
	e.cursor = min(max(e.cursor, 0), len(e.buf))
	e.buf = slices.Insert(e.buf, e.cursor, r)
	e.cursor++
}

func (e *lineEditor) InsertString(s string) {
	for _, r := range s {
		e.InsertRune(r)
	}
}

func (e *lineEditor) Backspace() {
	if e.cursor <= 0 {
		return
	}
	e.buf = slices.Delete(e.buf, e.cursor-1, e.cursor)
	e.cursor--
}

func (e *lineEditor) Delete() {
	if e.cursor < 0 || e.cursor >= len(e.buf) {
		return
	}
	e.buf = slices.Delete(e.buf, e.cursor, e.cursor+1)
}

func (e *lineEditor) MoveLeft() {
	if e.cursor > 0 {
		e.cursor--
	}
}

func (e *lineEditor) MoveRight() {
	if e.cursor < len(e.buf) {
		e.cursor++
	}
}

func (e *lineEditor) MoveStart() { e.cursor = e.lineStart() }

func (e *lineEditor) MoveEnd() { e.cursor = e.lineEnd() }

func (e *lineEditor) MoveWordLeft() {
	i := e.cursor
	for i > 0 && isWordSep(e.buf[i-1]) {
		i--
	}
	for i > 0 && !isWordSep(e.buf[i-1]) {
		i--
	}
	e.cursor = i
}

func (e *lineEditor) MoveWordRight() {
	i := e.cursor
	for i < len(e.buf) && isWordSep(e.buf[i]) {
		i++
	}
	for i < len(e.buf) && !isWordSep(e.buf[i]) {
		i++
	}
	e.cursor = i
}

func (e *lineEditor) DeleteWordBackward() {
	if e.cursor <= 0 {
		return
	}
	start := e.cursor
	for start > 0 && isWordSep(e.buf[start-1]) {
		start--
	}
	for start > 0 && !isWordSep(e.buf[start-1]) {
		start--
	}
	e.buf = slices.Delete(e.buf, start, e.cursor)
	e.cursor = start
}

func (e *lineEditor) MoveUp() bool {
	start := e.lineStart()
	if start == 0 {
		return false
	}
	col := e.cursor - start
	prevStart := 0
	for i := start - 2; i >= 0; i-- {
		if e.buf[i] == '\n' {
			prevStart = i + 1
			break
		}
	}
	e.cursor = prevStart + min(col, start-1-prevStart)
	return true
}

func (e *lineEditor) MoveDown() bool {
	end := e.lineEnd()
	if end >= len(e.buf) {
		return false
	}
	col := e.cursor - e.lineStart()
	nextStart := end + 1
	nextEnd := len(e.buf)
	for i := nextStart; i < len(e.buf); i++ {
		if e.buf[i] == '\n' {
			nextEnd = i
			break
		}
	}
	e.cursor = nextStart + min(col, nextEnd-nextStart)
	return true
}

func (e *lineEditor) KillLineStart() {
	start := e.lineStart()
	if start >= e.cursor {
		return
	}
	e.buf = slices.Delete(e.buf, start, e.cursor)
	e.cursor = start
}

func (e *lineEditor) KillLineEnd() {
	end := e.lineEnd()
	if end <= e.cursor {
		return
	}
	e.buf = slices.Delete(e.buf, e.cursor, end)
}

func (e *lineEditor) lineStart() int {
	for i := e.cursor - 1; i >= 0; i-- {
		if e.buf[i] == '\n' {
			return i + 1
		}
	}
	return 0
}

func (e *lineEditor) lineEnd() int {
	for i := e.cursor; i < len(e.buf); i++ {
		if e.buf[i] == '\n' {
			return i
		}
	}
	return len(e.buf)
}

func isWordSep(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n'
}
