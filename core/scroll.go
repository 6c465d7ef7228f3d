// Package core holds the transcript model and the scroll-window math
// shared by every console transport.
package core

// WindowSpec is the resolved visible slice of a line sequence.
type WindowSpec struct {
	Offset int // effective offset after clamping
	Start  int // first visible line index
	End    int // one past the last visible line index
}

// Window selects the visible sub-range of totalLines for a viewport of
// viewportHeight lines. Offset counts lines back from the bottom of the
// content; offset 0 always shows the last viewportHeight lines. Inputs
// outside the valid domain clamp instead of erroring: a zero or negative
// viewport is a normal transient state during resize.
func Window(totalLines, viewportHeight, requestedOffset int) WindowSpec {
	if totalLines < 0 {
		totalLines = 0
	}
	if viewportHeight < 0 {
		viewportHeight = 0
	}
	offset := clamp(requestedOffset, 0, maxScroll(totalLines, viewportHeight))
	start := totalLines - viewportHeight - offset
	if start < 0 {
		start = 0
	}
	end := start + viewportHeight
	if end > totalLines {
		end = totalLines
	}
	return WindowSpec{Offset: offset, Start: start, End: end}
}

// ScrollState tracks a panel's offset from the bottom of its content.
// It is owned by the single event loop driving the panel.
type ScrollState struct {
	offset int
}

// Offset returns the current offset in lines from the bottom.
func (s *ScrollState) Offset() int { return s.offset }

// AtBottom reports whether the panel is pinned to the newest content.
func (s *ScrollState) AtBottom() bool { return s.offset == 0 }

// Scroll moves the view by delta lines (positive = older content) and
// clamps against the current content size.
func (s *ScrollState) Scroll(delta, totalLines, viewportHeight int) {
	s.offset = clamp(s.offset+delta, 0, maxScroll(totalLines, viewportHeight))
}

// Anchor keeps the view fixed on the same content when added lines are
// appended below it. A panel at the bottom stays at the bottom.
func (s *ScrollState) Anchor(added int) {
	if s.offset > 0 && added > 0 {
		s.offset += added
	}
}

// Reset returns the view to the bottom.
func (s *ScrollState) Reset() { s.offset = 0 }

func maxScroll(totalLines, viewportHeight int) int {
	if totalLines <= viewportHeight {
		return 0
	}
	return totalLines - viewportHeight
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
