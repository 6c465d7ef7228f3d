package tagstream

import "strings"

// Extractor owns the shared stream buffer and runs a single tokenizing
// pass per Push, dispatching extracted spans to the registered trackers.
// Centralized consumption keeps one tag's open marker from being
// swallowed by another tracker's buffer advance, which would otherwise
// make extraction depend on tracker registration order.
type Extractor struct {
	buf      string
	trackers []*Tracker
	active   *Tracker
}

// NewExtractor registers the trackers that share one stream.
func NewExtractor(trackers ...*Tracker) *Extractor {
	return &Extractor{trackers: trackers}
}

// Tracker returns the registered tracker for name, or nil.
func (e *Extractor) Tracker(name string) *Tracker {
	for _, t := range e.trackers {
		if t.name == name {
			return t
		}
	}
	return nil
}

// Push appends a chunk to the stream and advances every tracker.
func (e *Extractor) Push(chunk string) {
	if chunk == "" {
		return
	}
	e.buf += chunk
	e.process()
}

// Reset clears the stream buffer and returns every tracker to
// WaitingOpen, ready for a new response.
func (e *Extractor) Reset() {
	e.buf = ""
	e.active = nil
	for _, t := range e.trackers {
		t.Reset()
	}
}

// FinishStream marks end of input. A tracker still accumulating absorbs
// the withheld tail and completes; without a close marker the end of
// the stream is the only completion signal left.
func (e *Extractor) FinishStream() {
	if e.active == nil {
		return
	}
	e.active.text += e.buf
	e.active.state = Done
	e.active = nil
	e.buf = ""
}

func (e *Extractor) process() {
	for {
		if e.active == nil {
			if !e.openNext() {
				return
			}
			continue
		}
		t := e.active
		if idx := strings.Index(e.buf, t.close); idx >= 0 {
			t.text += e.buf[:idx]
			e.buf = e.buf[idx+len(t.close):]
			t.state = Done
			e.active = nil
			continue
		}
		// Withhold a close-marker-length suffix so a marker split
		// across chunks never leaks into the exposed text.
		if keep := len(t.close); len(e.buf) > keep {
			t.text += e.buf[:len(e.buf)-keep]
			e.buf = e.buf[len(e.buf)-keep:]
		}
		return
	}
}

// openNext consumes through the earliest open marker of any waiting
// tracker. When no marker is present the buffer is trimmed to the
// longest suffix that could still begin one, so it stays bounded while
// the stream emits untagged noise.
func (e *Extractor) openNext() bool {
	best := -1
	var found *Tracker
	for _, t := range e.trackers {
		if t.state != WaitingOpen {
			continue
		}
		if idx := strings.Index(e.buf, t.open); idx >= 0 && (best < 0 || idx < best) {
			best = idx
			found = t
		}
	}
	if found == nil {
		e.trimToMarkerPrefix()
		return false
	}
	e.buf = e.buf[best+len(found.open):]
	found.state = Accumulating
	e.active = found
	return true
}

func (e *Extractor) trimToMarkerPrefix() {
	keep := 0
	for _, t := range e.trackers {
		if t.state != WaitingOpen {
			continue
		}
		for n := min(len(t.open)-1, len(e.buf)); n > keep; n-- {
			if strings.HasSuffix(e.buf, t.open[:n]) {
				keep = n
				break
			}
		}
	}
	e.buf = e.buf[len(e.buf)-keep:]
}
