// Package tagstream incrementally extracts the content of XML-like
// tagged sections from a chunked text stream. Tag markers may be split
// across any number of chunks; the content of a tag is exposed exactly
// once per occurrence, with at most a close-marker-length delay while
// the tag is still open.
package tagstream

// State is the lifecycle of a tracked tag occurrence.
type State int

const (
	// WaitingOpen means the open marker has not been seen yet.
	WaitingOpen State = iota
	// Accumulating means the open marker was consumed and content is
	// being collected until the close marker appears.
	Accumulating
	// Done means the close marker was consumed; further input is
	// ignored until Reset.
	Done
)

// Tracker follows a single tag name through the stream.
type Tracker struct {
	name  string
	open  string
	close string
	state State
	text  string
}

// NewTracker constructs a tracker for <name>...</name>.
func NewTracker(name string) *Tracker {
	return &Tracker{
		name:  name,
		open:  "<" + name + ">",
		close: "</" + name + ">",
	}
}

// Name returns the tracked tag name.
func (t *Tracker) Name() string { return t.name }

// State returns the tracker's current state.
func (t *Tracker) State() State { return t.state }

// Text returns the content accumulated so far. While Accumulating this
// lags the stream by at most len(close marker) characters; once Done it
// is the complete content between the markers.
func (t *Tracker) Text() string { return t.text }

// Reset discards accumulated text and starts tracking a new occurrence.
func (t *Tracker) Reset() {
	t.state = WaitingOpen
	t.text = ""
}
