package tagstream

import (
	"strings"

	"github.com/pitline/pitline/schema"
)

const (
	actionsTag = "actions"
	replyTag   = "text"
)

// ReplyGate applies the reply-only display policy to a model response
// stream shaped like <actions>...</actions><text>...</text>. Reply text
// is forwarded incrementally, but only once the action list has
// resolved to REPLY; any other action suppresses display until Reset.
type ReplyGate struct {
	ex        *Extractor
	actions   *Tracker
	reply     *Tracker
	forwarded int
}

// NewReplyGate constructs a gate tracking the actions and text tags.
func NewReplyGate() *ReplyGate {
	actions := NewTracker(actionsTag)
	reply := NewTracker(replyTag)
	return &ReplyGate{
		ex:      NewExtractor(actions, reply),
		actions: actions,
		reply:   reply,
	}
}

// Push feeds a chunk and returns newly displayable reply text, which is
// empty while the gate is withholding output.
func (g *ReplyGate) Push(chunk string) string {
	g.ex.Push(chunk)
	return g.pending()
}

// Actions returns the parsed action list once the actions tag has
// closed. ok is false while the list is still streaming.
func (g *ReplyGate) Actions() (actions []schema.Action, ok bool) {
	if g.actions.State() != Done {
		return nil, false
	}
	return parseActions(g.actions.Text()), true
}

// RawActions returns the verbatim actions tag content once it has
// closed. Callers that need per-action parameters parse this
// themselves; Actions only sees bare action names.
func (g *ReplyGate) RawActions() (string, bool) {
	if g.actions.State() != Done {
		return "", false
	}
	return g.actions.Text(), true
}

// Finalize applies the end-of-stream fallback: full is the complete
// accumulated response text, used when little or no reply streamed
// through the chunk path. It returns any remaining displayable text.
func (g *ReplyGate) Finalize(full string) string {
	g.ex.FinishStream()
	if g.reply.State() == WaitingOpen && strings.Contains(full, "<"+replyTag+">") {
		// The stream ended before the reply tag was consumed
		// (e.g. the response arrived in one non-streamed body).
		g.ex.Reset()
		g.forwarded = 0
		g.ex.Push(full)
		g.ex.FinishStream()
	}
	if g.reply.State() == WaitingOpen && g.actions.State() == WaitingOpen {
		// Untagged response: display it as-is.
		return strings.TrimSpace(full)
	}
	return g.pending()
}

// Reset prepares the gate for a new response.
func (g *ReplyGate) Reset() {
	g.ex.Reset()
	g.forwarded = 0
}

func (g *ReplyGate) pending() string {
	if !g.passThrough() {
		return ""
	}
	text := g.reply.Text()
	if g.forwarded >= len(text) {
		return ""
	}
	out := text[g.forwarded:]
	g.forwarded = len(text)
	return out
}

// passThrough reports whether reply text may be shown: the action list
// must have closed and contain exactly the pass-through action.
func (g *ReplyGate) passThrough() bool {
	actions, ok := g.Actions()
	if !ok {
		return false
	}
	return len(actions) == 1 && actions[0] == schema.ActionReply
}

func parseActions(raw string) []schema.Action {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == ' ' || r == '\t' || r == '\r'
	})
	out := make([]schema.Action, 0, len(fields))
	for _, f := range fields {
		out = append(out, schema.Action(strings.ToUpper(f)))
	}
	return out
}
