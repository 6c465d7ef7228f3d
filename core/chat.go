package core

import (
	"fmt"
	"time"

	"github.com/pitline/pitline/schema"
)

// ChatLog is the append-only transcript of a session. Only the content
// of the streaming assistant message is mutated in place; the sequence
// itself is never reordered and only Clear removes entries. The log has
// a single writer (the session event loop) so it carries no lock.
type ChatLog struct {
	msgs   []schema.ChatMessage
	nextID schema.MessageID
	now    func() time.Time
}

// NewChatLog constructs an empty transcript.
func NewChatLog() *ChatLog {
	return &ChatLog{nextID: 1, now: time.Now}
}

// Append adds a message and returns its id.
func (l *ChatLog) Append(role schema.Role, content string) schema.MessageID {
	id := l.nextID
	l.nextID++
	l.msgs = append(l.msgs, schema.ChatMessage{
		ID:      id,
		Role:    role,
		Content: content,
		Time:    l.now(),
	})
	return id
}

// AppendSystemf adds a formatted system/log message.
func (l *ChatLog) AppendSystemf(format string, args ...any) schema.MessageID {
	return l.Append(schema.RoleSystem, fmt.Sprintf(format, args...))
}

// AppendContent appends delta to the message with the given id. Used for
// streamed partial updates of the active assistant message.
func (l *ChatLog) AppendContent(id schema.MessageID, delta string) bool {
	if delta == "" {
		return false
	}
	for i := range l.msgs {
		if l.msgs[i].ID == id {
			l.msgs[i].Content += delta
			return true
		}
	}
	return false
}

// SetContent replaces the content of the message with the given id.
func (l *ChatLog) SetContent(id schema.MessageID, content string) bool {
	for i := range l.msgs {
		if l.msgs[i].ID == id {
			l.msgs[i].Content = content
			return true
		}
	}
	return false
}

// Remove deletes the message with the given id. Used to drop an empty
// assistant placeholder after a failed or suppressed reply.
func (l *ChatLog) Remove(id schema.MessageID) bool {
	for i := range l.msgs {
		if l.msgs[i].ID == id {
			l.msgs = append(l.msgs[:i], l.msgs[i+1:]...)
			return true
		}
	}
	return false
}

// Messages returns a copy of the transcript.
func (l *ChatLog) Messages() []schema.ChatMessage {
	out := make([]schema.ChatMessage, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// Len returns the number of messages.
func (l *ChatLog) Len() int { return len(l.msgs) }

// Clear empties the transcript.
func (l *ChatLog) Clear() {
	l.msgs = nil
}

// Restore replaces the transcript with previously persisted messages,
// keeping the id counter ahead of the restored entries.
func (l *ChatLog) Restore(msgs []schema.ChatMessage) {
	l.msgs = append([]schema.ChatMessage(nil), msgs...)
	l.nextID = 1
	for _, m := range msgs {
		if m.ID >= l.nextID {
			l.nextID = m.ID + 1
		}
	}
}
