// Package eventbus fans out UI-facing events to per-user session
// subscribers. Publishing never blocks; a subscriber that cannot keep
// up loses events rather than stalling the publisher.
package eventbus

import (
	"context"
	"sync"

	"github.com/pitline/pitline/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventNotice carries a system line for the transcript (venue
	// status changes, background action results).
	EventNotice EventType = "notice"
	// EventShutdown tells sessions the server is going away.
	EventShutdown EventType = "shutdown"
)

// Event is delivered to every session a user has open.
type Event struct {
	Type EventType
	Text string
}

// Bus fanouts events to per-user subscribers.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.UserID]map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.UserID]map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for the user and returns a channel + cancel.
func (b *Bus) Subscribe(userID schema.UserID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	userSubs := b.subs[userID]
	if userSubs == nil {
		userSubs = make(map[chan Event]struct{})
		b.subs[userID] = userSubs
	}
	userSubs[ch] = struct{}{}
	count := len(userSubs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.With("user", userID).Debug("eventbus subscribe", "subs", count)
	}
	return ch, func() {
		b.mu.Lock()
		if subs := b.subs[userID]; subs != nil {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subs, userID)
			}
		}
		// Close under the lock so publish can never send on a
		// closed channel.
		close(ch)
		b.mu.Unlock()
		if b.log != nil {
			b.log.With("user", userID).Debug("eventbus unsubscribe")
		}
	}
}

// Notice publishes a system line to all of the user's sessions.
func (b *Bus) Notice(userID schema.UserID, text string) {
	b.publish(userID, Event{Type: EventNotice, Text: text})
}

// Shutdown tells every session of every user to wind down.
func (b *Bus) Shutdown(text string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	users := make([]schema.UserID, 0, len(b.subs))
	for userID := range b.subs {
		users = append(users, userID)
	}
	b.mu.Unlock()
	for _, userID := range users {
		b.publish(userID, Event{Type: EventShutdown, Text: text})
	}
}

func (b *Bus) publish(userID schema.UserID, event Event) {
	if b == nil {
		return
	}
	// Sends are non-blocking, so they happen under the same lock
	// that guards unsubscribe's close.
	b.mu.Lock()
	dropped := 0
	for sub := range b.subs[userID] {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 && b.log != nil {
		b.log.With("user", userID).Trace("eventbus dropped", "count", dropped)
	}
}
