package eventbus

import (
	"testing"
	"time"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("alice")
	defer cancel()

	bus.Notice("alice", "order filled")

	select {
	case got := <-ch:
		if got.Type != EventNotice {
			t.Fatalf("expected notice event, got %v", got.Type)
		}
		if got.Text != "order filled" {
			t.Fatalf("unexpected payload: %+v", got)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
}

func TestNoticeIsPerUser(t *testing.T) {
	bus := New(nil)
	alice, cancelA := bus.Subscribe("alice")
	defer cancelA()
	bob, cancelB := bus.Subscribe("bob")
	defer cancelB()

	bus.Notice("bob", "for bob only")

	select {
	case <-alice:
		t.Fatalf("alice received bob's event")
	default:
	}
	select {
	case got := <-bob:
		if got.Text != "for bob only" {
			t.Fatalf("unexpected payload: %+v", got)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
}

func TestShutdownReachesAllUsers(t *testing.T) {
	bus := New(nil)
	alice, cancelA := bus.Subscribe("alice")
	defer cancelA()
	bob, cancelB := bus.Subscribe("bob")
	defer cancelB()

	bus.Shutdown("server stopping")

	for name, ch := range map[string]<-chan Event{"alice": alice, "bob": bob} {
		select {
		case got := <-ch:
			if got.Type != EventShutdown {
				t.Fatalf("%s: expected shutdown, got %v", name, got.Type)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("%s: timed out", name)
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("alice")
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
}

func TestPublishRacingUnsubscribe(t *testing.T) {
	bus := New(nil)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				bus.Notice("alice", "tick")
			}
		}
	}()
	for i := 0; i < 200; i++ {
		ch, cancel := bus.Subscribe("alice")
		// Drain a little so the publisher's sends can succeed
		// right up until cancel closes the channel.
		select {
		case <-ch:
		default:
		}
		cancel()
	}
	close(stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publisher did not finish")
	}
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	_, cancel := bus.Subscribe("alice")
	defer cancel()

	var sendCh chan Event
	bus.mu.Lock()
	for ch := range bus.subs["alice"] {
		sendCh = ch
		break
	}
	bus.mu.Unlock()
	if sendCh == nil {
		t.Fatalf("expected subscriber channel")
	}
	sendCh <- Event{Type: EventNotice}
	done := make(chan struct{})
	go func() {
		bus.Notice("alice", "overflow")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("publish blocked on full channel")
	}
}
