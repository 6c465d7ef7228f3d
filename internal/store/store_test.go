package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pitline/pitline/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "pitline.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	msgs := []schema.ChatMessage{
		{Role: schema.RoleUser, Content: "what is BTC at?", Time: base},
		{Role: schema.RoleAssistant, Content: "BTC-USDT is at 65000", Time: base.Add(time.Second)},
	}
	for _, m := range msgs {
		if err := s.SaveMessage(ctx, "alice", m); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}

	loaded, err := s.Messages(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("len = %d", len(loaded))
	}
	if loaded[0].Content != msgs[0].Content || loaded[0].Role != schema.RoleUser {
		t.Fatalf("first = %+v", loaded[0])
	}
	if loaded[1].Content != msgs[1].Content {
		t.Fatalf("second = %+v", loaded[1])
	}
	if !loaded[0].Time.Before(loaded[1].Time) {
		t.Fatal("messages not chronological")
	}
}

func TestMessagesLimitKeepsNewest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		msg := schema.ChatMessage{Role: schema.RoleUser, Content: string(rune('a' + i)), Time: base.Add(time.Duration(i) * time.Second)}
		if err := s.SaveMessage(ctx, "alice", msg); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}
	loaded, err := s.Messages(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(loaded) != 2 || loaded[0].Content != "d" || loaded[1].Content != "e" {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestMessagesArePerUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SaveMessage(ctx, "alice", schema.ChatMessage{Role: schema.RoleUser, Content: "mine", Time: time.Now()}); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	loaded, err := s.Messages(ctx, "bob", 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("bob sees alice's messages: %+v", loaded)
	}
}

func TestClearMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SaveMessage(ctx, "alice", schema.ChatMessage{Role: schema.RoleUser, Content: "x", Time: time.Now()}); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	if err := s.ClearMessages(ctx, "alice"); err != nil {
		t.Fatalf("ClearMessages: %v", err)
	}
	loaded, err := s.Messages(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("messages survived clear: %+v", loaded)
	}
}

func TestRecordAndListActions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	recs := []schema.ActionRecord{
		{Action: schema.ActionBalances, Params: "", Result: "USDT 10000", Time: time.Now().UTC()},
		{Action: schema.ActionPlaceOrder, Params: `{"symbol":"BTC-USDT"}`, Result: "open", Time: time.Now().UTC()},
	}
	for _, rec := range recs {
		if err := s.RecordAction(ctx, "alice", rec); err != nil {
			t.Fatalf("RecordAction: %v", err)
		}
	}
	loaded, err := s.Actions(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("Actions: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("len = %d", len(loaded))
	}
	if loaded[0].Action != schema.ActionPlaceOrder {
		t.Fatalf("newest first expected, got %+v", loaded[0])
	}
}
