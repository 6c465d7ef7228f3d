package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pitline/pitline/console"
	"github.com/pitline/pitline/internal/appconfig"
	"github.com/pitline/pitline/internal/envfile"
	"github.com/pitline/pitline/internal/store"
	"github.com/pitline/pitline/schema"
)

func testEnv(t *testing.T, pairs map[string]string) *envfile.File {
	t.Helper()
	env, err := envfile.Load(filepath.Join(t.TempDir(), ".env"))
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	for key, value := range pairs {
		env.Set(key, value)
	}
	return env
}

func TestBuildVenueSim(t *testing.T) {
	cfg := appconfig.Config{Venue: appconfig.VenueConfig{Kind: "sim"}}
	v, err := buildVenue(cfg, testEnv(t, nil))
	if err != nil {
		t.Fatalf("buildVenue: %v", err)
	}
	if v.Name() != "sim" {
		t.Fatalf("venue name = %q, want sim", v.Name())
	}
}

func TestBuildVenueHTTPNeedsKey(t *testing.T) {
	cfg := appconfig.Config{Venue: appconfig.VenueConfig{
		Kind:      "http",
		BaseURL:   "https://venue.example",
		APIKeyEnv: "VENUE_API_KEY",
	}}
	if _, err := buildVenue(cfg, testEnv(t, nil)); err == nil {
		t.Fatal("expected error when venue api key is unset")
	}
	v, err := buildVenue(cfg, testEnv(t, map[string]string{"VENUE_API_KEY": "vk-1"}))
	if err != nil {
		t.Fatalf("buildVenue: %v", err)
	}
	if v.Name() != "http" {
		t.Fatalf("venue name = %q, want http", v.Name())
	}
}

func TestBuildVenueUnknownKind(t *testing.T) {
	cfg := appconfig.Config{Venue: appconfig.VenueConfig{Kind: "carrier-pigeon"}}
	if _, err := buildVenue(cfg, testEnv(t, nil)); err == nil {
		t.Fatal("expected error for unknown venue kind")
	}
}

type stubCopilot struct {
	updates []console.AgentUpdate
	err     error
}

func (s *stubCopilot) Send(ctx context.Context, history []schema.ChatMessage, prompt string) (<-chan console.AgentUpdate, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan console.AgentUpdate, len(s.updates))
	for _, upd := range s.updates {
		ch <- upd
	}
	close(ch)
	return ch, nil
}

func TestPersistingCopilotLogsTurn(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "pitline.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	copilot := &persistingCopilot{
		inner: &stubCopilot{updates: []console.AgentUpdate{
			{Delta: "all "},
			{Delta: "quiet"},
			{Done: true},
		}},
		db:     db,
		userID: "alice",
	}

	updates, err := copilot.Send(context.Background(), nil, "status?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	var reply strings.Builder
	for upd := range updates {
		reply.WriteString(upd.Delta)
	}
	if reply.String() != "all quiet" {
		t.Fatalf("reply = %q", reply.String())
	}

	msgs, err := db.Messages(context.Background(), "alice", 0)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Role != schema.RoleUser || msgs[0].Content != "status?" {
		t.Fatalf("first message = %+v", msgs[0])
	}
	if msgs[1].Role != schema.RoleAssistant || msgs[1].Content != "all quiet" {
		t.Fatalf("second message = %+v", msgs[1])
	}
}

func TestPersistingCopilotPropagatesError(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "pitline.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	wantErr := errors.New("model down")
	copilot := &persistingCopilot{inner: &stubCopilot{err: wantErr}, db: db, userID: "alice"}
	if _, err := copilot.Send(context.Background(), nil, "status?"); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	msgs, err := db.Messages(context.Background(), "alice", 0)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("messages = %d, want 0 after failed send", len(msgs))
	}
}
