package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/pitline/pitline/schema"
	"pkt.systems/pslog"
)

func TestWithOrderAddsFields(t *testing.T) {
	capture := &logCapture{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
	log := WithOrder(logger, schema.Order{ID: "sim-1", Symbol: "BTC-USDT"})
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["order"] != "sim-1" {
		t.Fatalf("expected order field, got %+v", entry)
	}
	if entry["symbol"] != "BTC-USDT" {
		t.Fatalf("expected symbol field, got %+v", entry)
	}
}

func TestWithOrderSkipsEmpty(t *testing.T) {
	capture := &logCapture{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
	log := WithOrder(logger, schema.Order{})
	log.Info("hello")

	entry := capture.firstEntry(t)
	if _, ok := entry["order"]; ok {
		t.Fatalf("did not expect order field, got %+v", entry)
	}
}

func TestWithUserVenueAddsFields(t *testing.T) {
	capture := &logCapture{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
	ctx := pslog.ContextWithLogger(context.Background(), logger)
	log := WithUserVenue(ctx, "alice", "sim")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["user"] != "alice" {
		t.Fatalf("expected user field, got %+v", entry)
	}
	if entry["venue"] != "sim" {
		t.Fatalf("expected venue field, got %+v", entry)
	}
}

func TestContextMarkersDeduplicate(t *testing.T) {
	capture := &logCapture{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
	ctx := ContextWithUserLogger(context.Background(), logger.With("user", schema.UserID("alice")), "alice")
	log := WithUser(ctx, "alice")
	log.Info("hello")

	line := capture.buf.String()
	if bytes.Count([]byte(line), []byte(`"user"`)) != 1 {
		t.Fatalf("expected user field exactly once, got %q", line)
	}
}

func TestCopyContextFieldsCarriesMarkers(t *testing.T) {
	capture := &logCapture{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	}).With("user", schema.UserID("alice")).With("venue", "sim")

	src := ContextWithVenue(ContextWithUser(context.Background(), "alice"), "sim")
	// A detached context keeps the markers even though the
	// cancellation chain is cut.
	dst := CopyContextFields(pslog.ContextWithLogger(context.Background(), logger), src)

	log := WithUserVenue(dst, "alice", "sim")
	log.Info("hello")

	line := capture.buf.String()
	if bytes.Count([]byte(line), []byte(`"user"`)) != 1 {
		t.Fatalf("expected user field exactly once, got %q", line)
	}
	if bytes.Count([]byte(line), []byte(`"venue"`)) != 1 {
		t.Fatalf("expected venue field exactly once, got %q", line)
	}
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
