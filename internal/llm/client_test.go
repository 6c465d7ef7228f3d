package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pitline/pitline/schema"
)

func sseServer(t *testing.T, events []string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if status != http.StatusOK {
			http.Error(w, `{"error":{"message":"quota exceeded","type":"rate_limit"}}`, status)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, ev := range events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
			flusher.Flush()
		}
	}))
}

func deltaEvent(content string) string {
	return fmt.Sprintf(`{"choices":[{"delta":{"content":%q},"finish_reason":""}]}`, content)
}

func collect(t *testing.T, ch <-chan Chunk) (string, error) {
	t.Helper()
	var b strings.Builder
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return b.String(), nil
			}
			if chunk.Err != nil {
				return b.String(), chunk.Err
			}
			if chunk.Done {
				return b.String(), nil
			}
			b.WriteString(chunk.Delta)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for chunk")
		}
	}
}

func TestStreamAssemblesDeltas(t *testing.T) {
	srv := sseServer(t, []string{
		deltaEvent("<text>"),
		deltaEvent("hello "),
		deltaEvent("world</text>"),
		"[DONE]",
	}, http.StatusOK)
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := c.Stream(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	got, err := collect(t, ch)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got != "<text>hello world</text>" {
		t.Fatalf("assembled = %q", got)
	}
}

func TestStreamFinishReasonEndsStream(t *testing.T) {
	srv := sseServer(t, []string{
		deltaEvent("done"),
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	}, http.StatusOK)
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := c.Stream(context.Background(), nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	got, err := collect(t, ch)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got != "done" {
		t.Fatalf("assembled = %q", got)
	}
}

func TestStreamErrorStatus(t *testing.T) {
	srv := sseServer(t, nil, http.StatusTooManyRequests)
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Stream(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("err = %v", err)
	}
}

func TestStreamSkipsMalformedChunks(t *testing.T) {
	srv := sseServer(t, []string{
		"not json at all",
		deltaEvent("ok"),
		"[DONE]",
	}, http.StatusOK)
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := c.Stream(context.Background(), nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	got, err := collect(t, ch)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got != "ok" {
		t.Fatalf("assembled = %q", got)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{Model: "gpt-4o"})
	if !errors.Is(err, schema.ErrMissingAPIKey) {
		t.Fatalf("err = %v", err)
	}
}

func TestStreamReportsUsage(t *testing.T) {
	srv := sseServer(t, []string{
		deltaEvent("hi"),
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`{"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":3}}`,
		"[DONE]",
	}, http.StatusOK)
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := c.Stream(context.Background(), nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var text strings.Builder
	var usage *Usage
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("chunk err: %v", chunk.Err)
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		text.WriteString(chunk.Delta)
	}
	if text.String() != "hi" {
		t.Fatalf("assembled = %q", text.String())
	}
	if usage == nil || usage.PromptTokens != 12 || usage.CompletionTokens != 3 {
		t.Fatalf("usage = %+v", usage)
	}
}
