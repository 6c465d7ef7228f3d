// Package llm streams chat completions from an OpenAI-compatible API.
// The agent feeds it a message history and consumes content deltas as
// they arrive over SSE.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pitline/pitline/schema"
	"pkt.systems/pslog"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Message is one chat turn in API wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for one completed request. It
// arrives once, near the end of the stream.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Chunk is one streamed piece of the reply. Err and Done are terminal.
type Chunk struct {
	Delta string
	Usage *Usage
	Err   error
	Done  bool
}

// Config configures the API client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

// Client talks to a chat completions endpoint.
type Client struct {
	cfg    Config
	client *http.Client
}

// New validates cfg and returns a client. A missing API key is
// schema.ErrMissingAPIKey so callers can explain which .env entry to
// set.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, schema.ErrMissingAPIKey
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	client := cfg.Client
	if client == nil {
		// No overall timeout: streams stay open as long as the model
		// is producing. Cancellation comes from ctx.
		client = &http.Client{}
	}
	return &Client{cfg: cfg, client: client}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

type completionRequest struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	Stream        bool           `json:"stream"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type completionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage    `json:"usage"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Stream posts the conversation and returns a channel of deltas. The
// channel is closed after a terminal Chunk (Done or Err). Cancelling
// ctx aborts the stream.
func (c *Client) Stream(ctx context.Context, messages []Message) (<-chan Chunk, error) {
	payload, err := json.Marshal(completionRequest{
		Model:         c.cfg.Model,
		Messages:      messages,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	log := pslog.Ctx(ctx).With("model", c.cfg.Model, "messages", len(messages))
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat completions: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusErr(resp)
	}
	log.Debug("llm stream open", "elapsed", time.Since(start))

	out := make(chan Chunk, 64)
	go c.readStream(ctx, resp.Body, out, log)
	return out, nil
}

// readStream parses the SSE body line by line. OpenAI terminates with
// "data: [DONE]"; some compatible servers just close the connection.
func (c *Client) readStream(ctx context.Context, body io.ReadCloser, out chan<- Chunk, log pslog.Logger) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var deltas int
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			log.Debug("llm stream done", "deltas", deltas)
			out <- Chunk{Done: true}
			return
		}
		var chunk completionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			log.Warn("llm chunk decode failed", "err", err, "preview", preview(data, 120))
			continue
		}
		if chunk.Error != nil {
			out <- Chunk{Err: fmt.Errorf("model error: %s", chunk.Error.Message)}
			return
		}
		if chunk.Usage != nil {
			out <- Chunk{Usage: chunk.Usage}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			deltas++
			select {
			case out <- Chunk{Delta: delta}:
			case <-ctx.Done():
				out <- Chunk{Err: ctx.Err()}
				return
			}
		}
		// The usage chunk trails finish_reason, so keep reading until
		// [DONE] or the server closes the stream.
		if reason := chunk.Choices[0].FinishReason; reason != "" {
			log.Debug("llm stream finished", "reason", reason, "deltas", deltas)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		out <- Chunk{Err: fmt.Errorf("read stream: %w", err)}
		return
	}
	if ctx.Err() != nil {
		out <- Chunk{Err: ctx.Err()}
		return
	}
	out <- Chunk{Done: true}
}

func statusErr(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var wrapped struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error != nil {
		return fmt.Errorf("chat completions: %s (%s)", wrapped.Error.Message, resp.Status)
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return fmt.Errorf("chat completions: %s", msg)
}

func preview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
