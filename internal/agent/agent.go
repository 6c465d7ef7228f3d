// Package agent orchestrates one copilot turn: it streams the model
// response, gates reply text through the tag extractor, executes the
// venue actions the model requested, and feeds their results back as a
// follow-up turn.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pitline/pitline/console"
	"github.com/pitline/pitline/internal/format"
	"github.com/pitline/pitline/internal/llm"
	"github.com/pitline/pitline/internal/logx"
	"github.com/pitline/pitline/internal/venue"
	"github.com/pitline/pitline/schema"
	"github.com/pitline/pitline/tagstream"
	"pkt.systems/pslog"
)

// Model streams chat completions. Satisfied by *llm.Client.
type Model interface {
	Stream(ctx context.Context, messages []llm.Message) (<-chan llm.Chunk, error)
}

// ActionRecorder persists executed actions. Satisfied by *store.Store.
type ActionRecorder interface {
	RecordAction(ctx context.Context, userID schema.UserID, rec schema.ActionRecord) error
}

// Meter accumulates token usage. Satisfied by *usage.Meter.
type Meter interface {
	Record(userID schema.UserID, promptTokens, completionTokens int)
}

// Config tunes the orchestrator.
type Config struct {
	Name            string // copilot display name in the system prompt
	Persona         string // extra system prompt paragraphs
	MaxActionRounds int    // follow-up turns before giving up, default 4
	UserID          schema.UserID
	Meter           Meter // optional
}

// Agent implements console.Copilot.
type Agent struct {
	model    Model
	venue    venue.Venue
	recorder ActionRecorder // may be nil
	cfg      Config
	now      func() time.Time
	busy     atomic.Bool
}

// New constructs the orchestrator. recorder may be nil when action
// history persistence is disabled.
func New(model Model, v venue.Venue, recorder ActionRecorder, cfg Config) *Agent {
	if cfg.MaxActionRounds <= 0 {
		cfg.MaxActionRounds = 4
	}
	if cfg.Name == "" {
		cfg.Name = "copilot"
	}
	return &Agent{model: model, venue: v, recorder: recorder, cfg: cfg, now: time.Now}
}

// Send runs one prompt turn. Updates arrive on the returned channel,
// which closes when the turn is over; cancelling ctx aborts the model
// stream mid-turn.
func (a *Agent) Send(ctx context.Context, history []schema.ChatMessage, prompt string) (<-chan console.AgentUpdate, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, schema.ErrEmptyPrompt
	}
	// One turn at a time per agent. The console queues follow-up
	// prompts itself, so this only trips direct callers.
	if !a.busy.CompareAndSwap(false, true) {
		return nil, schema.ErrBusy
	}
	messages := a.buildMessages(history, prompt)
	out := make(chan console.AgentUpdate, 64)
	go a.run(ctx, messages, out)
	return out, nil
}

func (a *Agent) run(ctx context.Context, messages []llm.Message, out chan<- console.AgentUpdate) {
	// LIFO: busy clears before the channel closes, so a caller that
	// waits for the close can send again immediately.
	defer close(out)
	defer a.busy.Store(false)
	// Downstream action logging pulls the logger from the context;
	// mark the venue so nothing annotates it twice.
	log := logx.WithUserVenue(ctx, a.cfg.UserID, a.venue.Name())
	ctx = logx.ContextWithVenue(pslog.ContextWithLogger(ctx, log), a.venue.Name())

	for round := 0; round < a.cfg.MaxActionRounds; round++ {
		full, gate, err := a.streamRound(ctx, messages, out)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("agent turn cancelled", "round", round)
				return
			}
			log.Warn("agent round failed", "round", round, "err", err)
			out <- console.AgentUpdate{Err: err}
			return
		}

		if tail := gate.Finalize(full); tail != "" {
			out <- console.AgentUpdate{Delta: tail}
		}

		requests := pendingRequests(gate)
		if len(requests) == 0 {
			a.busy.Store(false)
			out <- console.AgentUpdate{Done: true}
			return
		}

		log.Info("agent executing actions", "round", round, "actions", len(requests))
		results := make([]string, 0, len(requests))
		for _, req := range requests {
			result := a.execute(ctx, req)
			out <- console.AgentUpdate{Notice: req.describe(result)}
			results = append(results, string(req.Name)+":\n"+result.text)
		}

		// The model sees its own tagged response plus the action
		// results, then gets one more turn to reply.
		messages = append(messages,
			llm.Message{Role: "assistant", Content: full},
			llm.Message{Role: "user", Content: "Action results:\n" + strings.Join(results, "\n\n") +
				"\n\nUse these results to answer. Reply with <actions>REPLY</actions><text>...</text> unless another action is required."},
		)
	}

	log.Warn("agent action round limit reached", "limit", a.cfg.MaxActionRounds)
	a.busy.Store(false)
	out <- console.AgentUpdate{Notice: "stopped after too many action rounds"}
	out <- console.AgentUpdate{Done: true}
}

// streamRound runs one model call, forwarding gated reply text as it
// streams. It returns the full accumulated response for the fallback
// and follow-up paths.
func (a *Agent) streamRound(ctx context.Context, messages []llm.Message, out chan<- console.AgentUpdate) (string, *tagstream.ReplyGate, error) {
	gate := tagstream.NewReplyGate()
	stream, err := a.model.Stream(ctx, messages)
	if err != nil {
		return "", nil, err
	}
	var full strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			return full.String(), gate, chunk.Err
		}
		if chunk.Done {
			break
		}
		if chunk.Usage != nil && a.cfg.Meter != nil {
			a.cfg.Meter.Record(a.cfg.UserID, chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens)
		}
		full.WriteString(chunk.Delta)
		if text := gate.Push(chunk.Delta); text != "" {
			select {
			case out <- console.AgentUpdate{Delta: text}:
			case <-ctx.Done():
				return full.String(), gate, ctx.Err()
			}
		}
	}
	return full.String(), gate, nil
}

type executed struct {
	text string
	err  error
}

func (a *Agent) execute(ctx context.Context, req actionRequest) executed {
	log := logx.Ctx(ctx).With("action", req.Name)
	result := a.callVenue(ctx, req)
	if result.err != nil {
		log.Warn("agent action failed", "err", result.err)
		result.text = "error: " + result.err.Error()
	} else {
		log.Info("agent action executed")
	}
	if a.recorder != nil {
		rec := schema.ActionRecord{
			Action: req.Name,
			Params: req.Params,
			Result: result.text,
			Time:   a.now(),
		}
		if err := a.recorder.RecordAction(ctx, a.cfg.UserID, rec); err != nil {
			log.Warn("agent action record failed", "err", err)
		}
	}
	return result
}

func (a *Agent) callVenue(ctx context.Context, req actionRequest) executed {
	switch req.Name {
	case schema.ActionBalances:
		balances, err := a.venue.Balances(ctx)
		if err != nil {
			return executed{err: err}
		}
		return executed{text: joinLines(format.Balances(balances))}
	case schema.ActionPositions:
		positions, err := a.venue.Positions(ctx)
		if err != nil {
			return executed{err: err}
		}
		return executed{text: joinLines(format.Positions(positions))}
	case schema.ActionOpenOrders:
		orders, err := a.venue.OpenOrders(ctx)
		if err != nil {
			return executed{err: err}
		}
		return executed{text: joinLines(format.Orders(orders))}
	case schema.ActionPrices:
		symbols := req.symbols()
		if len(symbols) == 0 {
			return executed{err: fmt.Errorf("GET_PRICES needs at least one symbol")}
		}
		prices, err := a.venue.Prices(ctx, symbols)
		if err != nil {
			return executed{err: err}
		}
		return executed{text: joinLines(format.Prices(prices))}
	case schema.ActionPlaceOrder:
		orderReq, err := req.orderRequest()
		if err != nil {
			return executed{err: err}
		}
		order, err := a.venue.PlaceOrder(ctx, orderReq)
		if err != nil {
			return executed{err: err}
		}
		return executed{text: format.OrderLine(order)}
	case schema.ActionCancel:
		id := strings.TrimSpace(req.Params)
		if id == "" {
			return executed{err: fmt.Errorf("CANCEL_ORDER needs an order id")}
		}
		if err := a.venue.CancelOrder(ctx, id); err != nil {
			return executed{err: err}
		}
		return executed{text: "cancelled order " + id}
	default:
		return executed{err: fmt.Errorf("%w: %s", schema.ErrUnknownAction, req.Name)}
	}
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
