package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pitline/pitline/console"
	"github.com/pitline/pitline/internal/llm"
	"github.com/pitline/pitline/internal/usage"
	"github.com/pitline/pitline/schema"
)

type scriptedModel struct {
	responses [][]string
	calls     [][]llm.Message
}

func (m *scriptedModel) Stream(ctx context.Context, messages []llm.Message) (<-chan llm.Chunk, error) {
	m.calls = append(m.calls, messages)
	i := len(m.calls) - 1
	if i >= len(m.responses) {
		return nil, fmt.Errorf("unexpected model call %d", i)
	}
	ch := make(chan llm.Chunk, len(m.responses[i])+1)
	for _, delta := range m.responses[i] {
		ch <- llm.Chunk{Delta: delta}
	}
	ch <- llm.Chunk{Done: true}
	close(ch)
	return ch, nil
}

type fakeVenue struct {
	balances  []schema.Balance
	placed    []schema.OrderRequest
	cancelled []string
	err       error
}

func (v *fakeVenue) Name() string { return "fake" }

func (v *fakeVenue) Balances(ctx context.Context) ([]schema.Balance, error) {
	return v.balances, v.err
}

func (v *fakeVenue) Positions(ctx context.Context) ([]schema.Position, error) {
	return nil, v.err
}

func (v *fakeVenue) OpenOrders(ctx context.Context) ([]schema.Order, error) {
	return nil, v.err
}

func (v *fakeVenue) Prices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if v.err != nil {
		return nil, v.err
	}
	out := map[string]float64{}
	for _, s := range symbols {
		out[s] = 100
	}
	return out, nil
}

func (v *fakeVenue) PlaceOrder(ctx context.Context, req schema.OrderRequest) (schema.Order, error) {
	if v.err != nil {
		return schema.Order{}, v.err
	}
	v.placed = append(v.placed, req)
	return schema.Order{ID: "fake-1", Symbol: req.Symbol, Side: req.Side, Size: req.Size, Price: req.Price, Status: "open"}, nil
}

func (v *fakeVenue) CancelOrder(ctx context.Context, orderID string) error {
	if v.err != nil {
		return v.err
	}
	v.cancelled = append(v.cancelled, orderID)
	return nil
}

type fakeRecorder struct {
	records []schema.ActionRecord
}

func (r *fakeRecorder) RecordAction(ctx context.Context, userID schema.UserID, rec schema.ActionRecord) error {
	r.records = append(r.records, rec)
	return nil
}

type turnResult struct {
	text    string
	notices []string
	errs    []error
}

func drain(t *testing.T, updates <-chan console.AgentUpdate) turnResult {
	t.Helper()
	var res turnResult
	var text strings.Builder
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				res.text = text.String()
				return res
			}
			text.WriteString(u.Delta)
			if u.Notice != "" {
				res.notices = append(res.notices, u.Notice)
			}
			if u.Err != nil {
				res.errs = append(res.errs, u.Err)
			}
		case <-timeout:
			t.Fatal("timed out draining updates")
		}
	}
}

func TestSendReplyOnlyTurn(t *testing.T) {
	model := &scriptedModel{responses: [][]string{
		{"<actions>REP", "LY</actions><te", "xt>hello there</text>"},
	}}
	a := New(model, &fakeVenue{}, nil, Config{UserID: "local"})
	updates, err := a.Send(context.Background(), nil, "hi")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	res := drain(t, updates)
	if res.text != "hello there" {
		t.Fatalf("text = %q", res.text)
	}
	if len(res.errs) != 0 {
		t.Fatalf("errs = %v", res.errs)
	}
	if len(model.calls) != 1 {
		t.Fatalf("model calls = %d", len(model.calls))
	}
	if model.calls[0][0].Role != "system" {
		t.Fatalf("first message role = %q", model.calls[0][0].Role)
	}
}

func TestSendExecutesActionsThenReplies(t *testing.T) {
	model := &scriptedModel{responses: [][]string{
		{"<actions>GET_BALANCES</actions><text></text>"},
		{"<actions>REPLY</actions><text>you hold 10000 USDT</text>"},
	}}
	v := &fakeVenue{balances: []schema.Balance{{Asset: "USDT", Total: 10000, Free: 10000}}}
	rec := &fakeRecorder{}
	a := New(model, v, rec, Config{UserID: "local"})
	updates, err := a.Send(context.Background(), nil, "what do I hold?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	res := drain(t, updates)
	if res.text != "you hold 10000 USDT" {
		t.Fatalf("text = %q", res.text)
	}
	if len(res.notices) != 1 || !strings.Contains(res.notices[0], "balances") {
		t.Fatalf("notices = %v", res.notices)
	}
	if len(model.calls) != 2 {
		t.Fatalf("model calls = %d", len(model.calls))
	}
	followUp := model.calls[1][len(model.calls[1])-1]
	if followUp.Role != "user" || !strings.Contains(followUp.Content, "USDT") {
		t.Fatalf("follow-up = %+v", followUp)
	}
	if len(rec.records) != 1 || rec.records[0].Action != schema.ActionBalances {
		t.Fatalf("records = %+v", rec.records)
	}
}

func TestSendPlacesOrderFromJSONParams(t *testing.T) {
	model := &scriptedModel{responses: [][]string{
		{`<actions>PLACE_ORDER {"symbol":"BTC-USDT","side":"buy","size":0.1,"price":64000}</actions><text></text>`},
		{"<actions>REPLY</actions><text>order placed</text>"},
	}}
	v := &fakeVenue{}
	a := New(model, v, nil, Config{UserID: "local"})
	updates, err := a.Send(context.Background(), nil, "buy some btc")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	res := drain(t, updates)
	if len(v.placed) != 1 {
		t.Fatalf("placed = %v", v.placed)
	}
	req := v.placed[0]
	if req.Symbol != "BTC-USDT" || req.Side != schema.SideBuy || req.Size != 0.1 || req.Price != 64000 {
		t.Fatalf("req = %+v", req)
	}
	if len(res.notices) != 1 || !strings.Contains(res.notices[0], "buy 0.1 BTC-USDT") {
		t.Fatalf("notices = %v", res.notices)
	}
	if res.text != "order placed" {
		t.Fatalf("text = %q", res.text)
	}
}

func TestSendVenueErrorFedBackToModel(t *testing.T) {
	model := &scriptedModel{responses: [][]string{
		{"<actions>GET_BALANCES</actions><text></text>"},
		{"<actions>REPLY</actions><text>venue is down</text>"},
	}}
	v := &fakeVenue{err: errors.New("connection refused")}
	a := New(model, v, nil, Config{UserID: "local"})
	updates, err := a.Send(context.Background(), nil, "balances?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	res := drain(t, updates)
	if res.text != "venue is down" {
		t.Fatalf("text = %q", res.text)
	}
	followUp := model.calls[1][len(model.calls[1])-1]
	if !strings.Contains(followUp.Content, "connection refused") {
		t.Fatalf("follow-up = %q", followUp.Content)
	}
}

func TestSendUntaggedResponseFallsBack(t *testing.T) {
	model := &scriptedModel{responses: [][]string{
		{"plain answer with no tags"},
	}}
	a := New(model, &fakeVenue{}, nil, Config{UserID: "local"})
	updates, err := a.Send(context.Background(), nil, "hi")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	res := drain(t, updates)
	if res.text != "plain answer with no tags" {
		t.Fatalf("text = %q", res.text)
	}
}

func TestSendEmptyPrompt(t *testing.T) {
	a := New(&scriptedModel{}, &fakeVenue{}, nil, Config{})
	if _, err := a.Send(context.Background(), nil, "   "); !errors.Is(err, schema.ErrEmptyPrompt) {
		t.Fatalf("err = %v", err)
	}
}

func TestSendStopsAtRoundLimit(t *testing.T) {
	loop := []string{"<actions>GET_BALANCES</actions><text></text>"}
	model := &scriptedModel{responses: [][]string{loop, loop}}
	a := New(model, &fakeVenue{}, nil, Config{UserID: "local", MaxActionRounds: 2})
	updates, err := a.Send(context.Background(), nil, "loop forever")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	res := drain(t, updates)
	if len(model.calls) != 2 {
		t.Fatalf("model calls = %d", len(model.calls))
	}
	found := false
	for _, n := range res.notices {
		if strings.Contains(n, "too many action rounds") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected round limit notice, got %v", res.notices)
	}
}

func TestOrderRequestPositionalParams(t *testing.T) {
	req := actionRequest{Name: schema.ActionPlaceOrder, Params: "sell eth-usdt 2 3300"}
	parsed, err := req.orderRequest()
	if err != nil {
		t.Fatalf("orderRequest: %v", err)
	}
	if parsed.Side != schema.SideSell || parsed.Symbol != "ETH-USDT" || parsed.Size != 2 || parsed.Price != 3300 {
		t.Fatalf("parsed = %+v", parsed)
	}
}

func TestOrderRequestRejectsBadSide(t *testing.T) {
	req := actionRequest{Name: schema.ActionPlaceOrder, Params: `{"symbol":"BTC-USDT","side":"hold","size":1}`}
	if _, err := req.orderRequest(); err == nil {
		t.Fatal("expected error for bad side")
	}
}

func TestHistoryExcludesSystemMessages(t *testing.T) {
	a := New(&scriptedModel{}, &fakeVenue{}, nil, Config{})
	history := []schema.ChatMessage{
		{Role: schema.RoleSystem, Content: "welcome"},
		{Role: schema.RoleUser, Content: "hi"},
		{Role: schema.RoleAssistant, Content: "hello"},
	}
	messages := a.buildMessages(history, "next")
	if len(messages) != 4 {
		t.Fatalf("messages = %d", len(messages))
	}
	for _, m := range messages[1:] {
		if m.Content == "welcome" {
			t.Fatal("system transcript line leaked into model history")
		}
	}
}

// blockingModel holds the stream open until release closes, keeping a
// turn in flight for as long as the test needs.
type blockingModel struct {
	started chan struct{}
	release chan struct{}
}

func (m *blockingModel) Stream(ctx context.Context, messages []llm.Message) (<-chan llm.Chunk, error) {
	m.started <- struct{}{}
	ch := make(chan llm.Chunk, 4)
	go func() {
		defer close(ch)
		<-m.release
		ch <- llm.Chunk{Delta: "<actions>REPLY</actions><text>ok</text>"}
		ch <- llm.Chunk{Done: true}
	}()
	return ch, nil
}

func TestSendRejectsOverlappingTurn(t *testing.T) {
	model := &blockingModel{started: make(chan struct{}, 2), release: make(chan struct{})}
	a := New(model, &fakeVenue{}, nil, Config{UserID: "local"})

	updates, err := a.Send(context.Background(), nil, "first")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-model.started

	if _, err := a.Send(context.Background(), nil, "second"); !errors.Is(err, schema.ErrBusy) {
		t.Fatalf("overlapping Send err = %v, want ErrBusy", err)
	}

	close(model.release)
	if res := drain(t, updates); res.text != "ok" {
		t.Fatalf("text = %q", res.text)
	}

	// Once the first turn's channel has closed the agent is free again.
	updates, err = a.Send(context.Background(), nil, "third")
	if err != nil {
		t.Fatalf("Send after turn: %v", err)
	}
	if res := drain(t, updates); res.text != "ok" {
		t.Fatalf("text = %q", res.text)
	}
}

type usageModel struct {
	prompt     int
	completion int
}

func (m *usageModel) Stream(ctx context.Context, messages []llm.Message) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk, 3)
	ch <- llm.Chunk{Delta: "<actions>REPLY</actions><text>ok</text>"}
	ch <- llm.Chunk{Usage: &llm.Usage{PromptTokens: m.prompt, CompletionTokens: m.completion}}
	ch <- llm.Chunk{Done: true}
	close(ch)
	return ch, nil
}

func TestSendRecordsUsage(t *testing.T) {
	meter := usage.NewMeter()
	a := New(&usageModel{prompt: 20, completion: 5}, &fakeVenue{}, nil, Config{
		UserID: "alice",
		Meter:  meter,
	})
	updates, err := a.Send(context.Background(), nil, "status?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	res := drain(t, updates)
	if res.text != "ok" {
		t.Fatalf("text = %q", res.text)
	}
	totals := meter.Totals("alice")
	if totals.Requests != 1 || totals.PromptTokens != 20 || totals.CompletionTokens != 5 {
		t.Fatalf("totals = %+v", totals)
	}
}
