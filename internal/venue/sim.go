package venue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pitline/pitline/schema"
)

// Compile-time interface check.
var _ Venue = (*Sim)(nil)

// Sim implements Venue in memory for paper trading. Market orders fill
// immediately at the current mark price; limit orders rest until
// SetPrice crosses them. All methods are safe for concurrent use.
type Sim struct {
	mu        sync.Mutex
	balances  map[string]float64
	positions map[string]*schema.Position
	orders    map[string]*schema.Order
	prices    map[string]float64
	nextID    int
	now       func() time.Time
}

// NewSim creates a simulator seeded with a cash balance and a few
// reference prices so a fresh install has something to talk about.
func NewSim() *Sim {
	return &Sim{
		balances:  map[string]float64{"USDT": 10000},
		positions: map[string]*schema.Position{},
		orders:    map[string]*schema.Order{},
		prices: map[string]float64{
			"BTC-USDT": 65000,
			"ETH-USDT": 3200,
			"SOL-USDT": 140,
		},
		now: time.Now,
	}
}

// Name returns "sim".
func (s *Sim) Name() string { return "sim" }

// SetPrice updates a symbol's mark price, refreshes position PnL, and
// fills any resting limit orders the new price crosses.
func (s *Sim) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
	if p, ok := s.positions[symbol]; ok {
		p.MarkPrice = price
		p.PnL = (price - p.EntryPrice) * p.Size
	}
	for _, o := range s.orders {
		if o.Symbol != symbol || o.Status != "open" {
			continue
		}
		crossed := (o.Side == schema.SideBuy && price <= o.Price) ||
			(o.Side == schema.SideSell && price >= o.Price)
		if crossed {
			s.fill(o, o.Price)
		}
	}
}

func (s *Sim) Balances(context.Context) ([]schema.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.Balance, 0, len(s.balances))
	for asset, total := range s.balances {
		out = append(out, schema.Balance{Asset: asset, Total: total, Free: total - s.lockedLocked(asset)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

// lockedLocked sums quote currency reserved by resting buy orders.
// Caller holds mu.
func (s *Sim) lockedLocked(asset string) float64 {
	locked := 0.0
	for _, o := range s.orders {
		if o.Status != "open" || o.Side != schema.SideBuy {
			continue
		}
		if quoteAsset(o.Symbol) == asset {
			locked += o.Price * o.Size
		}
	}
	return locked
}

func (s *Sim) Positions(context.Context) ([]schema.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *Sim) OpenOrders(context.Context) ([]schema.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if o.Status == "open" {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Sim) Prices(_ context.Context, symbols []string) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		price, ok := s.prices[sym]
		if !ok {
			return nil, fmt.Errorf("unknown symbol %q", sym)
		}
		out[sym] = price
	}
	return out, nil
}

func (s *Sim) PlaceOrder(_ context.Context, req schema.OrderRequest) (schema.Order, error) {
	if req.Symbol == "" || req.Size <= 0 {
		return schema.Order{}, fmt.Errorf("invalid order: symbol %q size %v", req.Symbol, req.Size)
	}
	if req.Side != schema.SideBuy && req.Side != schema.SideSell {
		return schema.Order{}, fmt.Errorf("invalid order side %q", req.Side)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	mark, ok := s.prices[req.Symbol]
	if !ok {
		return schema.Order{}, fmt.Errorf("unknown symbol %q", req.Symbol)
	}
	s.nextID++
	order := &schema.Order{
		ID:     fmt.Sprintf("sim-%d", s.nextID),
		Symbol: req.Symbol,
		Side:   req.Side,
		Size:   req.Size,
		Price:  req.Price,
		Status: "open",
		Time:   s.now(),
	}
	s.orders[order.ID] = order
	if req.Price == 0 {
		order.Price = mark
		s.fill(order, mark)
	}
	return *order, nil
}

func (s *Sim) CancelOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.Status != "open" {
		return schema.ErrOrderNotFound
	}
	o.Status = "cancelled"
	return nil
}

// fill executes an order at price, adjusting balances and the position
// with a weighted average entry. Caller holds mu.
func (s *Sim) fill(o *schema.Order, price float64) {
	o.Status = "filled"
	o.Price = price
	quote := quoteAsset(o.Symbol)
	signed := o.Size
	if o.Side == schema.SideSell {
		signed = -o.Size
	}
	s.balances[quote] -= signed * price

	p := s.positions[o.Symbol]
	if p == nil {
		p = &schema.Position{Symbol: o.Symbol, EntryPrice: price}
		s.positions[o.Symbol] = p
	}
	newSize := p.Size + signed
	switch {
	case newSize == 0:
		delete(s.positions, o.Symbol)
		return
	case (p.Size >= 0) == (signed >= 0):
		// Adding to the position: blend the entry price.
		p.EntryPrice = (p.EntryPrice*p.Size + price*signed) / newSize
	}
	p.Size = newSize
	p.MarkPrice = price
	p.PnL = (price - p.EntryPrice) * p.Size
}

// quoteAsset extracts the quote currency from a SYMBOL-QUOTE pair,
// defaulting to USDT for bare symbols.
func quoteAsset(symbol string) string {
	if i := strings.LastIndexByte(symbol, '-'); i >= 0 {
		return symbol[i+1:]
	}
	return "USDT"
}
