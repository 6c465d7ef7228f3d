// Package venue abstracts the trading venue the copilot acts against:
// balances, positions, open orders, prices, and order management. Two
// implementations exist, an HTTP client for a real venue API and an
// in-memory simulator for paper trading.
package venue

import (
	"context"

	"github.com/pitline/pitline/schema"
)

// Venue abstracts venue operations for account state and order flow.
type Venue interface {
	// Name returns the venue identifier (e.g. "http", "sim").
	Name() string

	// Balances returns the account's asset balances.
	Balances(ctx context.Context) ([]schema.Balance, error)

	// Positions returns all open positions.
	Positions(ctx context.Context) ([]schema.Position, error)

	// OpenOrders returns orders that are still working.
	OpenOrders(ctx context.Context) ([]schema.Order, error)

	// Prices returns last-trade prices for the given symbols.
	Prices(ctx context.Context, symbols []string) (map[string]float64, error)

	// PlaceOrder submits an order and returns it with venue-assigned
	// ID and status.
	PlaceOrder(ctx context.Context, req schema.OrderRequest) (schema.Order, error)

	// CancelOrder cancels an open order by its venue ID. A missing
	// order returns schema.ErrOrderNotFound.
	CancelOrder(ctx context.Context, orderID string) error
}
