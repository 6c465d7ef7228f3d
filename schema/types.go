// Package schema holds the shared types exchanged between the console,
// the agent, and the venue/persistence collaborators.
package schema

import "time"

// UserID identifies a console user. Local sessions use "local".
type UserID string

// MessageID identifies a chat message within a session.
type MessageID int64

// ThemeName identifies a UI theme.
type ThemeName string

// DefaultTheme is used when no theme is configured.
const DefaultTheme ThemeName = "outrun"

// DefaultBufferMaxLines bounds scrollback retention per panel.
const DefaultBufferMaxLines = 5000

// Role classifies who produced a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one entry in the transcript. Content of the active
// assistant message is the only field mutated in place while a reply
// streams; everything else is immutable once created.
type ChatMessage struct {
	ID      MessageID
	Role    Role
	Content string
	Time    time.Time
}

// Action is a venue operation requested by the model inside an
// <actions> tag.
type Action string

const (
	ActionReply      Action = "REPLY"
	ActionBalances   Action = "GET_BALANCES"
	ActionPositions  Action = "GET_POSITIONS"
	ActionOpenOrders Action = "GET_OPEN_ORDERS"
	ActionPrices     Action = "GET_PRICES"
	ActionPlaceOrder Action = "PLACE_ORDER"
	ActionCancel     Action = "CANCEL_ORDER"
)

// KnownActions lists every action the agent may execute.
var KnownActions = []Action{
	ActionReply,
	ActionBalances,
	ActionPositions,
	ActionOpenOrders,
	ActionPrices,
	ActionPlaceOrder,
	ActionCancel,
}

// Known reports whether a is a recognized action value.
func (a Action) Known() bool {
	for _, known := range KnownActions {
		if a == known {
			return true
		}
	}
	return false
}

// Balance is an asset balance reported by the venue.
type Balance struct {
	Asset string  `json:"asset"`
	Total float64 `json:"total"`
	Free  float64 `json:"free"`
}

// Position is an open position reported by the venue.
type Position struct {
	Symbol     string  `json:"symbol"`
	Size       float64 `json:"size"`
	EntryPrice float64 `json:"entry_price"`
	MarkPrice  float64 `json:"mark_price"`
	PnL        float64 `json:"pnl"`
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderRequest asks the venue to place an order.
type OrderRequest struct {
	Symbol string    `json:"symbol"`
	Side   OrderSide `json:"side"`
	Size   float64   `json:"size"`
	Price  float64   `json:"price,omitempty"` // zero means market
}

// Order is an order acknowledged by the venue.
type Order struct {
	ID     string    `json:"id"`
	Symbol string    `json:"symbol"`
	Side   OrderSide `json:"side"`
	Size   float64   `json:"size"`
	Price  float64   `json:"price"`
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// ActionRecord captures an executed action for the history store.
type ActionRecord struct {
	Action Action
	Params string
	Result string
	Time   time.Time
}
