// Package usage accumulates model token consumption per user for the
// lifetime of the process. The numbers come from the API's own usage
// reporting, not a local estimate.
package usage

import (
	"fmt"
	"sync"

	"github.com/pitline/pitline/schema"
)

// Totals is the accumulated consumption for one user.
type Totals struct {
	PromptTokens     int
	CompletionTokens int
	Requests         int
}

// TotalTokens returns prompt plus completion tokens.
func (t Totals) TotalTokens() int {
	return t.PromptTokens + t.CompletionTokens
}

// Lines renders the totals for the transcript.
func (t Totals) Lines() []string {
	if t.Requests == 0 {
		return []string{"no model usage recorded yet"}
	}
	return []string{
		fmt.Sprintf("requests:          %d", t.Requests),
		fmt.Sprintf("prompt tokens:     %d", t.PromptTokens),
		fmt.Sprintf("completion tokens: %d", t.CompletionTokens),
		fmt.Sprintf("total tokens:      %d", t.TotalTokens()),
	}
}

// Meter tracks per-user totals. Safe for concurrent use.
type Meter struct {
	mu     sync.Mutex
	totals map[schema.UserID]Totals
}

// NewMeter constructs an empty meter.
func NewMeter() *Meter {
	return &Meter{totals: make(map[schema.UserID]Totals)}
}

// Record adds one request's token counts to the user's totals.
func (m *Meter) Record(userID schema.UserID, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.totals[userID]
	t.PromptTokens += promptTokens
	t.CompletionTokens += completionTokens
	t.Requests++
	m.totals[userID] = t
}

// Totals returns the user's accumulated consumption.
func (m *Meter) Totals(userID schema.UserID) Totals {
	if m == nil {
		return Totals{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[userID]
}

// Reset clears the user's totals.
func (m *Meter) Reset(userID schema.UserID) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.totals, userID)
}
