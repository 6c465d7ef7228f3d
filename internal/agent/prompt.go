package agent

import (
	"strings"

	"github.com/pitline/pitline/internal/llm"
	"github.com/pitline/pitline/schema"
)

// buildMessages assembles the wire conversation: system prompt, prior
// transcript (system notices excluded), then the new prompt.
func (a *Agent) buildMessages(history []schema.ChatMessage, prompt string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: a.systemPrompt()})
	for _, msg := range history {
		switch msg.Role {
		case schema.RoleUser:
			messages = append(messages, llm.Message{Role: "user", Content: msg.Content})
		case schema.RoleAssistant:
			messages = append(messages, llm.Message{Role: "assistant", Content: msg.Content})
		}
	}
	messages = append(messages, llm.Message{Role: "user", Content: prompt})
	return messages
}

func (a *Agent) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are " + a.cfg.Name + ", a trading copilot for the venue \"" + a.venue.Name() + "\".\n")
	if a.cfg.Persona != "" {
		b.WriteString(a.cfg.Persona)
		b.WriteString("\n")
	}
	b.WriteString(`
Every response MUST be shaped exactly as:
<actions>ACTION LINES</actions><text>reply to the user</text>

Each action line is one action name, optionally followed by parameters:
  REPLY                                   no venue work, just answer
  GET_BALANCES
  GET_POSITIONS
  GET_OPEN_ORDERS
  GET_PRICES SYMBOL [SYMBOL ...]
  PLACE_ORDER {"symbol":"BTC-USDT","side":"buy","size":0.1,"price":64000}
  CANCEL_ORDER order-id

Omitting "price" (or setting it to 0) places a market order. When you
request venue actions their results are returned to you in a follow-up
message; answer the user only after you have the data. Use REPLY alone
when no venue data is needed. Never place or cancel an order the user
did not explicitly ask for.`)
	return b.String()
}
