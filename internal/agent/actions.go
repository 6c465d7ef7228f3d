package agent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pitline/pitline/schema"
	"github.com/pitline/pitline/tagstream"
)

// actionRequest is one parsed line of the actions tag: the action name
// followed by its parameters verbatim.
type actionRequest struct {
	Name   schema.Action
	Params string
}

// pendingRequests parses the closed actions tag into executable
// requests. REPLY lines are display policy, not venue work, so they
// are skipped here.
func pendingRequests(gate *tagstream.ReplyGate) []actionRequest {
	raw, ok := gate.RawActions()
	if !ok {
		return nil
	}
	var requests []actionRequest
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, params, _ := strings.Cut(line, " ")
		action := schema.Action(strings.ToUpper(strings.TrimSuffix(name, ",")))
		if action == schema.ActionReply {
			continue
		}
		requests = append(requests, actionRequest{
			Name:   action,
			Params: strings.TrimSpace(params),
		})
	}
	return requests
}

// symbols parses a GET_PRICES parameter list: symbols separated by
// spaces or commas, uppercased.
func (r actionRequest) symbols() []string {
	fields := strings.FieldsFunc(r.Params, func(c rune) bool {
		return c == ' ' || c == ',' || c == '\t'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.ToUpper(f))
	}
	return out
}

// orderRequest parses PLACE_ORDER parameters. The canonical form is a
// JSON object matching schema.OrderRequest; a positional
// "side symbol size [price]" form is accepted as a fallback since
// models drift.
func (r actionRequest) orderRequest() (schema.OrderRequest, error) {
	params := strings.TrimSpace(r.Params)
	if params == "" {
		return schema.OrderRequest{}, fmt.Errorf("PLACE_ORDER needs parameters")
	}
	var req schema.OrderRequest
	if strings.HasPrefix(params, "{") {
		if err := json.Unmarshal([]byte(params), &req); err != nil {
			return schema.OrderRequest{}, fmt.Errorf("parse PLACE_ORDER params: %w", err)
		}
	} else {
		fields := strings.Fields(params)
		if len(fields) < 3 || len(fields) > 4 {
			return schema.OrderRequest{}, fmt.Errorf("parse PLACE_ORDER params %q", params)
		}
		req.Side = schema.OrderSide(fields[0])
		req.Symbol = strings.ToUpper(fields[1])
		size, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return schema.OrderRequest{}, fmt.Errorf("parse PLACE_ORDER size %q", fields[2])
		}
		req.Size = size
		if len(fields) == 4 {
			price, err := strconv.ParseFloat(fields[3], 64)
			if err != nil {
				return schema.OrderRequest{}, fmt.Errorf("parse PLACE_ORDER price %q", fields[3])
			}
			req.Price = price
		}
	}
	req.Side = schema.OrderSide(strings.ToLower(string(req.Side)))
	if req.Side != schema.SideBuy && req.Side != schema.SideSell {
		return schema.OrderRequest{}, fmt.Errorf("invalid order side %q", req.Side)
	}
	if req.Symbol == "" || req.Size <= 0 {
		return schema.OrderRequest{}, fmt.Errorf("invalid order %+v", req)
	}
	return req, nil
}

// describe renders the one-line transcript notice for an executed
// action.
func (r actionRequest) describe(result executed) string {
	label := strings.ToLower(strings.ReplaceAll(string(r.Name), "_", " "))
	if result.err != nil {
		return fmt.Sprintf("%s failed: %v", label, result.err)
	}
	switch r.Name {
	case schema.ActionPlaceOrder, schema.ActionCancel:
		return result.text
	default:
		return "fetched " + strings.TrimPrefix(label, "get ")
	}
}
