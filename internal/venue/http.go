package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pitline/pitline/schema"
)

// Compile-time interface check.
var _ Venue = (*HTTPVenue)(nil)

// HTTPVenue talks to a venue's REST API. The API surface is the small
// JSON one pitline needs: /v1/balances, /v1/positions, /v1/orders,
// /v1/prices. Authentication is a bearer token per request.
type HTTPVenue struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPVenue creates a client for the venue API at baseURL.
func NewHTTPVenue(baseURL, apiKey string) *HTTPVenue {
	return &HTTPVenue{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Name returns "http".
func (v *HTTPVenue) Name() string { return "http" }

func (v *HTTPVenue) Balances(ctx context.Context) ([]schema.Balance, error) {
	var out []schema.Balance
	if err := v.do(ctx, http.MethodGet, "/v1/balances", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (v *HTTPVenue) Positions(ctx context.Context) ([]schema.Position, error) {
	var out []schema.Position
	if err := v.do(ctx, http.MethodGet, "/v1/positions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (v *HTTPVenue) OpenOrders(ctx context.Context) ([]schema.Order, error) {
	var out []schema.Order
	if err := v.do(ctx, http.MethodGet, "/v1/orders?status=open", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (v *HTTPVenue) Prices(ctx context.Context, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64)
	path := "/v1/prices?symbols=" + url.QueryEscape(strings.Join(symbols, ","))
	if err := v.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (v *HTTPVenue) PlaceOrder(ctx context.Context, req schema.OrderRequest) (schema.Order, error) {
	var out schema.Order
	if err := v.do(ctx, http.MethodPost, "/v1/orders", req, &out); err != nil {
		return schema.Order{}, err
	}
	return out, nil
}

func (v *HTTPVenue) CancelOrder(ctx context.Context, orderID string) error {
	err := v.do(ctx, http.MethodDelete, "/v1/orders/"+url.PathEscape(orderID), nil, nil)
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		return schema.ErrOrderNotFound
	}
	return err
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("venue returned %d: %s", e.code, e.body)
}

func (v *HTTPVenue) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if v.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.apiKey)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("venue request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
