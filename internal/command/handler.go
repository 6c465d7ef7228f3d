package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pitline/pitline/console"
	"github.com/pitline/pitline/internal/envfile"
	"github.com/pitline/pitline/internal/format"
	"github.com/pitline/pitline/internal/logx"
	"github.com/pitline/pitline/internal/usage"
	"github.com/pitline/pitline/internal/venue"
	"github.com/pitline/pitline/internal/version"
	"github.com/pitline/pitline/schema"
)

// Config configures slash command behavior. Usage and UserID are
// optional; without them /usage reports nothing recorded.
type Config struct {
	Venue   venue.Venue
	EnvPath string
	Usage   *usage.Meter
	UserID  schema.UserID
}

// Handler routes slash commands to the venue and the .env file. It
// implements console.CommandHandler.
type Handler struct {
	cfg Config
}

// NewHandler constructs a command handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{cfg: cfg}
}

// Handle executes one slash command line.
func (h *Handler) Handle(ctx context.Context, input string) (console.CommandResult, error) {
	cmd, ok := Parse(input)
	if !ok {
		return console.CommandResult{}, schema.ErrUnknownCommand
	}
	log := logx.Ctx(ctx).With("command", cmd.Name, "args", len(cmd.Args))
	log.Info("command slash request")
	switch cmd.Name {
	case "":
		log.Warn("command slash rejected", "reason", "empty")
		return console.CommandResult{}, fmt.Errorf("invalid command")
	case "balances":
		return h.handleBalances(ctx)
	case "positions":
		return h.handlePositions(ctx)
	case "orders":
		return h.handleOrders(ctx)
	case "price", "prices":
		return h.handlePrices(ctx, cmd)
	case "buy":
		return h.handleOrder(ctx, schema.SideBuy, cmd)
	case "sell":
		return h.handleOrder(ctx, schema.SideSell, cmd)
	case "cancel":
		return h.handleCancel(ctx, cmd)
	case "env":
		return h.handleEnv(ctx, cmd)
	case "usage":
		return console.CommandResult{Lines: h.cfg.Usage.Totals(h.cfg.UserID).Lines()}, nil
	case "version":
		return console.CommandResult{Lines: []string{
			fmt.Sprintf("%s %s", version.Module(), version.CurrentWithDirty()),
		}}, nil
	default:
		log.Warn("command slash rejected", "reason", "unknown")
		return console.CommandResult{}, fmt.Errorf("%w: /%s", schema.ErrUnknownCommand, cmd.Name)
	}
}

func (h *Handler) handleBalances(ctx context.Context) (console.CommandResult, error) {
	balances, err := h.cfg.Venue.Balances(ctx)
	if err != nil {
		return console.CommandResult{}, fmt.Errorf("fetch balances: %w", err)
	}
	return console.CommandResult{Lines: format.Balances(balances)}, nil
}

func (h *Handler) handlePositions(ctx context.Context) (console.CommandResult, error) {
	positions, err := h.cfg.Venue.Positions(ctx)
	if err != nil {
		return console.CommandResult{}, fmt.Errorf("fetch positions: %w", err)
	}
	return console.CommandResult{Lines: format.Positions(positions)}, nil
}

func (h *Handler) handleOrders(ctx context.Context) (console.CommandResult, error) {
	orders, err := h.cfg.Venue.OpenOrders(ctx)
	if err != nil {
		return console.CommandResult{}, fmt.Errorf("fetch orders: %w", err)
	}
	return console.CommandResult{Lines: format.Orders(orders)}, nil
}

func (h *Handler) handlePrices(ctx context.Context, cmd Command) (console.CommandResult, error) {
	if len(cmd.Args) == 0 {
		return console.CommandResult{}, fmt.Errorf("usage: /price SYMBOL [SYMBOL...]")
	}
	symbols := make([]string, 0, len(cmd.Args))
	for _, arg := range cmd.Args {
		symbols = append(symbols, strings.ToUpper(arg))
	}
	prices, err := h.cfg.Venue.Prices(ctx, symbols)
	if err != nil {
		return console.CommandResult{}, fmt.Errorf("fetch prices: %w", err)
	}
	return console.CommandResult{Lines: format.Prices(prices)}, nil
}

func (h *Handler) handleOrder(ctx context.Context, side schema.OrderSide, cmd Command) (console.CommandResult, error) {
	if len(cmd.Args) < 2 || len(cmd.Args) > 3 {
		return console.CommandResult{}, fmt.Errorf("usage: /%s SYMBOL SIZE [LIMIT_PRICE]", side)
	}
	size, err := strconv.ParseFloat(cmd.Args[1], 64)
	if err != nil || size <= 0 {
		return console.CommandResult{}, fmt.Errorf("invalid size %q", cmd.Args[1])
	}
	req := schema.OrderRequest{
		Symbol: strings.ToUpper(cmd.Args[0]),
		Side:   side,
		Size:   size,
	}
	if len(cmd.Args) == 3 {
		price, err := strconv.ParseFloat(cmd.Args[2], 64)
		if err != nil || price <= 0 {
			return console.CommandResult{}, fmt.Errorf("invalid price %q", cmd.Args[2])
		}
		req.Price = price
	}
	order, err := h.cfg.Venue.PlaceOrder(ctx, req)
	if err != nil {
		return console.CommandResult{}, fmt.Errorf("place order: %w", err)
	}
	logx.WithOrder(logx.Ctx(ctx), order).Info("command order placed")
	return console.CommandResult{Lines: []string{format.OrderLine(order)}}, nil
}

func (h *Handler) handleCancel(ctx context.Context, cmd Command) (console.CommandResult, error) {
	if len(cmd.Args) != 1 {
		return console.CommandResult{}, fmt.Errorf("usage: /cancel ORDER_ID")
	}
	if err := h.cfg.Venue.CancelOrder(ctx, cmd.Args[0]); err != nil {
		return console.CommandResult{}, fmt.Errorf("cancel order %s: %w", cmd.Args[0], err)
	}
	return console.CommandResult{Lines: []string{"cancelled order " + cmd.Args[0]}}, nil
}

// handleEnv shows, sets, or removes .env entries. Values of keys that
// look secret are masked in listings.
func (h *Handler) handleEnv(ctx context.Context, cmd Command) (console.CommandResult, error) {
	if h.cfg.EnvPath == "" {
		return console.CommandResult{}, fmt.Errorf("no env file configured")
	}
	env, err := envfile.Load(h.cfg.EnvPath)
	if err != nil {
		return console.CommandResult{}, err
	}
	switch {
	case len(cmd.Args) == 0:
		keys := env.Keys()
		if len(keys) == 0 {
			return console.CommandResult{Lines: []string{"env file is empty"}}, nil
		}
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			v, _ := env.Get(k)
			lines = append(lines, k+"="+maskSecret(k, v))
		}
		return console.CommandResult{Lines: lines}, nil
	case len(cmd.Args) == 2 && strings.EqualFold(cmd.Args[0], "unset"):
		key := cmd.Args[1]
		if _, ok := env.Get(key); !ok {
			return console.CommandResult{}, fmt.Errorf("%s is not set", key)
		}
		env.Unset(key)
		if err := env.Save(); err != nil {
			return console.CommandResult{}, err
		}
		logx.Ctx(ctx).Info("command env unset", "key", key)
		return console.CommandResult{Lines: []string{"unset " + key}}, nil
	case len(cmd.Args) == 1 && strings.Contains(cmd.Args[0], "="):
		key, value, _ := strings.Cut(cmd.Args[0], "=")
		if key == "" {
			return console.CommandResult{}, fmt.Errorf("usage: /env KEY=VALUE")
		}
		env.Set(key, value)
		if err := env.Save(); err != nil {
			return console.CommandResult{}, err
		}
		logx.Ctx(ctx).Info("command env set", "key", key)
		return console.CommandResult{Lines: []string{key + "=" + maskSecret(key, value)}}, nil
	case len(cmd.Args) == 1:
		key := cmd.Args[0]
		v, ok := env.Get(key)
		if !ok {
			return console.CommandResult{}, fmt.Errorf("%s is not set", key)
		}
		return console.CommandResult{Lines: []string{key + "=" + v}}, nil
	default:
		return console.CommandResult{}, fmt.Errorf("usage: /env [KEY|KEY=VALUE|unset KEY]")
	}
}

func maskSecret(key, value string) string {
	upper := strings.ToUpper(key)
	for _, marker := range []string{"KEY", "SECRET", "TOKEN", "PASS"} {
		if strings.Contains(upper, marker) {
			if len(value) <= 4 {
				return "****"
			}
			return value[:2] + "****" + value[len(value)-2:]
		}
	}
	return value
}
