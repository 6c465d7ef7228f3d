package format

import (
	"strings"
	"testing"

	"github.com/pitline/pitline/schema"
)

func TestAmountTrimsTrailingZeros(t *testing.T) {
	cases := map[float64]string{
		65000:      "65000",
		0.1:        "0.1",
		0.00000001: "0.00000001",
		0:          "0",
		-12.5:      "-12.5",
	}
	for in, want := range cases {
		if got := Amount(in); got != want {
			t.Fatalf("Amount(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestBalancesSortedByTotal(t *testing.T) {
	lines := Balances([]schema.Balance{
		{Asset: "BTC", Total: 0.5, Free: 0.5},
		{Asset: "USDT", Total: 10000, Free: 6500},
	})
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d: %v", len(lines), lines)
	}
	if !strings.HasPrefix(lines[1], "USDT") {
		t.Fatalf("expected USDT first, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "0.5") {
		t.Fatalf("expected BTC amount, got %q", lines[2])
	}
}

func TestBalancesEmpty(t *testing.T) {
	lines := Balances(nil)
	if len(lines) != 1 || lines[0] != "no balances" {
		t.Fatalf("got %v", lines)
	}
}

func TestPositionsShowsSignedPnL(t *testing.T) {
	lines := Positions([]schema.Position{
		{Symbol: "BTC-USDT", Size: 0.1, EntryPrice: 65000, MarkPrice: 66000, PnL: 100},
		{Symbol: "ETH-USDT", Size: 2, EntryPrice: 3200, MarkPrice: 3100, PnL: -200},
	})
	if !strings.Contains(lines[1], "+100") {
		t.Fatalf("expected +100 in %q", lines[1])
	}
	if !strings.Contains(lines[2], "-200") {
		t.Fatalf("expected -200 in %q", lines[2])
	}
}

func TestOrdersMarketPrice(t *testing.T) {
	lines := Orders([]schema.Order{
		{ID: "sim-1", Symbol: "BTC-USDT", Side: schema.SideBuy, Size: 0.1, Price: 0, Status: "filled"},
	})
	if !strings.Contains(lines[1], "market") {
		t.Fatalf("expected market price marker, got %q", lines[1])
	}
}

func TestTableColumnsAligned(t *testing.T) {
	lines := Orders([]schema.Order{
		{ID: "sim-1", Symbol: "BTC-USDT", Side: schema.SideBuy, Size: 0.1, Price: 64000, Status: "open"},
		{ID: "sim-22", Symbol: "ETH-USDT", Side: schema.SideSell, Size: 10, Price: 3300, Status: "open"},
	})
	first := strings.Index(lines[1], "BTC-USDT")
	second := strings.Index(lines[2], "ETH-USDT")
	if first != second {
		t.Fatalf("symbol column misaligned: %d vs %d\n%q\n%q", first, second, lines[1], lines[2])
	}
}

func TestOrderLine(t *testing.T) {
	got := OrderLine(schema.Order{
		ID: "sim-3", Symbol: "SOL-USDT", Side: schema.SideBuy, Size: 5, Price: 140, Status: "open",
	})
	want := "buy 5 SOL-USDT @ 140 (open, id sim-3)"
	if got != want {
		t.Fatalf("OrderLine = %q, want %q", got, want)
	}
}
