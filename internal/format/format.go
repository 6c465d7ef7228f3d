// Package format renders venue data as aligned plain-text lines for
// the console transcript. The agent and the slash commands share these
// so the model and the user see the same shapes.
package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pitline/pitline/schema"
)

// Balances renders asset balances, largest total first.
func Balances(balances []schema.Balance) []string {
	if len(balances) == 0 {
		return []string{"no balances"}
	}
	sorted := append([]schema.Balance(nil), balances...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Total != sorted[j].Total {
			return sorted[i].Total > sorted[j].Total
		}
		return sorted[i].Asset < sorted[j].Asset
	})
	rows := [][]string{{"asset", "total", "free"}}
	for _, b := range sorted {
		rows = append(rows, []string{b.Asset, Amount(b.Total), Amount(b.Free)})
	}
	return table(rows)
}

// Positions renders open positions sorted by symbol.
func Positions(positions []schema.Position) []string {
	if len(positions) == 0 {
		return []string{"no open positions"}
	}
	sorted := append([]schema.Position(nil), positions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })
	rows := [][]string{{"symbol", "size", "entry", "mark", "pnl"}}
	for _, p := range sorted {
		rows = append(rows, []string{
			p.Symbol,
			Amount(p.Size),
			Amount(p.EntryPrice),
			Amount(p.MarkPrice),
			signedAmount(p.PnL),
		})
	}
	return table(rows)
}

// Orders renders orders in venue order (typically submission order).
func Orders(orders []schema.Order) []string {
	if len(orders) == 0 {
		return []string{"no open orders"}
	}
	rows := [][]string{{"id", "symbol", "side", "size", "price", "status"}}
	for _, o := range orders {
		price := "market"
		if o.Price > 0 {
			price = Amount(o.Price)
		}
		rows = append(rows, []string{
			o.ID, o.Symbol, string(o.Side), Amount(o.Size), price, o.Status,
		})
	}
	return table(rows)
}

// Prices renders a symbol→price map sorted by symbol.
func Prices(prices map[string]float64) []string {
	if len(prices) == 0 {
		return []string{"no prices"}
	}
	symbols := make([]string, 0, len(prices))
	for sym := range prices {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	rows := make([][]string, 0, len(symbols)+1)
	rows = append(rows, []string{"symbol", "price"})
	for _, sym := range symbols {
		rows = append(rows, []string{sym, Amount(prices[sym])})
	}
	return table(rows)
}

// OrderLine summarizes one acknowledged order as a single line.
func OrderLine(o schema.Order) string {
	price := "market"
	if o.Price > 0 {
		price = "@ " + Amount(o.Price)
	}
	return fmt.Sprintf("%s %s %s %s (%s, id %s)",
		o.Side, Amount(o.Size), o.Symbol, price, o.Status, o.ID)
}

// Amount formats a quantity or price without trailing zero noise.
// Values keep up to 8 decimals; whole numbers render bare.
func Amount(v float64) string {
	s := strconv.FormatFloat(v, 'f', 8, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

func signedAmount(v float64) string {
	if v > 0 {
		return "+" + Amount(v)
	}
	return Amount(v)
}

// table left-aligns every column to the widest cell. The first row is
// the header.
func table(rows [][]string) []string {
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		var b strings.Builder
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			if i == len(row)-1 {
				b.WriteString(cell)
				continue
			}
			b.WriteString(cell)
			b.WriteString(strings.Repeat(" ", widths[i]-len(cell)))
		}
		lines = append(lines, b.String())
	}
	return lines
}
