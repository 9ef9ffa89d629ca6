package portfolio

import (
	"sort"

	"github.com/wonny/folio/backend/internal/contracts"
)

// Aggregate merges positions that hold the same ticker in different accounts.
// Price becomes the value-weighted average; the result is ordered by ticker.
func Aggregate(positions []contracts.Position) []contracts.Position {
	byTicker := make(map[string]*contracts.Position)
	for _, p := range positions {
		if p.Quantity <= 0 || p.Ticker == "" {
			continue
		}
		if agg, ok := byTicker[p.Ticker]; ok {
			agg.Quantity += p.Quantity
			agg.MarketValue += p.MarketValue
			if agg.Sector == "" {
				agg.Sector = p.Sector
			}
			continue
		}
		cp := p
		cp.AccountID = ""
		byTicker[p.Ticker] = &cp
	}

	out := make([]contracts.Position, 0, len(byTicker))
	for _, p := range byTicker {
		if p.Quantity > 0 {
			p.Price = p.MarketValue / p.Quantity
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Weights returns market-value weights summing to 1 and the total value.
// Positions without value are left out.
func Weights(positions []contracts.Position) (map[string]float64, float64) {
	var total float64
	for _, p := range positions {
		if p.MarketValue > 0 {
			total += p.MarketValue
		}
	}

	weights := make(map[string]float64)
	if total == 0 {
		return weights, 0
	}
	for _, p := range positions {
		if p.MarketValue > 0 {
			weights[p.Ticker] += p.MarketValue / total
		}
	}
	return weights, total
}

// Tickers returns the distinct tickers in order
func Tickers(positions []contracts.Position) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(positions))
	for _, p := range positions {
		if p.Ticker != "" && !seen[p.Ticker] {
			seen[p.Ticker] = true
			out = append(out, p.Ticker)
		}
	}
	sort.Strings(out)
	return out
}
