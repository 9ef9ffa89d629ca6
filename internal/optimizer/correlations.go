package optimizer

import (
	"sort"
	"time"

	"github.com/wonny/folio/backend/internal/indicators"
)

// CorrelationMatrix is the cached payload of the correlations kind
type CorrelationMatrix struct {
	PortfolioID string       `json:"portfolio_id"`
	WindowDays  int          `json:"window_days"`
	Tickers     []string     `json:"tickers"`
	Matrix      [][]*float64 `json:"matrix"`
	Samples     int          `json:"samples"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// Correlations builds the pairwise matrix over tickers with returns.
// Series are trimmed from the front to the shortest length so pairs share dates.
func Correlations(portfolioID string, windowDays int, returns map[string][]float64) CorrelationMatrix {
	tickers := make([]string, 0, len(returns))
	minLen := -1
	for t, r := range returns {
		if len(r) == 0 {
			continue
		}
		tickers = append(tickers, t)
		if minLen == -1 || len(r) < minLen {
			minLen = len(r)
		}
	}
	sort.Strings(tickers)

	series := make([][]float64, len(tickers))
	for i, t := range tickers {
		r := returns[t]
		series[i] = r[len(r)-minLen:]
	}

	m := CorrelationMatrix{
		PortfolioID: portfolioID,
		WindowDays:  windowDays,
		Tickers:     tickers,
		Matrix:      indicators.CorrelationMatrix(series),
		GeneratedAt: time.Now(),
	}
	if minLen > 0 {
		m.Samples = minLen
	}
	return m
}

// Clusters groups tickers whose pairwise correlation reaches min.
// Only groups of two or more are returned, each sorted, ordered by first ticker.
func (m CorrelationMatrix) Clusters(min float64) [][]string {
	n := len(m.Tickers)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if c := m.Matrix[i][j]; c != nil && *c >= min {
				parent[find(j)] = find(i)
			}
		}
	}

	groups := make(map[int][]string)
	for i, t := range m.Tickers {
		root := find(i)
		groups[root] = append(groups[root], t)
	}

	var out [][]string
	for _, g := range groups {
		if len(g) < 2 {
			continue
		}
		sort.Strings(g)
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
