package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/internal/indicators"
)

// DefaultBetaWindow is the number of daily returns behind each rolling beta
const DefaultBetaWindow = indicators.MinBetaPoints

// BetaPoint is the trailing beta ending on Date
type BetaPoint struct {
	Date time.Time `json:"date"`
	Beta float64   `json:"beta"`
}

// RollingBeta is the cached payload of the rolling_beta kind
type RollingBeta struct {
	Ticker      string      `json:"ticker"`
	Benchmark   string      `json:"benchmark"`
	WindowDays  int         `json:"window_days"`
	Window      int         `json:"window"`
	Beta        *float64    `json:"beta"` // over the whole aligned window
	Points      []BetaPoint `json:"points"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// ComputeRollingBeta intersects the two series by date and slides a window of
// `window` log returns across them (at least DefaultBetaWindow).
// Windows with zero benchmark variance are skipped.
func ComputeRollingBeta(ticker, benchmark string, windowDays int, asset, bench []contracts.PricePoint, window int) (RollingBeta, error) {
	if window < DefaultBetaWindow {
		window = DefaultBetaWindow
	}
	rb := RollingBeta{
		Ticker:      ticker,
		Benchmark:   benchmark,
		WindowDays:  windowDays,
		Window:      window,
		Points:      []BetaPoint{},
		GeneratedAt: time.Now(),
	}

	benchByDate := make(map[time.Time]float64, len(bench))
	for _, p := range bench {
		benchByDate[contracts.DateOnly(p.Date)] = p.Close
	}

	var dates []time.Time
	var ac, bc []float64
	for _, p := range asset {
		d := contracts.DateOnly(p.Date)
		if c, ok := benchByDate[d]; ok {
			dates = append(dates, d)
			ac = append(ac, p.Close)
			bc = append(bc, c)
		}
	}

	ra, err := indicators.LogReturns(ac)
	if err != nil {
		return rb, fmt.Errorf("%s rolling beta: %w", ticker, err)
	}
	rbench, err := indicators.LogReturns(bc)
	if err != nil {
		return rb, fmt.Errorf("%s rolling beta: %w", ticker, err)
	}
	if len(ra) < window {
		return rb, fmt.Errorf("%s rolling beta needs %d aligned returns, got %d: %w",
			ticker, window, len(ra), indicators.ErrInsufficientData)
	}

	rb.Beta = indicators.Ptr(indicators.Beta(ra, rbench))

	// return i spans dates[i] -> dates[i+1]
	for end := window; end <= len(ra); end++ {
		beta, err := indicators.Beta(ra[end-window:end], rbench[end-window:end])
		if err != nil || math.IsNaN(beta) || math.IsInf(beta, 0) {
			continue
		}
		rb.Points = append(rb.Points, BetaPoint{Date: dates[end], Beta: beta})
	}
	return rb, nil
}
