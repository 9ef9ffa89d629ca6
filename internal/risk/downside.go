package risk

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/internal/indicators"
)

// BootstrapConfig controls the historical bootstrap of multi-day losses
// ⭐ SSOT: 재현성을 위해 시드를 고정
type BootstrapConfig struct {
	NumSimulations int   `json:"num_simulations"`
	HoldingPeriod  int   `json:"holding_period"` // days
	Seed           int64 `json:"seed"`
	MinSamples     int   `json:"min_samples"`
}

// DefaultBootstrapConfig simulates 5-day outcomes with a fixed seed
func DefaultBootstrapConfig() BootstrapConfig {
	return BootstrapConfig{
		NumSimulations: 5000,
		HoldingPeriod:  5,
		Seed:           42,
		MinSamples:     30,
	}
}

// DownsideReport is the cached downside-risk payload of a portfolio
type DownsideReport struct {
	RunID             string             `json:"run_id"`
	PortfolioID       string             `json:"portfolio_id"`
	Benchmark         string             `json:"benchmark"`
	LookbackDays      int                `json:"lookback_days"`
	Samples           int                `json:"samples"`
	DownsideDeviation *float64           `json:"downside_deviation"` // annualized percent
	Sortino           *float64           `json:"sortino"`
	VaR95             *float64           `json:"var_95"`
	VaR99             *float64           `json:"var_99"`
	ES95              *float64           `json:"es_95"`
	ES99              *float64           `json:"es_99"`
	WorstDay          float64            `json:"worst_day"` // percent
	DownsideCapture   *float64           `json:"downside_capture,omitempty"`
	Bootstrap         *BootstrapResult   `json:"bootstrap,omitempty"`
	Weights           map[string]float64 `json:"weights"`
	GeneratedAt       time.Time          `json:"generated_at"`
}

// BootstrapResult summarizes simulated holding-period returns, in percent
type BootstrapResult struct {
	Config      BootstrapConfig    `json:"config"`
	MeanReturn  float64            `json:"mean_return"`
	VaR95       float64            `json:"var_95"`
	ES95        float64            `json:"es_95"`
	VaR99       float64            `json:"var_99"`
	Percentiles map[string]float64 `json:"percentiles"`
}

// PortfolioReturns combines per-ticker closes into one weighted log-return series.
// Returns are taken over the dates every weighted ticker has a close for, so a
// holiday on one listing never pairs another ticker's return with the wrong day.
// Tickers without a series are skipped.
func PortfolioReturns(weights map[string]float64, series map[string][]contracts.PricePoint) ([]float64, error) {
	returns, _, err := weightedReturns(weights, series, nil)
	return returns, err
}

// PortfolioBenchReturns is PortfolioReturns with the benchmark joined into the
// date intersection. Both slices cover the same days.
func PortfolioBenchReturns(weights map[string]float64, series map[string][]contracts.PricePoint, bench []contracts.PricePoint) ([]float64, []float64, error) {
	if len(bench) == 0 {
		return nil, nil, fmt.Errorf("benchmark: %w", indicators.ErrInsufficientData)
	}
	return weightedReturns(weights, series, bench)
}

func weightedReturns(weights map[string]float64, series map[string][]contracts.PricePoint, bench []contracts.PricePoint) ([]float64, []float64, error) {
	codes := make([]string, 0, len(weights))
	for code := range weights {
		if _, ok := series[code]; ok {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return nil, nil, fmt.Errorf("portfolio returns: %w", indicators.ErrInsufficientData)
	}
	sort.Strings(codes)

	byDate := make([]map[time.Time]float64, len(codes))
	for i, code := range codes {
		byDate[i] = closesByDate(series[code])
	}
	var benchByDate map[time.Time]float64
	if bench != nil {
		benchByDate = closesByDate(bench)
	}

	// 첫 종목의 날짜 중 모든 종목(및 벤치마크)에 존재하는 날짜만 사용
	var dates []time.Time
	for d := range byDate[0] {
		shared := true
		for _, m := range byDate[1:] {
			if _, ok := m[d]; !ok {
				shared = false
				break
			}
		}
		if shared && benchByDate != nil {
			_, shared = benchByDate[d]
		}
		if shared {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(a, b int) bool { return dates[a].Before(dates[b]) })
	if len(dates) < 2 {
		return nil, nil, fmt.Errorf("portfolio returns: %d shared dates: %w", len(dates), indicators.ErrInsufficientData)
	}

	out := make([]float64, len(dates)-1)
	closes := make([]float64, len(dates))
	for i, code := range codes {
		for k, d := range dates {
			closes[k] = byDate[i][d]
		}
		r, err := indicators.LogReturns(closes)
		if err != nil {
			return nil, nil, fmt.Errorf("%s returns: %w", code, err)
		}
		w := weights[code]
		for k := range out {
			out[k] += w * r[k]
		}
	}

	if benchByDate == nil {
		return out, nil, nil
	}
	for k, d := range dates {
		closes[k] = benchByDate[d]
	}
	br, err := indicators.LogReturns(closes)
	if err != nil {
		return nil, nil, fmt.Errorf("benchmark returns: %w", err)
	}
	return out, br, nil
}

func closesByDate(points []contracts.PricePoint) map[time.Time]float64 {
	m := make(map[time.Time]float64, len(points))
	for _, p := range points {
		m[contracts.DateOnly(p.Date)] = p.Close
	}
	return m
}

// NewDownsideReport computes the downside bundle for a weighted return series.
// Downside capture is set separately from a date-paired benchmark series.
func NewDownsideReport(portfolioID string, returns []float64, riskFree float64, cfg BootstrapConfig) (*DownsideReport, error) {
	if len(returns) < 2 {
		return nil, fmt.Errorf("downside report: %w", indicators.ErrInsufficientData)
	}

	r := &DownsideReport{
		RunID:       uuid.New().String(),
		PortfolioID: portfolioID,
		Samples:     len(returns),
		GeneratedAt: time.Now(),
	}

	if dd, err := indicators.DownsideDeviation(returns); err == nil {
		annual := dd * math.Sqrt(indicators.TradingDays) * 100
		r.DownsideDeviation = &annual
	}
	r.Sortino = indicators.Ptr(indicators.Sortino(returns, riskFree))
	r.VaR95 = indicators.Ptr(indicators.VaR(returns, 0.95))
	r.VaR99 = indicators.Ptr(indicators.VaR(returns, 0.99))
	r.ES95 = indicators.Ptr(indicators.ExpectedShortfall(returns, 0.95))
	r.ES99 = indicators.Ptr(indicators.ExpectedShortfall(returns, 0.99))
	r.WorstDay = indicators.Sorted(returns)[0] * 100

	if len(returns) >= cfg.MinSamples && cfg.NumSimulations > 0 && cfg.HoldingPeriod > 0 {
		r.Bootstrap = bootstrap(returns, cfg)
	}
	return r, nil
}

// DownsideCapture is mean portfolio return over mean benchmark return on down days, in percent.
// Both series must be paired by date; mismatched lengths yield nil.
func DownsideCapture(returns, bench []float64) *float64 {
	if len(returns) != len(bench) {
		return nil
	}
	var p, b []float64
	for i := range bench {
		if bench[i] < 0 {
			p = append(p, returns[i])
			b = append(b, bench[i])
		}
	}
	if len(b) == 0 {
		return nil
	}
	mb := indicators.Mean(b)
	if mb == 0 {
		return nil
	}
	v := indicators.Mean(p) / mb * 100
	return &v
}

// bootstrap resamples daily log returns into holding-period outcomes
func bootstrap(returns []float64, cfg BootstrapConfig) *BootstrapResult {
	rng := rand.New(rand.NewSource(cfg.Seed))

	outcomes := make([]float64, cfg.NumSimulations)
	for i := range outcomes {
		cum := 0.0
		for d := 0; d < cfg.HoldingPeriod; d++ {
			cum += returns[rng.Intn(len(returns))]
		}
		outcomes[i] = math.Expm1(cum)
	}

	sorted := indicators.Sorted(outcomes)
	tail := func(confidence float64) (float64, float64) {
		idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx] * 100, indicators.Mean(sorted[:idx+1]) * 100
	}
	var95, es95 := tail(0.95)
	var99, _ := tail(0.99)

	percentiles := make(map[string]float64)
	for _, p := range []int{1, 5, 10, 25, 50, 75, 90, 95, 99} {
		percentiles[fmt.Sprintf("p%d", p)] = indicators.Percentile(sorted, float64(p)) * 100
	}

	return &BootstrapResult{
		Config:      cfg,
		MeanReturn:  indicators.Mean(outcomes) * 100,
		VaR95:       var95,
		ES95:        es95,
		VaR99:       var99,
		Percentiles: percentiles,
	}
}
