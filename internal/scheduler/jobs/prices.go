package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/folio/backend/internal/scheduler"
)

// refreshSpacing is the gap between ticker refreshes
const refreshSpacing = 500 * time.Millisecond

// RefreshPricesJob refreshes every held ticker plus the benchmark
// ⭐ SSOT: 가격 수집 스케줄은 이 Job에서만
type RefreshPricesJob struct {
	tickers      HeldTickers
	benchmark    string
	lookbackDays int
	loop         unitLoop
}

// NewRefreshPricesJob creates the price refresh job
func NewRefreshPricesJob(tickers HeldTickers, benchmark string, lookbackDays int) *RefreshPricesJob {
	return &RefreshPricesJob{
		tickers:      tickers,
		benchmark:    benchmark,
		lookbackDays: lookbackDays,
		loop:         unitLoop{Delay: refreshSpacing, Timeout: DefaultUnitTimeout},
	}
}

// Name returns the job name
func (j *RefreshPricesJob) Name() string {
	return "refresh_prices"
}

// Schedule returns the cron schedule (2 AM daily)
func (j *RefreshPricesJob) Schedule() string {
	return "0 0 2 * * *"
}

// Run refreshes each ticker through the ingester
func (j *RefreshPricesJob) Run(ctx context.Context, jc scheduler.JobContext) (scheduler.Result, error) {
	if jc.Prices == nil {
		return scheduler.Result{}, fmt.Errorf("no price refresher configured")
	}

	held, err := j.tickers.DistinctHeldTickers(ctx)
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("list held tickers: %w", err)
	}
	universe := withTicker(held, j.benchmark)
	jc.Logger.WithField("tickers", len(universe)).Info("Refreshing prices")

	return j.loop.run(ctx, jc.Logger, universe, func(ctx context.Context, ticker string) error {
		res, err := jc.Prices.Refresh(ctx, ticker, j.lookbackDays)
		if err != nil {
			return err
		}
		if res.Skipped {
			return errSkip
		}
		return nil
	})
}

// withTicker adds extra to the set and sorts it
func withTicker(tickers []string, extra string) []string {
	seen := make(map[string]bool, len(tickers)+1)
	out := make([]string, 0, len(tickers)+1)
	for _, t := range append(append([]string{}, tickers...), extra) {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
