package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/folio/backend/internal/scheduler"
)

// WatchlistMonitoringJob evaluates watchlist rules every 30 minutes
type WatchlistMonitoringJob struct {
	tickers WatchedTickers
	monitor TickerMonitor
	loop    unitLoop
}

// NewWatchlistMonitoringJob creates the watchlist job
func NewWatchlistMonitoringJob(tickers WatchedTickers, monitor TickerMonitor) *WatchlistMonitoringJob {
	return &WatchlistMonitoringJob{
		tickers: tickers,
		monitor: monitor,
		loop:    defaultLoop(),
	}
}

// Name returns the job name
func (j *WatchlistMonitoringJob) Name() string {
	return "watchlist_monitoring"
}

// Schedule returns the interval schedule
func (j *WatchlistMonitoringJob) Schedule() string {
	return "@every 30m"
}

// Run checks each watched ticker; cooldowns are enforced by the monitor
func (j *WatchlistMonitoringJob) Run(ctx context.Context, jc scheduler.JobContext) (scheduler.Result, error) {
	tickers, err := j.tickers.DistinctWatchlistTickers(ctx)
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("list watchlist tickers: %w", err)
	}

	fired := 0
	res, err := j.loop.run(ctx, jc.Logger, tickers, func(ctx context.Context, ticker string) error {
		alerts, err := j.monitor.CheckTicker(ctx, ticker)
		fired += len(alerts)
		return err
	})
	if fired > 0 {
		jc.Logger.WithField("alerts", fired).Info("Watchlist alerts raised")
	}
	return res, err
}
