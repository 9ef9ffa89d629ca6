package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/folio/backend/internal/alerts"
	"github.com/wonny/folio/backend/internal/scheduler"
	"github.com/wonny/folio/backend/internal/snapshots"
	"github.com/wonny/folio/backend/pkg/metrics"
)

// DailyRiskSnapshotsJob writes post-close position and portfolio risk rows
type DailyRiskSnapshotsJob struct {
	portfolios Portfolios
	writer     SnapshotWriter
	loop       unitLoop
	now        func() time.Time
}

// NewDailyRiskSnapshotsJob creates the daily snapshot job
func NewDailyRiskSnapshotsJob(portfolios Portfolios, writer SnapshotWriter) *DailyRiskSnapshotsJob {
	return &DailyRiskSnapshotsJob{
		portfolios: portfolios,
		writer:     writer,
		loop:       defaultLoop(),
		now:        time.Now,
	}
}

// Name returns the job name
func (j *DailyRiskSnapshotsJob) Name() string {
	return "daily_risk_snapshots"
}

// Schedule returns the cron schedule (5 PM daily, post-close)
func (j *DailyRiskSnapshotsJob) Schedule() string {
	return "0 0 17 * * *"
}

// Run snapshots every portfolio; an empty portfolio counts as processed
func (j *DailyRiskSnapshotsJob) Run(ctx context.Context, jc scheduler.JobContext) (scheduler.Result, error) {
	ids, err := portfolioIDs(ctx, j.portfolios)
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("list portfolios: %w", err)
	}
	date := j.now()

	return j.loop.run(ctx, jc.Logger, ids, func(ctx context.Context, id string) error {
		res, err := j.writer.WriteDaily(ctx, id, date)
		if errors.Is(err, snapshots.ErrNoHoldings) {
			jc.Logger.WithField("portfolio_id", id).Debug("No holdings, nothing to snapshot")
			return nil
		}
		if err != nil {
			return err
		}
		if len(res.Failed) > 0 {
			jc.Logger.WithFields(map[string]interface{}{
				"portfolio_id": id,
				"failed":       res.Failed,
			}).Warn("Some positions were not snapshotted")
		}
		return nil
	})
}

// CheckThresholdsJob evaluates every portfolio against its adaptive thresholds
type CheckThresholdsJob struct {
	portfolios Portfolios
	evaluator  PortfolioEvaluator
	sink       alerts.Sink
	metrics    *metrics.Recorder
	loop       unitLoop
}

// NewCheckThresholdsJob creates the hourly threshold job
func NewCheckThresholdsJob(portfolios Portfolios, evaluator PortfolioEvaluator, sink alerts.Sink, rec *metrics.Recorder) *CheckThresholdsJob {
	return &CheckThresholdsJob{
		portfolios: portfolios,
		evaluator:  evaluator,
		sink:       sink,
		metrics:    rec,
		loop:       unitLoop{Timeout: DefaultUnitTimeout},
	}
}

// Name returns the job name
func (j *CheckThresholdsJob) Name() string {
	return "check_thresholds"
}

// Schedule returns the cron schedule (hourly)
func (j *CheckThresholdsJob) Schedule() string {
	return "0 0 * * * *"
}

// Run evaluates and persists new alerts per portfolio
func (j *CheckThresholdsJob) Run(ctx context.Context, jc scheduler.JobContext) (scheduler.Result, error) {
	ids, err := portfolioIDs(ctx, j.portfolios)
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("list portfolios: %w", err)
	}

	return j.loop.run(ctx, jc.Logger, ids, func(ctx context.Context, id string) error {
		eval, err := j.evaluator.Evaluate(ctx, id)
		if err != nil {
			return err
		}
		n, err := alerts.Emit(ctx, j.sink, j.metrics, eval.Alerts)
		if err != nil {
			return err
		}
		if n > 0 {
			jc.Logger.WithFields(map[string]interface{}{
				"portfolio_id": id,
				"regime":       eval.Regime,
				"new_alerts":   n,
			}).Info("Threshold alerts raised")
		}
		return nil
	})
}
