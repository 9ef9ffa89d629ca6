package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/folio/backend/internal/cachestore"
	"github.com/wonny/folio/backend/internal/regime"
	"github.com/wonny/folio/backend/internal/scheduler"
)

// GenerateForecastsJob drops the beta forecast caches so the next
// rolling_beta_cache run rebuilds them from refreshed prices
type GenerateForecastsJob struct {
	cache *cachestore.Store
}

// NewGenerateForecastsJob creates the forecast cache invalidation job
func NewGenerateForecastsJob(cache *cachestore.Store) *GenerateForecastsJob {
	return &GenerateForecastsJob{cache: cache}
}

// Name returns the job name
func (j *GenerateForecastsJob) Name() string {
	return "generate_forecasts"
}

// Schedule returns the cron schedule (4 AM daily, after refresh_prices)
func (j *GenerateForecastsJob) Schedule() string {
	return "0 0 4 * * *"
}

// Run invalidates every rolling beta entry
func (j *GenerateForecastsJob) Run(ctx context.Context, jc scheduler.JobContext) (scheduler.Result, error) {
	n, err := j.cache.InvalidateKind(ctx, cachestore.KindRollingBeta)
	if err != nil {
		return scheduler.Result{}, err
	}
	jc.Logger.WithField("invalidated", n).Info("Beta forecast caches invalidated")
	return scheduler.Result{ItemsProcessed: int(n)}, nil
}

// MarketRegimeUpdateJob classifies today's market regime
// ⭐ SSOT: 레짐 업데이트 스케줄은 이 Job에서만
type MarketRegimeUpdateJob struct {
	regimes RegimeRunner
	now     func() time.Time
}

// NewMarketRegimeUpdateJob creates the daily regime job
func NewMarketRegimeUpdateJob(regimes RegimeRunner) *MarketRegimeUpdateJob {
	return &MarketRegimeUpdateJob{regimes: regimes, now: time.Now}
}

// Name returns the job name
func (j *MarketRegimeUpdateJob) Name() string {
	return "market_regime_update"
}

// Schedule returns the cron schedule (5 PM daily, post-close)
func (j *MarketRegimeUpdateJob) Schedule() string {
	return "0 0 17 * * *"
}

// Run classifies and persists the regime
func (j *MarketRegimeUpdateJob) Run(ctx context.Context, jc scheduler.JobContext) (scheduler.Result, error) {
	r, err := j.regimes.Update(ctx, j.now())
	if err != nil {
		return scheduler.Result{ItemsFailed: 1}, fmt.Errorf("update regime: %w", err)
	}
	jc.Logger.WithFields(map[string]interface{}{
		"regime":     r.Type,
		"confidence": r.Confidence,
		"multiplier": r.ThresholdMultiplier,
	}).Info("Market regime updated")
	return scheduler.Result{ItemsProcessed: 1}, nil
}

// RegimeForecastJob emits HMM forecasts for the configured horizons
type RegimeForecastJob struct {
	regimes RegimeRunner
	market  string
	now     func() time.Time
}

// NewRegimeForecastJob creates the regime forecast job
func NewRegimeForecastJob(regimes RegimeRunner, market string) *RegimeForecastJob {
	return &RegimeForecastJob{regimes: regimes, market: market, now: time.Now}
}

// Name returns the job name
func (j *RegimeForecastJob) Name() string {
	return "regime_forecast"
}

// Schedule returns the cron schedule (5:30 PM daily, after market_regime_update)
func (j *RegimeForecastJob) Schedule() string {
	return "0 30 17 * * *"
}

// Run forecasts every horizon; a missing model fails the run with a clear message
func (j *RegimeForecastJob) Run(ctx context.Context, jc scheduler.JobContext) (scheduler.Result, error) {
	forecasts, err := j.regimes.Forecast(ctx, j.now())
	if errors.Is(err, regime.ErrNoModel) {
		return scheduler.Result{}, fmt.Errorf("market %s has no trained HMM model, run `folio regime train` first: %w", j.market, err)
	}
	if err != nil {
		return scheduler.Result{ItemsFailed: 1}, fmt.Errorf("forecast regimes: %w", err)
	}

	for _, f := range forecasts {
		jc.Logger.WithFields(map[string]interface{}{
			"horizon_days": f.HorizonDays,
			"predicted":    f.PredictedRegime,
			"confidence":   f.Confidence,
		}).Info("Regime forecast saved")
	}
	return scheduler.Result{ItemsProcessed: len(forecasts)}, nil
}
