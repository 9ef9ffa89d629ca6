package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/folio/backend/internal/cachestore"
	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/internal/indicators"
	"github.com/wonny/folio/backend/internal/optimizer"
	"github.com/wonny/folio/backend/internal/portfolio"
	"github.com/wonny/folio/backend/internal/risk"
	"github.com/wonny/folio/backend/internal/scheduler"
)

// DownsideUnitTimeout bounds the bootstrap-heavy downside computation
const DownsideUnitTimeout = 5 * time.Minute

// CacheJobConfig holds the windows shared by the cache jobs
type CacheJobConfig struct {
	Benchmark         string
	CorrelationWindow int // calendar days
	BetaWindow        int // calendar days
	DownsideLookback  int // calendar days
	RiskFreeRate      float64
}

// DefaultCacheJobConfig returns the default windows
func DefaultCacheJobConfig() CacheJobConfig {
	return CacheJobConfig{
		Benchmark:         "SPY",
		CorrelationWindow: 90,
		BetaWindow:        90,
		DownsideLookback:  252,
		RiskFreeRate:      0.045,
	}
}

// logReturns loads closes in [now-days, now] and converts them to log returns
func logReturns(ctx context.Context, prices PriceReader, ticker string, now time.Time, days int) ([]contracts.PricePoint, []float64, error) {
	points, err := prices.GetRange(ctx, ticker, now.AddDate(0, 0, -days), now)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s prices: %w", ticker, err)
	}
	returns, err := indicators.LogReturns(contracts.Closes(points))
	if err != nil {
		return points, nil, fmt.Errorf("%s returns: %w", ticker, err)
	}
	return points, returns, nil
}

// fresh turns a live cache entry into errSkip
func fresh(ctx context.Context, cache *cachestore.Store, key cachestore.Key) error {
	ok, err := cache.Fresh(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return errSkip
	}
	return nil
}

// OptimizationCacheJob recomputes allocation recommendations and correlations
type OptimizationCacheJob struct {
	portfolios Portfolios
	snapshots  SnapshotReader
	prices     PriceReader
	cache      *cachestore.Store
	analyzer   *optimizer.Analyzer
	cfg        CacheJobConfig
	loop       unitLoop
	now        func() time.Time
}

// NewOptimizationCacheJob creates the optimization cache job
func NewOptimizationCacheJob(portfolios Portfolios, snaps SnapshotReader, prices PriceReader, cache *cachestore.Store, analyzer *optimizer.Analyzer, cfg CacheJobConfig) *OptimizationCacheJob {
	return &OptimizationCacheJob{
		portfolios: portfolios,
		snapshots:  snaps,
		prices:     prices,
		cache:      cache,
		analyzer:   analyzer,
		cfg:        cfg,
		loop:       defaultLoop(),
		now:        time.Now,
	}
}

// Name returns the job name
func (j *OptimizationCacheJob) Name() string {
	return "optimization_cache"
}

// Schedule returns the cron schedule (every 6 hours)
func (j *OptimizationCacheJob) Schedule() string {
	return "0 0 */6 * * *"
}

// Run analyzes each portfolio whose cached result has expired
func (j *OptimizationCacheJob) Run(ctx context.Context, jc scheduler.JobContext) (scheduler.Result, error) {
	ids, err := portfolioIDs(ctx, j.portfolios)
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("list portfolios: %w", err)
	}

	return j.loop.run(ctx, jc.Logger, ids, func(ctx context.Context, id string) error {
		key := cachestore.OptimizationKey(id)
		if err := fresh(ctx, j.cache, key); err != nil {
			return err
		}
		now := j.now()

		raw, err := j.portfolios.Positions(ctx, id)
		if err != nil {
			return fmt.Errorf("load positions: %w", err)
		}
		cash, err := j.portfolios.CashBalance(ctx, id)
		if err != nil {
			return fmt.Errorf("load cash: %w", err)
		}
		held := portfolio.Aggregate(raw)

		scores, err := j.riskScores(ctx, id)
		if err != nil {
			return err
		}

		returns := make(map[string][]float64, len(held))
		for _, p := range held {
			_, r, err := logReturns(ctx, j.prices, p.Ticker, now, j.cfg.CorrelationWindow)
			if err != nil {
				jc.Logger.WithError(err).Ticker(p.Ticker).Debug("Left out of correlations")
				continue
			}
			returns[p.Ticker] = r
		}
		corr := optimizer.Correlations(id, j.cfg.CorrelationWindow, returns)

		result := j.analyzer.Analyze(optimizer.Input{
			PortfolioID:  id,
			Positions:    held,
			Cash:         cash,
			RiskScores:   scores,
			Correlations: &corr,
		})

		if err := j.cache.Put(ctx, cachestore.CorrelationsKey(id, j.cfg.CorrelationWindow), corr, 0); err != nil {
			return err
		}
		return j.cache.Put(ctx, key, result, 0)
	})
}

// riskScores reads position scores from the latest snapshot date
func (j *OptimizationCacheJob) riskScores(ctx context.Context, id string) (map[string]float64, error) {
	latest, ok, err := j.snapshots.LatestPortfolioSnapshot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	scores := make(map[string]float64)
	if !ok {
		return scores, nil
	}
	rows, err := j.snapshots.PositionSnapshots(ctx, id, latest.SnapshotDate)
	if err != nil {
		return nil, fmt.Errorf("position snapshots: %w", err)
	}
	for _, r := range rows {
		scores[r.Ticker] = r.RiskScore
	}
	return scores, nil
}

// RollingBetaCacheJob recomputes rolling betas of every held ticker
type RollingBetaCacheJob struct {
	tickers HeldTickers
	prices  PriceReader
	cache   *cachestore.Store
	cfg     CacheJobConfig
	loop    unitLoop
	now     func() time.Time
}

// NewRollingBetaCacheJob creates the rolling beta cache job
func NewRollingBetaCacheJob(tickers HeldTickers, prices PriceReader, cache *cachestore.Store, cfg CacheJobConfig) *RollingBetaCacheJob {
	return &RollingBetaCacheJob{
		tickers: tickers,
		prices:  prices,
		cache:   cache,
		cfg:     cfg,
		loop:    defaultLoop(),
		now:     time.Now,
	}
}

// Name returns the job name
func (j *RollingBetaCacheJob) Name() string {
	return "rolling_beta_cache"
}

// Schedule returns the cron schedule (every 6 hours)
func (j *RollingBetaCacheJob) Schedule() string {
	return "0 0 */6 * * *"
}

// Run computes the beta series per ticker against the benchmark
func (j *RollingBetaCacheJob) Run(ctx context.Context, jc scheduler.JobContext) (scheduler.Result, error) {
	held, err := j.tickers.DistinctHeldTickers(ctx)
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("list held tickers: %w", err)
	}

	var universe []string
	for _, t := range held {
		if t != j.cfg.Benchmark {
			universe = append(universe, t)
		}
	}

	return j.loop.run(ctx, jc.Logger, universe, func(ctx context.Context, ticker string) error {
		key := cachestore.RollingBetaKey(ticker, j.cfg.Benchmark, j.cfg.BetaWindow)
		if err := fresh(ctx, j.cache, key); err != nil {
			return err
		}
		now := j.now()
		from := now.AddDate(0, 0, -j.cfg.BetaWindow)

		asset, err := j.prices.GetRange(ctx, ticker, from, now)
		if err != nil {
			return fmt.Errorf("load %s prices: %w", ticker, err)
		}
		bench, err := j.prices.GetRange(ctx, j.cfg.Benchmark, from, now)
		if err != nil {
			return fmt.Errorf("load %s prices: %w", j.cfg.Benchmark, err)
		}

		rb, err := risk.ComputeRollingBeta(ticker, j.cfg.Benchmark, j.cfg.BetaWindow, asset, bench, risk.DefaultBetaWindow)
		if err != nil {
			return err
		}
		return j.cache.Put(ctx, key, rb, 0)
	})
}

// DownsideRiskCacheJob recomputes the downside bundle per portfolio
type DownsideRiskCacheJob struct {
	portfolios Portfolios
	prices     PriceReader
	cache      *cachestore.Store
	cfg        CacheJobConfig
	bootstrap  risk.BootstrapConfig
	loop       unitLoop
	now        func() time.Time
}

// NewDownsideRiskCacheJob creates the downside risk cache job
func NewDownsideRiskCacheJob(portfolios Portfolios, prices PriceReader, cache *cachestore.Store, cfg CacheJobConfig) *DownsideRiskCacheJob {
	return &DownsideRiskCacheJob{
		portfolios: portfolios,
		prices:     prices,
		cache:      cache,
		cfg:        cfg,
		bootstrap:  risk.DefaultBootstrapConfig(),
		loop:       unitLoop{Delay: DefaultUnitDelay, Timeout: DownsideUnitTimeout},
		now:        time.Now,
	}
}

// Name returns the job name
func (j *DownsideRiskCacheJob) Name() string {
	return "downside_risk_cache"
}

// Schedule returns the cron schedule (every 6 hours)
func (j *DownsideRiskCacheJob) Schedule() string {
	return "0 0 */6 * * *"
}

// Run builds the weighted return series and its downside report per portfolio
func (j *DownsideRiskCacheJob) Run(ctx context.Context, jc scheduler.JobContext) (scheduler.Result, error) {
	ids, err := portfolioIDs(ctx, j.portfolios)
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("list portfolios: %w", err)
	}

	return j.loop.run(ctx, jc.Logger, ids, func(ctx context.Context, id string) error {
		key := cachestore.DownsideRiskKey(id, j.cfg.DownsideLookback, j.cfg.Benchmark)
		if err := fresh(ctx, j.cache, key); err != nil {
			return err
		}
		now := j.now()

		raw, err := j.portfolios.Positions(ctx, id)
		if err != nil {
			return fmt.Errorf("load positions: %w", err)
		}
		weights, total := portfolio.Weights(portfolio.Aggregate(raw))
		if total == 0 {
			return fmt.Errorf("portfolio %s: %w", id, risk.ErrNoWeight)
		}

		series := make(map[string][]contracts.PricePoint, len(weights))
		for ticker := range weights {
			points, _, err := logReturns(ctx, j.prices, ticker, now, j.cfg.DownsideLookback)
			if err != nil {
				return err
			}
			series[ticker] = points
		}
		returns, err := risk.PortfolioReturns(weights, series)
		if err != nil {
			return err
		}

		report, err := risk.NewDownsideReport(id, returns, j.cfg.RiskFreeRate, j.bootstrap)
		if err != nil {
			return err
		}
		// 벤치마크 결측은 capture만 생략
		if bench, _, err := logReturns(ctx, j.prices, j.cfg.Benchmark, now, j.cfg.DownsideLookback); err == nil {
			if pr, br, err := risk.PortfolioBenchReturns(weights, series, bench); err == nil {
				report.DownsideCapture = risk.DownsideCapture(pr, br)
			}
		}
		report.Benchmark = j.cfg.Benchmark
		report.LookbackDays = j.cfg.DownsideLookback
		report.Weights = weights
		if jc.RunID != "" {
			report.RunID = jc.RunID
		}

		return j.cache.Put(ctx, key, report, 0)
	})
}
