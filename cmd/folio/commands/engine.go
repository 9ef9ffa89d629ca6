package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/wonny/folio/backend/internal/alerts"
	"github.com/wonny/folio/backend/internal/cachestore"
	"github.com/wonny/folio/backend/internal/external"
	"github.com/wonny/folio/backend/internal/failcache"
	"github.com/wonny/folio/backend/internal/optimizer"
	"github.com/wonny/folio/backend/internal/portfolio"
	"github.com/wonny/folio/backend/internal/prices"
	"github.com/wonny/folio/backend/internal/ratelimit"
	"github.com/wonny/folio/backend/internal/regime"
	"github.com/wonny/folio/backend/internal/risk"
	"github.com/wonny/folio/backend/internal/scheduler"
	"github.com/wonny/folio/backend/internal/scheduler/jobs"
	"github.com/wonny/folio/backend/internal/snapshots"
	"github.com/wonny/folio/backend/pkg/config"
	"github.com/wonny/folio/backend/pkg/database"
	"github.com/wonny/folio/backend/pkg/logger"
	"github.com/wonny/folio/backend/pkg/metrics"
	"github.com/wonny/folio/backend/pkg/redis"
)

// abandonedAfter is how long a run row may stay "running" before startup fails it
const abandonedAfter = 6 * time.Hour

// engine holds the process-wide collaborators every command shares
type engine struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	redis    *redis.Client
	registry *prometheus.Registry
	metrics  *metrics.Recorder

	failures *failcache.Cache
	limiter  *ratelimit.Limiter
	prices   *prices.Repository
	ingester *prices.Ingester

	portfolios *portfolio.Repository
	snapshots  *snapshots.Repository
	writer     *snapshots.Writer
	detector   *snapshots.Detector
	regimes    *regime.Service
	regimeRepo *regime.Repository
	alerts     *alerts.Repository
	evaluator  *alerts.Evaluator
	monitor    *alerts.WatchlistMonitor
	cache      *cachestore.Store
	analyzer   *optimizer.Analyzer
	runs       *scheduler.RunRepository
}

// newEngine loads config and wires every component.
// The caller must Close it.
func newEngine(ctx context.Context) (*engine, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// 4. Redis (optional hot layer + provider quotas)
	rc, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without hot cache and quotas")
		rc = redis.Disabled()
	}

	e := &engine{cfg: cfg, log: log, db: db, redis: rc}

	// 5. Metrics
	if cfg.MetricsEnabled {
		e.registry = prometheus.NewRegistry()
		e.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		e.metrics = metrics.New(e.registry)
	}

	// 6. Failure cache, rehydrated from its mirror
	failRepo := failcache.NewRepository(db.Pool)
	e.failures = failcache.New(log, failcache.WithMirror(failRepo))
	if live, err := failRepo.LoadLive(ctx, time.Now()); err != nil {
		log.WithError(err).Warn("Failed to restore fetch failures")
	} else if n := e.failures.Restore(live); n > 0 {
		log.WithField("restored", n).Info("Fetch failures restored")
	}

	// 7. Price ingestion
	provider, err := external.NewProvider(cfg, redis.NewRateLimiter(rc, "folio"), e.metrics, log)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("create price provider: %w", err)
	}
	e.limiter = ratelimit.New(ratelimit.Config{
		MaxConcurrent:     cfg.RateLimit.MaxConcurrent,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
	})
	e.prices = prices.NewRepository(db.Pool)
	e.ingester = prices.NewIngester(e.prices, provider, e.failures, e.limiter, log, prices.WithMetrics(e.metrics))

	// 8. Analytics
	an := cfg.Analytics
	assessor := risk.NewEvaluator(e.prices, e.ingester, risk.Config{RiskFreeRate: an.RiskFreeRate}, log)

	e.portfolios = portfolio.NewRepository(db.Pool)
	e.snapshots = snapshots.NewRepository(db.Pool)
	e.writer = snapshots.NewWriter(assessor, e.portfolios, e.snapshots, snapshots.WriterConfig{
		LookbackDays: an.LookbackDays,
		Benchmark:    an.BenchmarkTicker,
		Weights:      assessor.Weights(),
	}, log)
	e.detector = snapshots.NewDetector(e.snapshots, e.snapshots, log)

	regimeCfg := regime.DefaultConfig()
	regimeCfg.Benchmark = an.BenchmarkTicker
	regimeCfg.LookbackDays = an.RegimeLookback
	regimeCfg.Market = an.HMMMarket
	e.regimeRepo = regime.NewRepository(db.Pool)
	e.regimes = regime.NewService(regime.NewClassifier(log.Zerolog()), e.prices, e.ingester, e.regimeRepo, regimeCfg, log)

	e.alerts = alerts.NewRepository(db.Pool)
	e.evaluator = alerts.NewEvaluator(e.snapshots, e.alerts, e.regimes, alerts.DefaultConfig(), e.metrics, log)
	e.monitor = alerts.NewWatchlistMonitor(e.alerts, e.prices, e.alerts, e.alerts, e.metrics, log)

	cacheOpts := []cachestore.Option{cachestore.WithMetrics(e.metrics)}
	if rc.Enabled() {
		cacheOpts = append(cacheOpts, cachestore.WithHotLayer(redis.NewCache(rc, "folio")))
	}
	e.cache = cachestore.New(cachestore.NewRepository(db.Pool), log, cacheOpts...)
	e.analyzer = optimizer.NewAnalyzer(optimizer.DefaultConstraints(), log.Zerolog())

	e.runs = scheduler.NewRunRepository(db.Pool)
	return e, nil
}

// cacheConfig maps the analytics settings onto the cache job windows
func (e *engine) cacheConfig() jobs.CacheJobConfig {
	c := jobs.DefaultCacheJobConfig()
	c.Benchmark = e.cfg.Analytics.BenchmarkTicker
	c.RiskFreeRate = e.cfg.Analytics.RiskFreeRate
	return c
}

// newScheduler registers every job. An invalid schedule fails before anything starts.
func (e *engine) newScheduler(ctx context.Context) (*scheduler.Scheduler, error) {
	if n, err := e.runs.MarkAbandoned(ctx, time.Now().Add(-abandonedAfter)); err != nil {
		e.log.WithError(err).Warn("Failed to mark abandoned runs")
	} else if n > 0 {
		e.log.WithField("runs", n).Warn("Abandoned runs marked failed")
	}

	jc := scheduler.JobContext{
		Prices:   e.ingester,
		Failures: e.failures,
		Limiter:  e.limiter,
		DB:       e.db.Pool,
		Logger:   e.log,
	}
	sched := scheduler.New(jc, e.log,
		scheduler.WithRunStore(e.runs),
		scheduler.WithMetrics(e.metrics),
		scheduler.WithScheduleOverride(e.cfg.Schedule),
	)

	all := jobs.All(jobs.Deps{
		Prices:       e.prices,
		Portfolios:   e.portfolios,
		Snapshots:    e.snapshots,
		Writer:       e.writer,
		Regimes:      e.regimes,
		Evaluator:    e.evaluator,
		Alerts:       e.alerts,
		Monitor:      e.monitor,
		Cache:        e.cache,
		Analyzer:     e.analyzer,
		Metrics:      e.metrics,
		LookbackDays: e.cfg.Analytics.LookbackDays,
		Market:       e.cfg.Analytics.HMMMarket,
		CacheConfig:  e.cacheConfig(),
	})
	for _, job := range all {
		if err := sched.AddJob(job); err != nil {
			return nil, fmt.Errorf("register %s: %w", job.Name(), err)
		}
	}
	return sched, nil
}

// Close releases the database and Redis connections
func (e *engine) Close() {
	if err := e.redis.Close(); err != nil {
		e.log.WithError(err).Warn("Failed to close redis")
	}
	e.db.Close()
}
