package jobs

import (
	"github.com/wonny/folio/backend/internal/alerts"
	"github.com/wonny/folio/backend/internal/cachestore"
	"github.com/wonny/folio/backend/internal/optimizer"
	"github.com/wonny/folio/backend/internal/scheduler"
	"github.com/wonny/folio/backend/pkg/metrics"
)

// PriceStore is the read side of stored prices plus the ticker universes
type PriceStore interface {
	HeldTickers
	WatchedTickers
	PriceReader
}

// SnapshotStore reads and archives risk snapshots
type SnapshotStore interface {
	SnapshotReader
	SnapshotArchiver
}

// Deps wires every job's collaborators
type Deps struct {
	Prices     PriceStore
	Portfolios Portfolios
	Snapshots  SnapshotStore
	Writer     SnapshotWriter
	Regimes    RegimeRunner
	Evaluator  PortfolioEvaluator
	Alerts     alerts.Sink
	Monitor    TickerMonitor
	Cache      *cachestore.Store
	Analyzer   *optimizer.Analyzer
	Metrics    *metrics.Recorder

	LookbackDays int
	Market       string
	CacheConfig  CacheJobConfig
}

// All returns the twelve engine jobs in registration order
// ⭐ SSOT: 등록되는 Job 목록은 여기서만
func All(d Deps) []scheduler.Job {
	cfg := d.CacheConfig
	return []scheduler.Job{
		NewRefreshPricesJob(d.Prices, cfg.Benchmark, d.LookbackDays),
		NewGenerateForecastsJob(d.Cache),
		NewCheckThresholdsJob(d.Portfolios, d.Evaluator, d.Alerts, d.Metrics),
		NewDailyRiskSnapshotsJob(d.Portfolios, d.Writer),
		NewMarketRegimeUpdateJob(d.Regimes),
		NewRegimeForecastJob(d.Regimes, d.Market),
		NewOptimizationCacheJob(d.Portfolios, d.Snapshots, d.Prices, d.Cache, d.Analyzer, cfg),
		NewRollingBetaCacheJob(d.Prices, d.Prices, d.Cache, cfg),
		NewDownsideRiskCacheJob(d.Portfolios, d.Prices, d.Cache, cfg),
		NewWatchlistMonitoringJob(d.Prices, d.Monitor),
		NewCacheCleanupJob(d.Cache),
		NewArchiveSnapshotsJob(d.Snapshots),
	}
}
