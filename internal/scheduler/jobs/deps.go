package jobs

import (
	"context"
	"time"

	"github.com/wonny/folio/backend/internal/alerts"
	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/internal/snapshots"
)

// HeldTickers enumerates tickers with an open position
type HeldTickers interface {
	DistinctHeldTickers(ctx context.Context) ([]string, error)
}

// WatchedTickers enumerates tickers on any watchlist
type WatchedTickers interface {
	DistinctWatchlistTickers(ctx context.Context) ([]string, error)
}

// Portfolios enumerates portfolios and their holdings
type Portfolios interface {
	ListPortfolios(ctx context.Context) ([]contracts.Portfolio, error)
	Positions(ctx context.Context, portfolioID string) ([]contracts.Position, error)
	CashBalance(ctx context.Context, portfolioID string) (float64, error)
}

// PriceReader loads stored closes
type PriceReader interface {
	GetRange(ctx context.Context, ticker string, from, to time.Time) ([]contracts.PricePoint, error)
}

// SnapshotWriter writes the daily risk rows of a portfolio
type SnapshotWriter interface {
	WriteDaily(ctx context.Context, portfolioID string, date time.Time) (snapshots.WriteResult, error)
}

// SnapshotReader reads persisted risk snapshots
type SnapshotReader interface {
	LatestPortfolioSnapshot(ctx context.Context, portfolioID string) (contracts.RiskSnapshot, bool, error)
	PositionSnapshots(ctx context.Context, portfolioID string, date time.Time) ([]contracts.RiskSnapshot, error)
}

// SnapshotArchiver deletes old risk snapshots
type SnapshotArchiver interface {
	ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RegimeRunner classifies the market and forecasts regimes
type RegimeRunner interface {
	Update(ctx context.Context, date time.Time) (contracts.MarketRegime, error)
	Forecast(ctx context.Context, date time.Time) ([]contracts.RegimeForecast, error)
}

// PortfolioEvaluator checks a portfolio against its adaptive thresholds
type PortfolioEvaluator interface {
	Evaluate(ctx context.Context, portfolioID string) (alerts.Evaluation, error)
}

// TickerMonitor evaluates the watchlist rules of one ticker
type TickerMonitor interface {
	CheckTicker(ctx context.Context, ticker string) ([]contracts.Alert, error)
}

func portfolioIDs(ctx context.Context, p Portfolios) ([]string, error) {
	list, err := p.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(list))
	for i, pf := range list {
		ids[i] = pf.ID
	}
	return ids, nil
}
