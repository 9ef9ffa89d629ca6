package prices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/internal/failcache"
	"github.com/wonny/folio/backend/internal/ratelimit"
	"github.com/wonny/folio/backend/pkg/logger"
	"github.com/wonny/folio/backend/pkg/metrics"
)

// Store is the persistence the ingester needs
type Store interface {
	LatestDate(ctx context.Context, ticker string) (time.Time, bool, error)
	UpsertBatch(ctx context.Context, points []contracts.PricePoint) error
}

// MaxFetchAttempts bounds provider calls for one rate-limited refresh, first try included
const MaxFetchAttempts = 3

// DefaultBackoff is the wait before each retry of a rate-limited fetch.
// Retries past the end reuse the last entry.
var DefaultBackoff = []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}

// RefreshResult describes one refresh
type RefreshResult struct {
	Ticker  string `json:"ticker"`
	Skipped bool   `json:"skipped"`
	Points  int    `json:"points"`
}

// Ingester refreshes stored price series from a provider.
// ⭐ SSOT: 가격 수집은 이 Ingester에서만
type Ingester struct {
	store    Store
	provider Provider
	failures *failcache.Cache
	limiter  *ratelimit.Limiter
	metrics  *metrics.Recorder
	logger   *logger.Logger

	backoff []time.Duration
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// IngesterOption configures an Ingester
type IngesterOption func(*Ingester)

// WithBackoff overrides the rate-limit backoff schedule
func WithBackoff(b []time.Duration) IngesterOption {
	return func(i *Ingester) { i.backoff = b }
}

// WithIngesterClock overrides time.Now
func WithIngesterClock(now func() time.Time) IngesterOption {
	return func(i *Ingester) { i.now = now }
}

// WithMetrics attaches a metrics recorder
func WithMetrics(rec *metrics.Recorder) IngesterOption {
	return func(i *Ingester) { i.metrics = rec }
}

// NewIngester creates an ingester
func NewIngester(store Store, provider Provider, failures *failcache.Cache, limiter *ratelimit.Limiter, log *logger.Logger, opts ...IngesterOption) *Ingester {
	i := &Ingester{
		store:    store,
		provider: provider,
		failures: failures,
		limiter:  limiter,
		logger:   log.Component("prices.ingester"),
		backoff:  DefaultBackoff,
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Refresh brings ticker's stored series up to date.
// A fresh series or a live failure record short-circuits without a provider call.
func (i *Ingester) Refresh(ctx context.Context, ticker string, lookbackDays int) (RefreshResult, error) {
	ticker, err := contracts.CanonicalTicker(ticker)
	if err != nil {
		return RefreshResult{}, err
	}
	result := RefreshResult{Ticker: ticker}

	latest, ok, err := i.store.LatestDate(ctx, ticker)
	if err != nil {
		return result, fmt.Errorf("latest date %s: %w", ticker, err)
	}
	if ok && IsFresh(latest, i.now()) {
		result.Skipped = true
		return result, nil
	}

	if rec, live := i.failures.Check(ticker); live {
		i.metrics.RecordFailureCacheHit()
		return result, &CachedFailureError{Record: rec}
	}

	permit, err := i.limiter.Acquire(ctx)
	if err != nil {
		return result, err
	}
	defer permit.Release()

	points, err := i.fetchWithBackoff(ctx, ticker, lookbackDays)
	if err != nil {
		if ctx.Err() == nil {
			fe := ClassifyHTTPError(i.provider.Name(), ticker, err)
			i.failures.Record(ctx, ticker, fe.FailureKind(), fe.Error())
		}
		return result, err
	}

	if err := i.store.UpsertBatch(ctx, points); err != nil {
		return result, fmt.Errorf("upsert %s: %w", ticker, err)
	}

	i.failures.Clear(ctx, ticker)
	result.Points = len(points)

	i.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"points": len(points),
	}).Debug("Price series refreshed")

	return result, nil
}

// fetchWithBackoff retries only rate-limited fetches, MaxFetchAttempts calls in total
func (i *Ingester) fetchWithBackoff(ctx context.Context, ticker string, days int) ([]contracts.PricePoint, error) {
	points, err := i.fetch(ctx, ticker, days)

	for attempt := 1; err != nil && errors.Is(err, ErrRateLimited) && attempt < MaxFetchAttempts; attempt++ {
		var wait time.Duration
		if n := len(i.backoff); n > 0 {
			wait = i.backoff[min(attempt-1, n-1)]
		}
		i.logger.WithFields(map[string]interface{}{
			"ticker":  ticker,
			"attempt": attempt + 1,
			"wait":    wait.String(),
		}).Warn("Provider rate limited, backing off")

		if serr := i.sleep(ctx, wait); serr != nil {
			return nil, serr
		}
		points, err = i.fetch(ctx, ticker, days)
	}

	return points, err
}

func (i *Ingester) fetch(ctx context.Context, ticker string, days int) ([]contracts.PricePoint, error) {
	points, err := i.provider.FetchDailyHistory(ctx, ticker, days)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, NewFetchError(i.provider.Name(), ticker, KindNotFound, errors.New("empty series"))
	}

	for j := range points {
		points[j].Ticker = ticker
		points[j].Date = contracts.DateOnly(points[j].Date)
	}
	return points, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
