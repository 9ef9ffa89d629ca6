package prices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/internal/failcache"
	"github.com/wonny/folio/backend/internal/ratelimit"
	"github.com/wonny/folio/backend/pkg/logger"
)

// Wednesday 2026-03-04 18:00 New York, after the close
var testNow = time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC)

func newTestIngester(store Store, p Provider) (*Ingester, *failcache.Cache) {
	clock := func() time.Time { return testNow }
	failures := failcache.New(logger.Nop(), failcache.WithClock(clock))
	limiter := ratelimit.New(ratelimit.Config{MaxConcurrent: 3, RequestsPerMinute: 60000})

	ing := NewIngester(store, p, failures, limiter, logger.Nop(),
		WithIngesterClock(clock),
		WithBackoff([]time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}),
	)
	return ing, failures
}

func TestRefreshIngestAndRead(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{name: "fake", results: []scriptedResult{
		{points: weekdaySeries(TradingDate(testNow), 42)},
	}}
	ing, _ := newTestIngester(store, provider)

	res, err := ing.Refresh(context.Background(), "aapl", 60)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", res.Ticker)
	assert.Equal(t, 42, res.Points)

	history := store.history("AAPL")
	require.GreaterOrEqual(t, len(history), 40)
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i-1].Date.Before(history[i].Date), "ascending order")
	}
	assert.True(t, IsFresh(history[len(history)-1].Date, testNow))
}

func TestRefreshSkipsFreshSeries(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.UpsertBatch(context.Background(), []contracts.PricePoint{
		{Ticker: "MSFT", Date: TradingDate(testNow), Close: 400},
	}))
	provider := &scriptedProvider{name: "fake"}
	ing, _ := newTestIngester(store, provider)

	res, err := ing.Refresh(context.Background(), "MSFT", 60)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 0, provider.callCount())
}

func TestRefreshCachedFailureSuppression(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{name: "fake", results: []scriptedResult{
		{err: NewFetchError("fake", "ZZZZ", KindNotFound, nil)},
	}}
	ing, failures := newTestIngester(store, provider)
	ctx := context.Background()

	_, err := ing.Refresh(ctx, "ZZZZ", 60)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	rec, live := failures.Check("ZZZZ")
	require.True(t, live)
	assert.Equal(t, contracts.FailureNotFound, rec.Kind)

	_, err = ing.Refresh(ctx, "ZZZZ", 60)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCachedFailure)
	assert.Equal(t, 1, provider.callCount(), "second call must not reach the provider")
}

func TestRefreshRateLimitedBackoff(t *testing.T) {
	store := newMemStore()
	limited := NewFetchError("fake", "AAPL", KindRateLimited, nil)
	provider := &scriptedProvider{name: "fake", results: []scriptedResult{
		{err: limited},
		{err: limited},
		{points: weekdaySeries(TradingDate(testNow), 10)},
	}}
	ing, failures := newTestIngester(store, provider)

	var waits []time.Duration
	ing.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	res, err := ing.Refresh(context.Background(), "AAPL", 30)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Points)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, waits)

	_, live := failures.Check("AAPL")
	assert.False(t, live)
}

func TestRefreshRateLimitedExhausted(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{name: "fake", results: []scriptedResult{
		{err: NewFetchError("fake", "AAPL", KindRateLimited, nil)},
	}}
	ing, failures := newTestIngester(store, provider)

	var waits []time.Duration
	ing.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	_, err := ing.Refresh(context.Background(), "AAPL", 30)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, waits)
	assert.Equal(t, MaxFetchAttempts, provider.callCount(), "first try plus two retries")

	rec, live := failures.Check("AAPL")
	require.True(t, live)
	assert.Equal(t, contracts.FailureRateLimited, rec.Kind)
	assert.Equal(t, time.Hour, rec.TTL)
}

func TestRefreshShortBackoffReusesLastWait(t *testing.T) {
	provider := &scriptedProvider{name: "fake", results: []scriptedResult{
		{err: NewFetchError("fake", "AAPL", KindRateLimited, nil)},
	}}
	ing, _ := newTestIngester(newMemStore(), provider)
	WithBackoff([]time.Duration{time.Second})(ing)

	var waits []time.Duration
	ing.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	_, err := ing.Refresh(context.Background(), "AAPL", 30)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, waits)
	assert.Equal(t, MaxFetchAttempts, provider.callCount())
}

func TestRefreshNonRateLimitedErrorIsNotRetried(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{name: "fake", results: []scriptedResult{
		{err: NewFetchError("fake", "AAPL", KindBadResponse, errors.New("502"))},
	}}
	ing, failures := newTestIngester(store, provider)
	ing.sleep = func(context.Context, time.Duration) error {
		t.Fatal("must not back off")
		return nil
	}

	_, err := ing.Refresh(context.Background(), "AAPL", 30)
	require.Error(t, err)
	assert.Equal(t, 1, provider.callCount())

	rec, live := failures.Check("AAPL")
	require.True(t, live)
	assert.Equal(t, contracts.FailureAPIError, rec.Kind)
}

func TestRefreshEmptySeriesIsNotFound(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{name: "fake", results: []scriptedResult{{}}}
	ing, _ := newTestIngester(store, provider)

	_, err := ing.Refresh(context.Background(), "EMPTY", 30)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRefreshStorageFailureKeepsNothing(t *testing.T) {
	store := newMemStore()
	store.failing = errors.New("connection reset")
	provider := &scriptedProvider{name: "fake", results: []scriptedResult{
		{points: weekdaySeries(TradingDate(testNow), 5)},
	}}
	ing, failures := newTestIngester(store, provider)

	_, err := ing.Refresh(context.Background(), "AAPL", 10)
	require.Error(t, err)
	assert.Empty(t, store.history("AAPL"))

	_, live := failures.Check("AAPL")
	assert.False(t, live, "storage errors are not provider failures")
}

func TestRefreshInvalidTicker(t *testing.T) {
	ing, _ := newTestIngester(newMemStore(), &scriptedProvider{name: "fake"})
	_, err := ing.Refresh(context.Background(), "   ", 10)
	assert.ErrorIs(t, err, contracts.ErrInvalidTicker)
}
