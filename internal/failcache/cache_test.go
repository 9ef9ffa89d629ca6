package failcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeMirror struct {
	mu      sync.Mutex
	saved   []contracts.FailureRecord
	deleted []string
	swept   int
	err     error
}

func (m *fakeMirror) SaveFailure(_ context.Context, rec contracts.FailureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, rec)
	return m.err
}

func (m *fakeMirror) DeleteFailure(_ context.Context, ticker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, ticker)
	return m.err
}

func (m *fakeMirror) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swept++
	return 0, m.err
}

func newTestCache(opts ...Option) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(logger.Nop(), opts...), clock
}

func TestRecordAndCheck(t *testing.T) {
	c, clock := newTestCache()
	ctx := context.Background()

	c.Record(ctx, "ZZZZ", contracts.FailureNotFound, "no data")

	rec, ok := c.Check("ZZZZ")
	require.True(t, ok)
	assert.Equal(t, contracts.FailureNotFound, rec.Kind)
	assert.Equal(t, 24*time.Hour, rec.TTL)

	clock.Advance(23 * time.Hour)
	_, ok = c.Check("ZZZZ")
	assert.True(t, ok)

	clock.Advance(time.Hour)
	_, ok = c.Check("ZZZZ")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "stale entry is removed on check")
}

func TestTTLByKind(t *testing.T) {
	c, clock := newTestCache()
	ctx := context.Background()

	c.Record(ctx, "RL", contracts.FailureRateLimited, "")
	c.Record(ctx, "API", contracts.FailureAPIError, "")

	clock.Advance(61 * time.Minute)
	_, rl := c.Check("RL")
	_, api := c.Check("API")
	assert.False(t, rl)
	assert.True(t, api)

	clock.Advance(5 * time.Hour)
	_, api = c.Check("API")
	assert.False(t, api)
}

func TestClear(t *testing.T) {
	m := &fakeMirror{}
	c, _ := newTestCache(WithMirror(m))
	ctx := context.Background()

	c.Record(ctx, "MSFT", contracts.FailureAPIError, "timeout")
	c.Clear(ctx, "MSFT")

	_, ok := c.Check("MSFT")
	assert.False(t, ok)
	assert.Equal(t, []string{"MSFT"}, m.deleted)

	// clearing an unknown ticker does not hit the mirror
	c.Clear(ctx, "NOPE")
	assert.Len(t, m.deleted, 1)
}

func TestSweep(t *testing.T) {
	m := &fakeMirror{}
	c, clock := newTestCache(WithMirror(m))
	ctx := context.Background()

	c.Record(ctx, "A", contracts.FailureRateLimited, "")
	c.Record(ctx, "B", contracts.FailureRateLimited, "")
	c.Record(ctx, "C", contracts.FailureNotFound, "")

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 2, c.Sweep(ctx))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, m.swept)
}

func TestMirrorErrorsDoNotPropagate(t *testing.T) {
	m := &fakeMirror{err: errors.New("db down")}
	c, _ := newTestCache(WithMirror(m))
	ctx := context.Background()

	rec := c.Record(ctx, "X", contracts.FailureAPIError, "")
	assert.Equal(t, "X", rec.Ticker)

	_, ok := c.Check("X")
	assert.True(t, ok, "memory stays authoritative when the mirror fails")
}

func TestRestoreSkipsExpired(t *testing.T) {
	c, clock := newTestCache()
	now := clock.Now()

	loaded := c.Restore([]contracts.FailureRecord{
		{Ticker: "LIVE", Kind: contracts.FailureNotFound, FailedAt: now.Add(-time.Hour), TTL: 24 * time.Hour},
		{Ticker: "DEAD", Kind: contracts.FailureRateLimited, FailedAt: now.Add(-2 * time.Hour), TTL: time.Hour},
	})

	assert.Equal(t, 1, loaded)
	_, ok := c.Check("LIVE")
	assert.True(t, ok)
	assert.Len(t, c.Snapshot(), 1)
}

func TestConcurrentAccess(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticker := []string{"A", "B", "C"}[i%3]
			c.Record(ctx, ticker, contracts.FailureAPIError, "")
			c.Check(ticker)
			if i%5 == 0 {
				c.Clear(ctx, ticker)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 3)
}
