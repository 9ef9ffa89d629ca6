package failcache

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/logger"
)

// Mirror receives record/clear events for durable, operator-visible storage.
// The in-memory map stays authoritative; mirror errors are logged and dropped.
type Mirror interface {
	SaveFailure(ctx context.Context, rec contracts.FailureRecord) error
	DeleteFailure(ctx context.Context, ticker string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Cache memoizes per-ticker fetch failures so dead symbols are not re-fetched.
// ⭐ SSOT: 티커 실패 기록은 이 캐시에서만
type Cache struct {
	entries sync.Map // ticker -> contracts.FailureRecord
	mirror  Mirror
	logger  *logger.Logger
	now     func() time.Time
}

// Option configures a Cache
type Option func(*Cache)

// WithMirror attaches a durable mirror
func WithMirror(m Mirror) Option {
	return func(c *Cache) { c.mirror = m }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache
func New(log *logger.Logger, opts ...Option) *Cache {
	c := &Cache{
		logger: log.Component("failcache"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Record stores a failure with the TTL of its kind
func (c *Cache) Record(ctx context.Context, ticker string, kind contracts.FailureKind, message string) contracts.FailureRecord {
	rec := contracts.FailureRecord{
		Ticker:   ticker,
		Kind:     kind,
		FailedAt: c.now(),
		TTL:      kind.TTL(),
		Message:  message,
	}
	c.entries.Store(ticker, rec)

	c.logger.WithFields(map[string]interface{}{
		"ticker":      ticker,
		"kind":        kind,
		"retry_after": rec.ExpiresAt(),
	}).Debug("Recorded fetch failure")

	if c.mirror != nil {
		if err := c.mirror.SaveFailure(ctx, rec); err != nil {
			c.logger.Ticker(ticker).WithError(err).Warn("Failed to mirror fetch failure")
		}
	}
	return rec
}

// Check returns the live record for ticker. A stale record is removed.
func (c *Cache) Check(ticker string) (contracts.FailureRecord, bool) {
	v, ok := c.entries.Load(ticker)
	if !ok {
		return contracts.FailureRecord{}, false
	}

	rec := v.(contracts.FailureRecord)
	if rec.LiveAt(c.now()) {
		return rec, true
	}

	c.entries.CompareAndDelete(ticker, rec)
	return contracts.FailureRecord{}, false
}

// Clear forgets any failure for ticker after a successful fetch
func (c *Cache) Clear(ctx context.Context, ticker string) {
	_, existed := c.entries.LoadAndDelete(ticker)
	if !existed || c.mirror == nil {
		return
	}
	if err := c.mirror.DeleteFailure(ctx, ticker); err != nil {
		c.logger.Ticker(ticker).WithError(err).Warn("Failed to clear mirrored fetch failure")
	}
}

// Sweep removes every expired record and returns how many were dropped
func (c *Cache) Sweep(ctx context.Context) int {
	now := c.now()
	removed := 0

	c.entries.Range(func(key, value any) bool {
		rec := value.(contracts.FailureRecord)
		if !rec.LiveAt(now) && c.entries.CompareAndDelete(key, rec) {
			removed++
		}
		return true
	})

	if c.mirror != nil {
		if _, err := c.mirror.DeleteExpired(ctx, now); err != nil {
			c.logger.WithError(err).Warn("Failed to sweep mirrored fetch failures")
		}
	}

	if removed > 0 {
		c.logger.WithField("removed", removed).Info("Failure cache swept")
	}
	return removed
}

// Len counts stored records, live or not yet swept
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Restore loads records (typically from the mirror at startup); expired ones are skipped
func (c *Cache) Restore(records []contracts.FailureRecord) int {
	now := c.now()
	loaded := 0
	for _, rec := range records {
		if !rec.LiveAt(now) {
			continue
		}
		c.entries.Store(rec.Ticker, rec)
		loaded++
	}
	return loaded
}

// Snapshot lists live records, for status endpoints
func (c *Cache) Snapshot() []contracts.FailureRecord {
	now := c.now()
	var out []contracts.FailureRecord
	c.entries.Range(func(_, value any) bool {
		rec := value.(contracts.FailureRecord)
		if rec.LiveAt(now) {
			out = append(out, rec)
		}
		return true
	})
	return out
}
