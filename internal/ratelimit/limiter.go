package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config bounds outbound provider calls
type Config struct {
	MaxConcurrent     int
	RequestsPerMinute int
}

// DefaultConfig allows 3 calls in flight, spaced for 8 requests per minute
func DefaultConfig() Config {
	return Config{MaxConcurrent: 3, RequestsPerMinute: 8}
}

// Spacing is the minimum gap between consecutive acquisitions
func (c Config) Spacing() time.Duration {
	if c.RequestsPerMinute <= 0 {
		return 0
	}
	return time.Minute / time.Duration(c.RequestsPerMinute)
}

// Limiter combines a counting semaphore with a burst-1 spacing limiter.
// ⭐ SSOT: 외부 API 호출 제한은 이 Limiter에서만
type Limiter struct {
	cfg      Config
	sem      *semaphore.Weighted
	spacing  *rate.Limiter
	inFlight atomic.Int64
	acquired atomic.Int64
}

// New creates a limiter; non-positive fields fall back to DefaultConfig
func New(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}

	return &Limiter{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		spacing: rate.NewLimiter(rate.Every(cfg.Spacing()), 1),
	}
}

// Acquire blocks until a concurrency slot is free and the spacing since the
// previous acquisition has elapsed. The caller must Release the permit.
func (l *Limiter) Acquire(ctx context.Context) (*Permit, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire slot: %w", err)
	}

	if err := l.spacing.Wait(ctx); err != nil {
		l.sem.Release(1)
		return nil, fmt.Errorf("wait spacing: %w", err)
	}

	l.inFlight.Add(1)
	l.acquired.Add(1)
	return &Permit{limiter: l}, nil
}

// Do runs fn while holding a permit
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	permit, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer permit.Release()

	return fn(ctx)
}

// Stats is a point-in-time view of the limiter
type Stats struct {
	MaxConcurrent int           `json:"max_concurrent"`
	InFlight      int64         `json:"in_flight"`
	Acquired      int64         `json:"acquired"`
	Spacing       time.Duration `json:"spacing"`
}

// Stats returns current usage
func (l *Limiter) Stats() Stats {
	return Stats{
		MaxConcurrent: l.cfg.MaxConcurrent,
		InFlight:      l.inFlight.Load(),
		Acquired:      l.acquired.Load(),
		Spacing:       l.cfg.Spacing(),
	}
}

// Permit is a held concurrency slot
type Permit struct {
	limiter *Limiter
	once    sync.Once
}

// Release returns the slot; extra calls are no-ops
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		p.limiter.inFlight.Add(-1)
		p.limiter.sem.Release(1)
	})
}
