package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter counts provider calls against fixed-window quotas shared by every process.
// Provider quotas reset on UTC day boundaries, so windows are aligned to the epoch
// instead of sliding. Per-call spacing lives in internal/ratelimit.
type RateLimiter struct {
	client *Client
	prefix string
	now    func() time.Time
}

// RateLimitConfig defines one quota
type RateLimitConfig struct {
	Key    string        // provider name (e.g., "twelvedata", "alphavantage")
	Limit  int           // calls allowed per window, 0 = unlimited
	Window time.Duration // window length, aligned to the Unix epoch
}

// NewRateLimiter creates a new quota limiter
func NewRateLimiter(client *Client, prefix string) *RateLimiter {
	return &RateLimiter{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// windowBounds returns the start and end of the window containing now
func windowBounds(now time.Time, window time.Duration) (time.Time, time.Time) {
	start := now.UTC().Truncate(window)
	return start, start.Add(window)
}

func (r *RateLimiter) key(cfg RateLimitConfig, start time.Time) string {
	return fmt.Sprintf("%s:quota:%s:%d", r.prefix, cfg.Key, start.Unix())
}

// Allow spends one call from the quota.
// Returns (allowed, remaining, error). A disabled client or a zero limit always allows.
func (r *RateLimiter) Allow(ctx context.Context, cfg RateLimitConfig) (bool, int, error) {
	if !r.client.Enabled() || cfg.Limit <= 0 {
		return true, cfg.Limit, nil
	}

	start, end := windowBounds(r.now(), cfg.Window)
	key := r.key(cfg, start)

	// INCR + PEXPIREAT in one round trip; the key outlives its window by a minute
	pipe := r.client.Redis().TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.PExpireAt(ctx, key, end.Add(time.Minute))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("quota %s: %w", cfg.Key, err)
	}

	used := int(incr.Val())
	if used > cfg.Limit {
		return false, 0, nil
	}
	return true, cfg.Limit - used, nil
}

// Remaining reports the calls left in the current window without spending one
func (r *RateLimiter) Remaining(ctx context.Context, cfg RateLimitConfig) (int, error) {
	if !r.client.Enabled() || cfg.Limit <= 0 {
		return cfg.Limit, nil
	}

	start, _ := windowBounds(r.now(), cfg.Window)
	used, err := r.client.Redis().Get(ctx, r.key(cfg, start)).Int()
	if IsNil(err) {
		return cfg.Limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota %s: %w", cfg.Key, err)
	}
	return max(cfg.Limit-used, 0), nil
}

// DailyQuota builds the quota config for a provider
func DailyQuota(provider string, perDay int) RateLimitConfig {
	return RateLimitConfig{
		Key:    provider,
		Limit:  perDay,
		Window: 24 * time.Hour,
	}
}
