package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/folio/backend/pkg/config"
)

func TestNewClient_Disabled(t *testing.T) {
	client, err := New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	assert.False(t, client.Enabled())
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(Disabled(), "test")
	quota := DailyQuota("alphavantage", 25)

	allowed, remaining, err := limiter.Allow(context.Background(), quota)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 25, remaining)
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(Disabled(), "test")
	ctx := context.Background()

	require.NoError(t, cache.SetRaw(ctx, "optimization", "42", []byte(`{}`), time.Hour))

	data, found, err := cache.GetRaw(ctx, "optimization", "42")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, data)

	n, err := cache.DeleteKind(ctx, "optimization")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCacheKeys(t *testing.T) {
	cache := NewCache(Disabled(), "folio")
	assert.Equal(t, "folio:cache:rolling_beta:AAPL|SPY|90", cache.fullKey("rolling_beta", "AAPL|SPY|90"))
}

func TestDailyQuota(t *testing.T) {
	q := DailyQuota("twelvedata", 800)
	assert.Equal(t, "twelvedata", q.Key)
	assert.Equal(t, 800, q.Limit)
	assert.Equal(t, 24*time.Hour, q.Window)
}

func TestRateLimiter_RemainingDisabled(t *testing.T) {
	limiter := NewRateLimiter(Disabled(), "test")

	n, err := limiter.Remaining(context.Background(), DailyQuota("twelvedata", 800))
	require.NoError(t, err)
	assert.Equal(t, 800, n)
}

func TestWindowBounds(t *testing.T) {
	now := time.Date(2026, 3, 4, 23, 59, 0, 0, time.FixedZone("EST", -5*3600))

	start, end := windowBounds(now, 24*time.Hour)
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), start, "quotas reset on UTC days")
	assert.Equal(t, start.Add(24*time.Hour), end)

	limiter := NewRateLimiter(Disabled(), "folio")
	assert.Equal(t, "folio:quota:alphavantage:1772668800", limiter.key(DailyQuota("alphavantage", 25), start))
}
