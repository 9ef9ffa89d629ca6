package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigSpacing(t *testing.T) {
	assert.Equal(t, 7500*time.Millisecond, DefaultConfig().Spacing())
	assert.Equal(t, 100*time.Millisecond, Config{RequestsPerMinute: 600}.Spacing())
}

func TestAcquireEnforcesSpacing(t *testing.T) {
	l := New(Config{MaxConcurrent: 5, RequestsPerMinute: 600})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		p, err := l.Acquire(ctx)
		require.NoError(t, err)
		p.Release()
	}

	// first acquisition is immediate, the next two wait 100ms each
	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)
	assert.Equal(t, int64(3), l.Stats().Acquired)
}

func TestAcquireBoundsConcurrency(t *testing.T) {
	l := New(Config{MaxConcurrent: 2, RequestsPerMinute: 60000})
	ctx := context.Background()

	p1, err := l.Acquire(ctx)
	require.NoError(t, err)
	p2, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), l.Stats().InFlight)

	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(blocked)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p1.Release()
	p3, err := l.Acquire(ctx)
	require.NoError(t, err)

	p2.Release()
	p3.Release()
	assert.Equal(t, int64(0), l.Stats().InFlight)
}

func TestReleaseIsIdempotent(t *testing.T) {
	l := New(Config{MaxConcurrent: 1, RequestsPerMinute: 60000})

	p, err := l.Acquire(context.Background())
	require.NoError(t, err)
	p.Release()
	p.Release()

	assert.Equal(t, int64(0), l.Stats().InFlight)

	// a double release must not have minted a second slot
	p1, err := l.Acquire(context.Background())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	assert.Error(t, err)
	p1.Release()
}

func TestCancelledWaitDoesNotLeakSlot(t *testing.T) {
	// one request per minute: the second acquisition would wait ~60s
	l := New(Config{MaxConcurrent: 1, RequestsPerMinute: 1})

	p, err := l.Acquire(context.Background())
	require.NoError(t, err)
	p.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	require.Error(t, err)

	assert.Equal(t, int64(0), l.Stats().InFlight)
	assert.True(t, l.sem.TryAcquire(1), "slot must be free after a cancelled wait")
	l.sem.Release(1)
}

func TestDoConcurrentCallers(t *testing.T) {
	l := New(Config{MaxConcurrent: 2, RequestsPerMinute: 60000})

	var mu sync.Mutex
	current, peak := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Do(context.Background(), func(ctx context.Context) error {
				mu.Lock()
				current++
				if current > peak {
					peak = current
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				current--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, 2)
	assert.Equal(t, int64(8), l.Stats().Acquired)
}
