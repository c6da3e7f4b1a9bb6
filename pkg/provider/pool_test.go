package provider

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()

	assert.Equal(t, 8, cfg.Size)
	assert.Equal(t, 30*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.BackoffFactor)
	assert.Equal(t, 100, cfg.MinRemainingRequests)
	assert.Equal(t, 2*time.Second, cfg.AggressiveThrottleDelay)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := NewPool(PoolConfig{Size: 2})

	var inFlight, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Do(context.Background(), func() error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, int32(2))
	stats := pool.Stats()
	assert.Equal(t, int64(10), stats.TotalCalls)
	assert.Equal(t, 0, stats.InFlight)
}

func TestPool_AcquireCanceled(t *testing.T) {
	pool := NewPool(PoolConfig{Size: 1})
	require.NoError(t, pool.Acquire(context.Background()))
	defer pool.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Acquire(ctx), context.DeadlineExceeded)
}

func TestPool_CalculateDelay(t *testing.T) {
	t.Run("no delay when budget is unknown", func(t *testing.T) {
		pool := NewPool(DefaultPoolConfig())
		assert.Zero(t, pool.calculateDelay())
	})

	t.Run("no delay when budget is healthy", func(t *testing.T) {
		pool := NewPool(DefaultPoolConfig())
		pool.UpdateLimits(4000, time.Now().Add(time.Hour))
		assert.Zero(t, pool.calculateDelay())
	})

	t.Run("throttles when budget runs low", func(t *testing.T) {
		cfg := DefaultPoolConfig()
		cfg.Jitter = 0
		pool := NewPool(cfg)
		pool.UpdateLimits(50, time.Now().Add(time.Hour))

		assert.Equal(t, time.Second, pool.calculateDelay())
	})

	t.Run("waits for reset when budget is exhausted", func(t *testing.T) {
		cfg := DefaultPoolConfig()
		cfg.Jitter = 0
		cfg.MaxDelay = time.Hour
		pool := NewPool(cfg)
		pool.UpdateLimits(0, time.Now().Add(10*time.Second))

		delay := pool.calculateDelay()
		assert.Greater(t, delay, 9*time.Second)
		assert.LessOrEqual(t, delay, 10*time.Second)
	})

	t.Run("delay is capped", func(t *testing.T) {
		cfg := DefaultPoolConfig()
		cfg.Jitter = 0
		cfg.MaxDelay = time.Second
		pool := NewPool(cfg)
		pool.UpdateLimits(0, time.Now().Add(time.Minute))

		assert.Equal(t, time.Second, pool.calculateDelay())
	})

	t.Run("ignores a budget past its reset", func(t *testing.T) {
		pool := NewPool(DefaultPoolConfig())
		pool.UpdateLimits(0, time.Now().Add(-time.Second))
		assert.Zero(t, pool.calculateDelay())
	})
}

func TestPoolTransport_UpdatesLimits(t *testing.T) {
	reset := time.Now().Add(30 * time.Minute).Unix()
	srv := newMockServer(t, map[string]any{
		"GET /rate": reply{
			header: map[string]string{
				"X-RateLimit-Remaining": "1234",
				"X-RateLimit-Reset":     strconv.FormatInt(reset, 10),
			},
			body: map[string]any{},
		},
	})

	pool := NewPool(PoolConfig{Size: 1})
	client := &http.Client{Transport: &poolTransport{pool: pool, backend: backendREST, base: http.DefaultTransport}}
	resp, err := client.Get(srv.URL + "/rate")
	require.NoError(t, err)
	resp.Body.Close()

	stats := pool.Stats()
	assert.Equal(t, 1234, stats.RemainingRequests)
	assert.Equal(t, reset, stats.ResetTime.Unix())
	assert.Equal(t, int64(1), stats.TotalCalls)
}
