package provider

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"orgsync/pkg/telemetry"
)

// PoolConfig configures the worker pool shared by every organization of a run
type PoolConfig struct {
	// Size is the maximum number of network calls in flight
	Size int

	// BaseDelay is the minimum delay between calls
	BaseDelay time.Duration

	// MaxDelay caps any computed delay
	MaxDelay time.Duration

	// BackoffFactor is the exponential multiplier once the budget runs low
	BackoffFactor float64

	// Jitter adds randomness to delays to avoid thundering herd
	Jitter float64

	// MinRemainingRequests is the threshold below which throttling gets aggressive
	MinRemainingRequests int

	// AggressiveThrottleDelay is the full delay applied at zero remaining budget
	AggressiveThrottleDelay time.Duration
}

// DefaultPoolConfig returns a default pool configuration
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Size:                    8,
		BaseDelay:               0,
		MaxDelay:                30 * time.Second,
		BackoffFactor:           2.0,
		Jitter:                  0.1,
		MinRemainingRequests:    100,
		AggressiveThrottleDelay: 2 * time.Second,
	}
}

// PoolStats provides statistics about pool usage
type PoolStats struct {
	RemainingRequests int           `json:"remaining_requests"`
	ResetTime         time.Time     `json:"reset_time"`
	InFlight          int           `json:"in_flight"`
	Size              int           `json:"size"`
	TotalCalls        int64         `json:"total_calls"`
	TotalWaits        int64         `json:"total_waits"`
	TotalDelayTime    time.Duration `json:"total_delay_time"`
}

// Pool bounds concurrent network calls and paces them against the
// platform's rate limit budget. A slot is held for exactly one call.
type Pool struct {
	cfg PoolConfig
	sem chan struct{}

	mu        sync.Mutex
	remaining int
	resetTime time.Time
	lastCall  time.Time
	stats     PoolStats
	rand      *rand.Rand
}

// NewPool creates a pool
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2.0
	}

	p := &Pool{
		cfg:       cfg,
		sem:       make(chan struct{}, cfg.Size),
		remaining: -1, // unknown until the first response
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	p.stats.Size = cfg.Size
	p.stats.RemainingRequests = -1
	return p
}

// Acquire blocks until a slot is free and the pacing delay has passed
func (p *Pool) Acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	delay := p.calculateDelay()
	if delay > 0 {
		p.stats.TotalWaits++
		p.stats.TotalDelayTime += delay
		p.mu.Unlock()

		if err := sleepContext(ctx, delay); err != nil {
			<-p.sem
			return err
		}
		p.mu.Lock()
	}
	p.lastCall = time.Now()
	p.stats.InFlight++
	p.stats.TotalCalls++
	p.mu.Unlock()
	return nil
}

// Release returns a slot taken by Acquire
func (p *Pool) Release() {
	p.mu.Lock()
	p.stats.InFlight--
	p.mu.Unlock()
	<-p.sem
}

// Do runs fn while holding a slot
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.Acquire(ctx); err != nil {
		return err
	}
	defer p.Release()
	return fn()
}

// UpdateLimits records the budget reported by the platform
func (p *Pool) UpdateLimits(remaining int, reset time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.remaining = remaining
	p.resetTime = reset
	p.stats.RemainingRequests = remaining
	p.stats.ResetTime = reset
}

// Stats returns current pool statistics
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// calculateDelay calculates the delay needed before the next call
func (p *Pool) calculateDelay() time.Duration {
	now := time.Now()

	var totalDelay time.Duration

	if p.cfg.BaseDelay > 0 && !p.lastCall.IsZero() {
		if since := now.Sub(p.lastCall); since < p.cfg.BaseDelay {
			totalDelay = p.cfg.BaseDelay - since
		}
	}

	// budget is unknown or has been reset since the last response
	if p.remaining < 0 || now.After(p.resetTime) {
		return p.capped(totalDelay)
	}

	if p.remaining < p.cfg.MinRemainingRequests {
		if aggressive := p.calculateAggressiveDelay(); aggressive > totalDelay {
			totalDelay = aggressive
		}
	}

	// less than a tenth of the default hourly budget left
	if p.remaining < 500 && p.cfg.BaseDelay > 0 {
		multiplier := math.Pow(p.cfg.BackoffFactor, float64(5000-p.remaining)/1000)
		if backoff := time.Duration(float64(p.cfg.BaseDelay) * multiplier); backoff > totalDelay {
			totalDelay = backoff
		}
	}

	if p.cfg.Jitter > 0 && totalDelay > 0 {
		totalDelay += time.Duration(p.rand.Float64() * float64(totalDelay) * p.cfg.Jitter)
	}

	return p.capped(totalDelay)
}

func (p *Pool) capped(d time.Duration) time.Duration {
	if p.cfg.MaxDelay > 0 && d > p.cfg.MaxDelay {
		return p.cfg.MaxDelay
	}
	return d
}

// calculateAggressiveDelay calculates delay when remaining requests are low
func (p *Pool) calculateAggressiveDelay() time.Duration {
	if p.remaining <= 0 {
		if wait := time.Until(p.resetTime); wait > 0 {
			return wait
		}
		return 0
	}

	ratio := float64(p.remaining) / float64(p.cfg.MinRemainingRequests)
	if ratio >= 1.0 {
		return 0
	}
	// fewer remaining requests means a longer delay
	return time.Duration(float64(p.cfg.AggressiveThrottleDelay) * (1.0 - ratio))
}

// poolTransport holds a pool slot for the duration of one HTTP round trip
// and feeds the rate limit headers of every response back into the pool
type poolTransport struct {
	pool    *Pool
	backend string
	metrics *telemetry.Metrics
	base    http.RoundTripper
}

func (t *poolTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.pool.Acquire(req.Context()); err != nil {
		return nil, err
	}
	defer t.pool.Release()

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.metrics.ObserveRequest(t.backend, 0, time.Since(start))
		return nil, err
	}
	t.metrics.ObserveRequest(t.backend, resp.StatusCode, time.Since(start))

	remaining, rerr := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))
	reset, serr := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)
	if rerr == nil && serr == nil {
		t.pool.UpdateLimits(remaining, time.Unix(reset, 0))
	}
	return resp, nil
}
