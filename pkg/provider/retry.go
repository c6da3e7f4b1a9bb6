package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/go-github/v66/github"
)

// RetryConfig defines configuration for retry logic
type RetryConfig struct {
	// MaxAttempts counts the first call
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Jitter is the fraction of each delay added at random
	Jitter float64
	// MaxRateLimitWait bounds how long a primary rate limit reset is waited for
	MaxRateLimitWait time.Duration
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:      3,
		InitialDelay:     time.Second,
		MaxDelay:         30 * time.Second,
		BackoffFactor:    2.0,
		Jitter:           0.2,
		MaxRateLimitWait: 5 * time.Minute,
	}
}

type sleepFunc func(ctx context.Context, d time.Duration) error

// withRetry executes fn until it succeeds, fails with a non-transient
// error, runs out of attempts or ctx is done. Errors returned by fn are
// expected to have gone through Wrap.
func withRetry(ctx context.Context, cfg RetryConfig, sleep sleepFunc, fn func() error) error {
	if sleep == nil {
		sleep = sleepContext
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("retry canceled: %w", lastErr)
			}
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var perr *Error
		if !errors.As(err, &perr) || !perr.IsRetryable() {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := jittered(delay, cfg.Jitter)
		if reset := rateLimitWait(perr); reset > 0 && reset <= cfg.MaxRateLimitWait {
			wait = reset
		}
		if err := sleep(ctx, wait); err != nil {
			return fmt.Errorf("retry canceled: %w", lastErr)
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// rateLimitWait returns how long the platform asked us to back off
func rateLimitWait(perr *Error) time.Duration {
	var rateErr *github.RateLimitError
	if errors.As(perr.Cause, &rateErr) {
		return time.Until(rateErr.Rate.Reset.Time)
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(perr.Cause, &abuseErr) && abuseErr.RetryAfter != nil {
		return *abuseErr.RetryAfter
	}
	return 0
}

func jittered(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || d <= 0 {
		return d
	}
	return d + time.Duration(rand.Float64()*fraction*float64(d))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
