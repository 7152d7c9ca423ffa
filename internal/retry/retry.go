// Package retry provides backoff retry loops for transient failures such as
// a SAS server that is unreachable or refusing connections.
//
// # Basic Usage
//
//	cfg := retry.Config{
//	    InitialBackoff: time.Second,
//	    MaxBackoff:     30 * time.Second,
//	}
//
//	err := retry.Do(ctx, cfg, func() error {
//	    return dial()
//	}, nil)
//
// # Backoff Strategy
//
// The backoff duration follows InitialBackoff * 2^(attempt-1), capped at
// MaxBackoff. Setting MaxBackoff equal to InitialBackoff gives a fixed
// retry cadence, which is how the SAS connection is configured by default.
//
// # Context Cancellation
//
// All retry operations respect context cancellation. If the context is
// canceled during a backoff period, the retry loop exits immediately with
// the context error.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Config defines the retry behavior.
type Config struct {
	// MaxRetries is the maximum number of attempts. Zero means retry until
	// the context is canceled.
	MaxRetries int

	// InitialBackoff is the base backoff duration.
	// Each retry multiplies this by 2^(attempt-1).
	// Must be greater than 0.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration.
	// Zero means no cap (backoff grows unbounded).
	MaxBackoff time.Duration

	// Jitter adds randomness to backoff to prevent thundering herd (0.0 to 1.0).
	// With MaxRetries set, the jitter amount increases linearly with the
	// attempt number:
	//   jitter_amount = backoff * Jitter * attempt / MaxRetries
	// Without MaxRetries the full backoff * Jitter is added.
	// Zero means no jitter.
	Jitter float64
}

// ShouldRetryFunc is a function that determines if an error should trigger a retry.
//
// Return true to retry the operation, or false to fail immediately with the error.
// If this function is nil when passed to Do, all errors will be retried.
type ShouldRetryFunc func(error) bool

// Do executes fn with backoff retry.
//
// If fn returns nil, Do returns immediately with nil. If fn returns an
// error, shouldRetry decides whether to wait and try again. With
// MaxRetries > 0, Do gives up after that many attempts and returns an
// error wrapping the last failure. With MaxRetries == 0, Do keeps trying
// until fn succeeds, shouldRetry refuses, or ctx is canceled.
func Do(ctx context.Context, cfg Config, fn func() error, shouldRetry ShouldRetryFunc) error {
	var lastErr error

	for attempt := 0; cfg.MaxRetries == 0 || attempt < cfg.MaxRetries; attempt++ {
		// Apply backoff before retry (but not on first attempt).
		if attempt > 0 {
			if err := Wait(ctx, Backoff(cfg, attempt)); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}

		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// Wait blocks for d or until ctx is canceled, returning the context error
// in the latter case.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff computes the delay before the given attempt (1-based):
//  1. Calculate exponential backoff: InitialBackoff * 2^(attempt-1)
//  2. Apply MaxBackoff cap if configured (cfg.MaxBackoff > 0)
//  3. Add jitter if configured (cfg.Jitter > 0)
func Backoff(cfg Config, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	multiplier := math.Pow(2, float64(attempt-1))
	backoff := time.Duration(multiplier * float64(cfg.InitialBackoff))

	// Overflowed float conversion or cap.
	if backoff < 0 || (cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff) {
		backoff = cfg.MaxBackoff
	}

	if cfg.Jitter > 0 {
		scale := 1.0
		if cfg.MaxRetries > 0 {
			scale = float64(attempt) / float64(cfg.MaxRetries)
		}
		backoff += time.Duration(float64(backoff) * cfg.Jitter * scale)
	}

	return backoff
}
