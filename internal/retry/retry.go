// Package retry wraps fallible operations with bounded exponential
// backoff. It exists for one caller — the orchestrator's provider
// calls — but is deliberately generic so tool authors can reuse it for
// flaky upstreams.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Policy configures a retry sequence. The zero value is not usable;
// start from DefaultPolicy or fill every field.
type Policy struct {
	// MaxAttempts is the total number of invocations, including the
	// first. Must be at least 1.
	MaxAttempts int

	// InitialDelay is the sleep before the second attempt. Subsequent
	// delays multiply by BackoffFactor.
	InitialDelay time.Duration

	// BackoffFactor scales the delay after each failed attempt.
	// Must be >= 1.
	BackoffFactor float64

	// Jitter perturbs each delay by up to ±10% so concurrent sessions
	// retrying against the same backend do not synchronize.
	Jitter bool

	// RetryIf reports whether an error is transient and worth another
	// attempt. A nil RetryIf retries every error. Errors rejected by
	// RetryIf propagate immediately.
	RetryIf func(error) bool

	// OnRetry, if non-nil, is called with the attempt number (1-based)
	// and the error before each sleep. Panics inside the callback are
	// swallowed and logged; observation must never abort the sequence.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy matches the config defaults: three attempts, 500ms
// initial delay, doubling, with jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

func (p Policy) validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay < 0 {
		return fmt.Errorf("retry: initial delay must not be negative, got %v", p.InitialDelay)
	}
	if p.BackoffFactor < 1 {
		return fmt.Errorf("retry: backoff factor must be >= 1, got %v", p.BackoffFactor)
	}
	return nil
}

// Do invokes fn until it succeeds, the policy is exhausted, a
// non-retryable error occurs, or ctx is cancelled. On exhaustion the
// last error is returned unchanged so errors.Is/As still see the
// original cause. An invalid policy fails before the first invocation.
func Do[T any](ctx context.Context, logger *slog.Logger, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := p.validate(); err != nil {
		return zero, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	delay := p.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if p.RetryIf != nil && !p.RetryIf(err) {
			return zero, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		notify(logger, p.OnRetry, attempt, err)

		logger.Debug("retrying after transient error",
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"delay", delay,
			"error", err,
		)

		if !sleep(ctx, jittered(delay, p.Jitter)) {
			return zero, ctx.Err()
		}
		delay = time.Duration(float64(delay) * p.BackoffFactor)
	}

	return zero, lastErr
}

// notify runs the OnRetry callback, containing any panic. A broken
// observer must not break the retry sequence.
func notify(logger *slog.Logger, cb func(int, error), attempt int, err error) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("retry callback panicked", "attempt", attempt, "panic", r)
		}
	}()
	cb(attempt, err)
}

// jittered perturbs d by up to ±10% when enabled.
func jittered(d time.Duration, enabled bool) time.Duration {
	if !enabled || d <= 0 {
		return d
	}
	// Uniform in [0.9d, 1.1d].
	f := 0.9 + 0.2*rand.Float64()
	return time.Duration(float64(d) * f)
}

// sleep waits for d or until ctx is done. Returns false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
