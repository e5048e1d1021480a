package resilience

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RetryConfig configures a Retry.
type RetryConfig struct {
	// MaxAttempts counts the first call.
	// Default: 3
	MaxAttempts int

	// WaitDuration is the pause after the first failed attempt.
	// Default: 500ms
	WaitDuration time.Duration

	// BackoffMultiplier scales the pause after each further failure. Values
	// of 1 or less keep the pause constant.
	// Default: 1
	BackoffMultiplier float64

	// MaxWait caps any single pause.
	// Default: 30s
	MaxWait time.Duration

	// RetryIf reports whether err is worth another attempt.
	// Default: every non-nil error.
	RetryIf func(err error) bool

	// OnRetry is called before each pause.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Retry re-runs a failing operation.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a retry handler.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.WaitDuration < 0 {
		config.WaitDuration = 0
	} else if config.WaitDuration == 0 {
		config.WaitDuration = 500 * time.Millisecond
	}
	if config.BackoffMultiplier < 1 {
		config.BackoffMultiplier = 1
	}
	if config.MaxWait <= 0 {
		config.MaxWait = 30 * time.Second
	}
	if config.RetryIf == nil {
		config.RetryIf = func(err error) bool { return err != nil }
	}
	return &Retry{config: config}
}

// Execute runs op until it succeeds, RetryIf rejects its error, the
// attempts run out or ctx is done. Exhausting more than one attempt returns
// an error matching both ErrMaxRetriesExceeded and the last failure.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !r.config.RetryIf(lastErr) {
			return lastErr
		}
		if attempt >= r.config.MaxAttempts {
			break
		}

		wait := r.wait(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, lastErr, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if r.config.MaxAttempts == 1 {
		return lastErr
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetriesExceeded, r.config.MaxAttempts, lastErr)
}

// wait returns the pause after the given failed attempt.
func (r *Retry) wait(attempt int) time.Duration {
	d := float64(r.config.WaitDuration) * math.Pow(r.config.BackoffMultiplier, float64(attempt-1))
	if d > float64(r.config.MaxWait) {
		return r.config.MaxWait
	}
	return time.Duration(d)
}

// Config returns the effective configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}
