package resilience

import (
	"context"
	"sync"
	"time"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// LimitForPeriod is the number of permits available per period.
	// Default: 50
	LimitForPeriod int

	// LimitRefreshPeriod is the length of a period.
	// Default: 1 second
	LimitRefreshPeriod time.Duration

	// Timeout is the longest a caller waits for a permit in a later period.
	// Default: 0 (fail immediately)
	Timeout time.Duration

	// Now is the time source.
	// Default: time.Now
	Now func() time.Time
}

// RateLimiter hands out a fixed number of permits per period. A caller that
// finds the current period exhausted reserves a permit in the next period
// with capacity, as long as that is within Timeout.
type RateLimiter struct {
	config RateLimiterConfig

	mu          sync.Mutex
	periodStart time.Time
	permits     int // negative values are reservations in future periods
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.LimitForPeriod <= 0 {
		config.LimitForPeriod = 50
	}
	if config.LimitRefreshPeriod <= 0 {
		config.LimitRefreshPeriod = time.Second
	}
	if config.Timeout < 0 {
		config.Timeout = 0
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &RateLimiter{
		config:      config,
		periodStart: config.Now(),
		permits:     config.LimitForPeriod,
	}
}

// Allow takes a permit from the current period without waiting.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refreshLocked(rl.config.Now())
	if rl.permits > 0 {
		rl.permits--
		return true
	}
	return false
}

// reserve takes a permit, possibly from a future period, and returns how
// long the caller must wait before using it.
func (rl *RateLimiter) reserve() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.config.Now()
	rl.refreshLocked(now)
	if rl.permits > 0 {
		rl.permits--
		return 0, true
	}

	periodsAhead := (-rl.permits)/rl.config.LimitForPeriod + 1
	wait := rl.periodStart.Add(time.Duration(periodsAhead) * rl.config.LimitRefreshPeriod).Sub(now)
	if wait > rl.config.Timeout {
		return wait, false
	}
	rl.permits--
	return wait, true
}

// Wait takes a permit, blocking until it becomes usable.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	wait, ok := rl.reserve()
	if !ok {
		return ErrRateLimitExceeded
	}
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs the operation once a permit is available.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := rl.Wait(ctx); err != nil {
		return err
	}
	return op(ctx)
}

func (rl *RateLimiter) refreshLocked(now time.Time) {
	elapsed := now.Sub(rl.periodStart)
	if elapsed < rl.config.LimitRefreshPeriod {
		return
	}
	periods := int(elapsed / rl.config.LimitRefreshPeriod)
	rl.periodStart = rl.periodStart.Add(time.Duration(periods) * rl.config.LimitRefreshPeriod)
	limit := rl.config.LimitForPeriod
	if needed := (limit - rl.permits + limit - 1) / limit; periods >= needed {
		rl.permits = limit
	} else {
		rl.permits += periods * limit
	}
}

// Permits returns the permits left in the current period. Negative values
// count reservations against later periods.
func (rl *RateLimiter) Permits() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refreshLocked(rl.config.Now())
	return rl.permits
}

// Reset restores a full period starting now.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.permits = rl.config.LimitForPeriod
	rl.periodStart = rl.config.Now()
}
