package config

import (
	"time"

	"github.com/jonwraymond/cloudsdk/cache"
	"github.com/jonwraymond/cloudsdk/resilience"
)

// ResilienceSpec is the file and environment form of a
// resilience.Configuration. Unset fields keep the defaults of
// resilience.NewConfiguration; durations are Go duration strings ("5s").
type ResilienceSpec struct {
	IsolationMode  string             `koanf:"isolation_mode"`
	TimeLimiter    TimeLimiterSpec    `koanf:"time_limiter"`
	CircuitBreaker CircuitBreakerSpec `koanf:"circuit_breaker"`
	Bulkhead       BulkheadSpec       `koanf:"bulkhead"`
	Retry          RetrySpec          `koanf:"retry"`
	RateLimiter    RateLimiterSpec    `koanf:"rate_limiter"`
	Cache          CacheSpec          `koanf:"cache"`
}

type TimeLimiterSpec struct {
	Enabled *bool         `koanf:"enabled"`
	Timeout time.Duration `koanf:"timeout"`
}

type CircuitBreakerSpec struct {
	Enabled                       *bool         `koanf:"enabled"`
	FailureRateThreshold          float64       `koanf:"failure_rate_threshold"`
	SlidingWindowSize             int           `koanf:"sliding_window_size"`
	WaitDurationInOpenState       time.Duration `koanf:"wait_duration_in_open_state"`
	PermittedCallsInHalfOpenState int           `koanf:"permitted_calls_in_half_open_state"`
}

type BulkheadSpec struct {
	Enabled            *bool         `koanf:"enabled"`
	MaxConcurrentCalls int           `koanf:"max_concurrent_calls"`
	MaxWaitDuration    time.Duration `koanf:"max_wait_duration"`
}

type RetrySpec struct {
	Enabled           *bool         `koanf:"enabled"`
	MaxAttempts       int           `koanf:"max_attempts"`
	WaitDuration      time.Duration `koanf:"wait_duration"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

type RateLimiterSpec struct {
	Enabled            *bool         `koanf:"enabled"`
	LimitForPeriod     int           `koanf:"limit_for_period"`
	LimitRefreshPeriod time.Duration `koanf:"limit_refresh_period"`
	Timeout            time.Duration `koanf:"timeout"`
}

type CacheSpec struct {
	Enabled      *bool         `koanf:"enabled"`
	Serializable bool          `koanf:"serializable"`
	Expiration   string        `koanf:"expiration"`
	Duration     time.Duration `koanf:"duration"`
	Parameters   []any         `koanf:"parameters"`
}

// ToConfiguration converts the spec and validates the result.
func (s ResilienceSpec) ToConfiguration(identifier string) (resilience.Configuration, error) {
	c := resilience.NewConfiguration(identifier)

	if s.IsolationMode != "" {
		mode, err := resilience.ParseIsolationMode(s.IsolationMode)
		if err != nil {
			return c, err
		}
		c.IsolationMode = mode
	}

	setBool(&c.TimeLimiter.Enabled, s.TimeLimiter.Enabled)
	setPositive(&c.TimeLimiter.Timeout, s.TimeLimiter.Timeout)

	cb := s.CircuitBreaker
	setBool(&c.CircuitBreaker.Enabled, cb.Enabled)
	setPositive(&c.CircuitBreaker.FailureRateThreshold, cb.FailureRateThreshold)
	setPositive(&c.CircuitBreaker.SlidingWindowSize, cb.SlidingWindowSize)
	setPositive(&c.CircuitBreaker.WaitDurationInOpenState, cb.WaitDurationInOpenState)
	setPositive(&c.CircuitBreaker.PermittedCallsInHalfOpenState, cb.PermittedCallsInHalfOpenState)

	setBool(&c.Bulkhead.Enabled, s.Bulkhead.Enabled)
	setPositive(&c.Bulkhead.MaxConcurrentCalls, s.Bulkhead.MaxConcurrentCalls)
	setPositive(&c.Bulkhead.MaxWaitDuration, s.Bulkhead.MaxWaitDuration)

	setBool(&c.Retry.Enabled, s.Retry.Enabled)
	setPositive(&c.Retry.MaxAttempts, s.Retry.MaxAttempts)
	setPositive(&c.Retry.WaitDuration, s.Retry.WaitDuration)
	setPositive(&c.Retry.BackoffMultiplier, s.Retry.BackoffMultiplier)

	rl := s.RateLimiter
	setBool(&c.RateLimiter.Enabled, rl.Enabled)
	setPositive(&c.RateLimiter.LimitForPeriod, rl.LimitForPeriod)
	setPositive(&c.RateLimiter.LimitRefreshPeriod, rl.LimitRefreshPeriod)
	setPositive(&c.RateLimiter.Timeout, rl.Timeout)

	setBool(&c.Cache.Enabled, s.Cache.Enabled)
	c.Cache.Serializable = s.Cache.Serializable
	if s.Cache.Expiration != "" {
		exp, err := cache.ParseExpiryStrategy(s.Cache.Expiration)
		if err != nil {
			return c, err
		}
		c.Cache.Expiration = exp
	}
	setPositive(&c.Cache.Duration, s.Cache.Duration)
	c.Cache.Parameters = append([]any(nil), s.Cache.Parameters...)

	return c, c.Validate()
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setPositive[T int | float64 | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}
