package resilience

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonwraymond/cloudsdk/cache"
)

// IsolationMode selects which of tenant and principal scope a call's
// pattern state and cache entries, and whether their absence is an error.
type IsolationMode int

const (
	// NoIsolation shares state across all tenants and principals.
	NoIsolation IsolationMode = iota
	// TenantRequired isolates by tenant and fails without one.
	TenantRequired
	// TenantOptional isolates by tenant when one is available.
	TenantOptional
	// TenantAndPrincipalRequired isolates by tenant and principal and fails
	// without both.
	TenantAndPrincipalRequired
	// TenantAndPrincipalOptional isolates by whichever of tenant and
	// principal are available.
	TenantAndPrincipalOptional
)

var isolationModeNames = map[IsolationMode]string{
	NoIsolation:                "NO_ISOLATION",
	TenantRequired:             "TENANT_REQUIRED",
	TenantOptional:             "TENANT_OPTIONAL",
	TenantAndPrincipalRequired: "TENANT_AND_PRINCIPAL_REQUIRED",
	TenantAndPrincipalOptional: "TENANT_AND_PRINCIPAL_OPTIONAL",
}

func (m IsolationMode) String() string {
	if s, ok := isolationModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("IsolationMode(%d)", int(m))
}

// ParseIsolationMode parses a mode name such as "TENANT_REQUIRED"
// (case-insensitive, '-' accepted for '_'). "TENANT_AND_USER_*" is accepted
// as an alias of "TENANT_AND_PRINCIPAL_*".
func ParseIsolationMode(s string) (IsolationMode, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	norm = strings.Replace(norm, "TENANT_AND_USER_", "TENANT_AND_PRINCIPAL_", 1)
	for m, name := range isolationModeNames {
		if name == norm {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown isolation mode %q", ErrInvalidConfiguration, s)
}

// TimeLimiterConfiguration bounds the duration of a call.
type TimeLimiterConfiguration struct {
	Enabled bool

	// Timeout is the maximum duration of a call.
	// Default: 30 seconds
	Timeout time.Duration
}

// CircuitBreakerConfiguration configures a count-based circuit breaker.
type CircuitBreakerConfiguration struct {
	Enabled bool

	// FailureRateThreshold is the failure percentage that opens the circuit.
	// Default: 50
	FailureRateThreshold float64

	// SlidingWindowSize is the number of recent calls the rate is taken over.
	// Default: 100
	SlidingWindowSize int

	// WaitDurationInOpenState is how long the circuit stays open.
	// Default: 10 seconds
	WaitDurationInOpenState time.Duration

	// PermittedCallsInHalfOpenState is the number of trial calls.
	// Default: 10
	PermittedCallsInHalfOpenState int
}

// BulkheadConfiguration limits concurrent calls.
type BulkheadConfiguration struct {
	Enabled bool

	// MaxConcurrentCalls is the number of calls allowed in flight.
	// Default: 50
	MaxConcurrentCalls int

	// MaxWaitDuration is how long a call may wait for a slot.
	// Default: 0 (fail immediately)
	MaxWaitDuration time.Duration
}

// RetryConfiguration retries failed calls.
type RetryConfiguration struct {
	Enabled bool

	// MaxAttempts includes the initial attempt.
	// Default: 3
	MaxAttempts int

	// WaitDuration is the delay before the first retry.
	// Default: 500ms
	WaitDuration time.Duration

	// BackoffMultiplier enables exponential backoff when greater than 1.
	// Default: 0 (constant delay)
	BackoffMultiplier float64

	// RetryIf reports whether an error is retryable.
	// Default: every error
	RetryIf func(err error) bool
}

// RateLimiterConfiguration limits calls per time period.
type RateLimiterConfiguration struct {
	Enabled bool

	// LimitForPeriod is the number of permits per period.
	// Default: 50
	LimitForPeriod int

	// LimitRefreshPeriod is the period after which permits reset.
	// Default: 1 second
	LimitRefreshPeriod time.Duration

	// Timeout is how long a call may wait for a permit.
	// Default: 5 seconds
	Timeout time.Duration
}

// CacheConfiguration memoizes call results.
type CacheConfiguration struct {
	Enabled bool

	// Serializable builds keys restricted to serializable components and
	// stores entries through the serializable provider.
	Serializable bool

	// Expiration selects which events reset an entry's lifetime.
	// Default: cache.ExpireAfterModification
	Expiration cache.ExpiryStrategy

	// Duration is the entry lifetime.
	// Default: 5 minutes
	Duration time.Duration

	// Parameters are appended to every cache key of this configuration.
	Parameters []any
}

// Expiry returns the store expiry policy this configuration demands.
func (c CacheConfiguration) Expiry() cache.ExpiryPolicy {
	return cache.ExpiryPolicy{Strategy: c.Expiration, Duration: c.Duration}
}

// Configuration is the immutable input to every decorator. The Identifier
// names the pattern instances and the cache store used for the call.
type Configuration struct {
	Identifier     string
	IsolationMode  IsolationMode
	TimeLimiter    TimeLimiterConfiguration
	CircuitBreaker CircuitBreakerConfiguration
	Bulkhead       BulkheadConfiguration
	Retry          RetryConfiguration
	RateLimiter    RateLimiterConfiguration
	Cache          CacheConfiguration
}

// NewConfiguration returns a configuration with the default settings:
// tenant-optional isolation, time limiter, circuit breaker and bulkhead
// enabled; retry, rate limiter and cache disabled.
func NewConfiguration(identifier string) Configuration {
	return Configuration{
		Identifier:    identifier,
		IsolationMode: TenantOptional,
		TimeLimiter: TimeLimiterConfiguration{
			Enabled: true,
			Timeout: 30 * time.Second,
		},
		CircuitBreaker: CircuitBreakerConfiguration{
			Enabled:                       true,
			FailureRateThreshold:          50,
			SlidingWindowSize:             100,
			WaitDurationInOpenState:       10 * time.Second,
			PermittedCallsInHalfOpenState: 10,
		},
		Bulkhead: BulkheadConfiguration{
			Enabled:            true,
			MaxConcurrentCalls: 50,
		},
		Retry: RetryConfiguration{
			MaxAttempts:  3,
			WaitDuration: 500 * time.Millisecond,
		},
		RateLimiter: RateLimiterConfiguration{
			LimitForPeriod:     50,
			LimitRefreshPeriod: time.Second,
			Timeout:            5 * time.Second,
		},
		Cache: CacheConfiguration{
			Expiration: cache.ExpireAfterModification,
			Duration:   5 * time.Minute,
		},
	}
}

// EmptyConfiguration returns a configuration with every pattern disabled.
// Decorating with it returns the work unchanged.
func EmptyConfiguration(identifier string) Configuration {
	c := NewConfiguration(identifier)
	c.TimeLimiter.Enabled = false
	c.CircuitBreaker.Enabled = false
	c.Bulkhead.Enabled = false
	return c
}

// WithCache returns a copy with caching enabled for the given expiry and
// parameters.
func (c Configuration) WithCache(expiration cache.ExpiryStrategy, d time.Duration, parameters ...any) Configuration {
	c.Cache.Enabled = true
	c.Cache.Expiration = expiration
	c.Cache.Duration = d
	c.Cache.Parameters = append([]any(nil), parameters...)
	return c
}

// Validate checks the settings of every enabled pattern.
func (c Configuration) Validate() error {
	if c.Identifier == "" {
		return fmt.Errorf("%w: identifier is required", ErrInvalidConfiguration)
	}
	if _, ok := isolationModeNames[c.IsolationMode]; !ok {
		return fmt.Errorf("%w: isolation mode %s", ErrInvalidConfiguration, c.IsolationMode)
	}
	if c.TimeLimiter.Enabled && c.TimeLimiter.Timeout <= 0 {
		return fmt.Errorf("%w: time limiter timeout must be positive", ErrInvalidConfiguration)
	}
	if cb := c.CircuitBreaker; cb.Enabled {
		if cb.FailureRateThreshold <= 0 || cb.FailureRateThreshold > 100 {
			return fmt.Errorf("%w: circuit breaker failure rate threshold must be in (0, 100]", ErrInvalidConfiguration)
		}
		if cb.SlidingWindowSize <= 0 || cb.PermittedCallsInHalfOpenState <= 0 || cb.WaitDurationInOpenState <= 0 {
			return fmt.Errorf("%w: circuit breaker sizes and wait duration must be positive", ErrInvalidConfiguration)
		}
	}
	if c.Bulkhead.Enabled && c.Bulkhead.MaxConcurrentCalls <= 0 {
		return fmt.Errorf("%w: bulkhead max concurrent calls must be positive", ErrInvalidConfiguration)
	}
	if c.Retry.Enabled && c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("%w: retry max attempts must be positive", ErrInvalidConfiguration)
	}
	if rl := c.RateLimiter; rl.Enabled && (rl.LimitForPeriod <= 0 || rl.LimitRefreshPeriod <= 0) {
		return fmt.Errorf("%w: rate limiter limit and refresh period must be positive", ErrInvalidConfiguration)
	}
	if c.Cache.Enabled {
		if err := c.Cache.Expiry().Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
		}
	}
	return nil
}
