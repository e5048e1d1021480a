package resilience

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// ProviderRegistry lazily creates one pattern instance per isolation key and
// configuration identifier. Each isolation key owns its own registry, so
// two tenants never share pattern state. An instance is built from the
// configuration seen on first use and kept for the registry's lifetime.
//
// Contract:
//   - Concurrency: safe for concurrent use; build runs at most once per
//     (isolation key, identifier).
type ProviderRegistry[T any] struct {
	build      func(Configuration) T
	registries *xsync.MapOf[IsolationKey, *xsync.MapOf[string, T]]
}

// NewProviderRegistry creates a registry that builds instances with build.
func NewProviderRegistry[T any](build func(Configuration) T) *ProviderRegistry[T] {
	return &ProviderRegistry[T]{
		build:      build,
		registries: xsync.NewMapOf[IsolationKey, *xsync.MapOf[string, T]](),
	}
}

// Get returns the instance for key and cfg.Identifier, creating it on first
// use.
func (p *ProviderRegistry[T]) Get(key IsolationKey, cfg Configuration) T {
	registry, _ := p.registries.LoadOrCompute(key, func() *xsync.MapOf[string, T] {
		return xsync.NewMapOf[string, T]()
	})
	instance, _ := registry.LoadOrCompute(cfg.Identifier, func() T {
		return p.build(cfg)
	})
	return instance
}

// Lookup returns an existing instance without creating one.
func (p *ProviderRegistry[T]) Lookup(key IsolationKey, identifier string) (T, bool) {
	var zero T
	registry, ok := p.registries.Load(key)
	if !ok {
		return zero, false
	}
	return registry.Load(identifier)
}

// Range visits every instance until fn returns false.
func (p *ProviderRegistry[T]) Range(fn func(key IsolationKey, identifier string, instance T) bool) {
	p.registries.Range(func(key IsolationKey, registry *xsync.MapOf[string, T]) bool {
		cont := true
		registry.Range(func(identifier string, instance T) bool {
			cont = fn(key, identifier, instance)
			return cont
		})
		return cont
	})
}

// Len returns the number of instances across all isolation keys.
func (p *ProviderRegistry[T]) Len() int {
	n := 0
	p.registries.Range(func(_ IsolationKey, registry *xsync.MapOf[string, T]) bool {
		n += registry.Size()
		return true
	})
	return n
}

// Clear drops every instance.
func (p *ProviderRegistry[T]) Clear() {
	p.registries.Clear()
}

// NewCircuitBreakerProvider returns a registry of circuit breakers.
func NewCircuitBreakerProvider(opts ...func(*CircuitBreakerConfig)) *ProviderRegistry[*CircuitBreaker] {
	return NewProviderRegistry(func(cfg Configuration) *CircuitBreaker {
		c := CircuitBreakerConfig{
			FailureRateThreshold:          cfg.CircuitBreaker.FailureRateThreshold,
			SlidingWindowSize:             cfg.CircuitBreaker.SlidingWindowSize,
			WaitDurationInOpenState:       cfg.CircuitBreaker.WaitDurationInOpenState,
			PermittedCallsInHalfOpenState: cfg.CircuitBreaker.PermittedCallsInHalfOpenState,
		}
		for _, opt := range opts {
			opt(&c)
		}
		return NewCircuitBreaker(c)
	})
}

// NewRetryProvider returns a registry of retry handlers.
func NewRetryProvider() *ProviderRegistry[*Retry] {
	return NewProviderRegistry(func(cfg Configuration) *Retry {
		return NewRetry(RetryConfig{
			MaxAttempts:       cfg.Retry.MaxAttempts,
			WaitDuration:      cfg.Retry.WaitDuration,
			BackoffMultiplier: cfg.Retry.BackoffMultiplier,
			RetryIf:           cfg.Retry.RetryIf,
		})
	})
}

// NewRateLimiterProvider returns a registry of rate limiters.
func NewRateLimiterProvider(opts ...func(*RateLimiterConfig)) *ProviderRegistry[*RateLimiter] {
	return NewProviderRegistry(func(cfg Configuration) *RateLimiter {
		c := RateLimiterConfig{
			LimitForPeriod:     cfg.RateLimiter.LimitForPeriod,
			LimitRefreshPeriod: cfg.RateLimiter.LimitRefreshPeriod,
			Timeout:            cfg.RateLimiter.Timeout,
		}
		for _, opt := range opts {
			opt(&c)
		}
		return NewRateLimiter(c)
	})
}

// NewBulkheadProvider returns a registry of bulkheads.
func NewBulkheadProvider() *ProviderRegistry[*Bulkhead] {
	return NewProviderRegistry(func(cfg Configuration) *Bulkhead {
		return NewBulkhead(BulkheadConfig{
			MaxConcurrent: cfg.Bulkhead.MaxConcurrentCalls,
			MaxWait:       cfg.Bulkhead.MaxWaitDuration,
		})
	})
}
