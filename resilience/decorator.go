package resilience

import (
	"context"
)

// Callable is a unit of work that decorators wrap.
type Callable func(ctx context.Context) (any, error)

// Decorator wraps a Callable according to one part of a Configuration.
//
// Contract:
//   - A decorator whose part of cfg is disabled returns call unchanged.
//   - Isolation is resolved when the returned Callable runs, from the
//     context it is given.
//   - The returned Callable is safe for concurrent use.
type Decorator interface {
	DecorateCallable(call Callable, cfg Configuration) Callable
}

// ContextDecorator is implemented by decorators whose setup does I/O or
// logs. Strategy calls it with the caller's context when one is available.
type ContextDecorator interface {
	Decorator
	DecorateCallableContext(ctx context.Context, call Callable, cfg Configuration) Callable
}

func decorateWith(ctx context.Context, d Decorator, call Callable, cfg Configuration) Callable {
	if cd, ok := d.(ContextDecorator); ok {
		return cd.DecorateCallableContext(ctx, call, cfg)
	}
	return d.DecorateCallable(call, cfg)
}

// DecoratorFunc adapts a function to Decorator.
type DecoratorFunc func(call Callable, cfg Configuration) Callable

func (f DecoratorFunc) DecorateCallable(call Callable, cfg Configuration) Callable {
	return f(call, cfg)
}

// pattern is implemented by the built-in decorators for telemetry.
type pattern interface {
	Name() string
	Enabled(cfg Configuration) bool
}

// executor is the shape shared by the pattern primitives.
type executor interface {
	Execute(ctx context.Context, op func(context.Context) error) error
}

// callThrough runs call inside ex and carries its value out.
func callThrough(ctx context.Context, ex executor, call Callable) (any, error) {
	var out any
	err := ex.Execute(ctx, func(ctx context.Context) error {
		v, err := call(ctx)
		out = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// isolatedDecorator wraps calls with a pattern instance chosen per isolation
// key.
type isolatedDecorator[T executor] struct {
	name     string
	enabled  func(Configuration) bool
	provider *ProviderRegistry[T]
}

func (d *isolatedDecorator[T]) Name() string                   { return d.name }
func (d *isolatedDecorator[T]) Enabled(cfg Configuration) bool { return d.enabled(cfg) }

func (d *isolatedDecorator[T]) DecorateCallable(call Callable, cfg Configuration) Callable {
	if !d.enabled(cfg) {
		return call
	}
	return func(ctx context.Context) (any, error) {
		key, err := NewIsolationKey(ctx, cfg.IsolationMode)
		if err != nil {
			return nil, err
		}
		return callThrough(ctx, d.provider.Get(key, cfg), call)
	}
}

// Provider returns the registry of pattern instances.
func (d *isolatedDecorator[T]) Provider() *ProviderRegistry[T] { return d.provider }

// CircuitBreakerDecorator guards calls with a circuit breaker per isolation key.
type CircuitBreakerDecorator = isolatedDecorator[*CircuitBreaker]

// RetryDecorator retries calls with a retry handler per isolation key.
type RetryDecorator = isolatedDecorator[*Retry]

// RateLimiterDecorator limits calls with a rate limiter per isolation key.
type RateLimiterDecorator = isolatedDecorator[*RateLimiter]

// BulkheadDecorator limits concurrency with a bulkhead per isolation key.
type BulkheadDecorator = isolatedDecorator[*Bulkhead]

// NewCircuitBreakerDecorator creates the circuit breaker decorator.
func NewCircuitBreakerDecorator(provider *ProviderRegistry[*CircuitBreaker]) *CircuitBreakerDecorator {
	if provider == nil {
		provider = NewCircuitBreakerProvider()
	}
	return &CircuitBreakerDecorator{
		name:     "circuitbreaker",
		enabled:  func(c Configuration) bool { return c.CircuitBreaker.Enabled },
		provider: provider,
	}
}

// NewRetryDecorator creates the retry decorator.
func NewRetryDecorator(provider *ProviderRegistry[*Retry]) *RetryDecorator {
	if provider == nil {
		provider = NewRetryProvider()
	}
	return &RetryDecorator{
		name:     "retry",
		enabled:  func(c Configuration) bool { return c.Retry.Enabled },
		provider: provider,
	}
}

// NewRateLimiterDecorator creates the rate limiter decorator.
func NewRateLimiterDecorator(provider *ProviderRegistry[*RateLimiter]) *RateLimiterDecorator {
	if provider == nil {
		provider = NewRateLimiterProvider()
	}
	return &RateLimiterDecorator{
		name:     "ratelimiter",
		enabled:  func(c Configuration) bool { return c.RateLimiter.Enabled },
		provider: provider,
	}
}

// NewBulkheadDecorator creates the bulkhead decorator.
func NewBulkheadDecorator(provider *ProviderRegistry[*Bulkhead]) *BulkheadDecorator {
	if provider == nil {
		provider = NewBulkheadProvider()
	}
	return &BulkheadDecorator{
		name:     "bulkhead",
		enabled:  func(c Configuration) bool { return c.Bulkhead.Enabled },
		provider: provider,
	}
}

// TimeLimiterDecorator bounds call duration. It holds no state, so it
// needs no per-isolation instances.
type TimeLimiterDecorator struct{}

// NewTimeLimiterDecorator creates the time limiter decorator.
func NewTimeLimiterDecorator() *TimeLimiterDecorator { return &TimeLimiterDecorator{} }

func (*TimeLimiterDecorator) Name() string { return "timelimiter" }

func (*TimeLimiterDecorator) Enabled(cfg Configuration) bool { return cfg.TimeLimiter.Enabled }

func (*TimeLimiterDecorator) DecorateCallable(call Callable, cfg Configuration) Callable {
	if !cfg.TimeLimiter.Enabled {
		return call
	}
	t := NewTimeout(TimeoutConfig{Timeout: cfg.TimeLimiter.Timeout})
	return func(ctx context.Context) (any, error) {
		return t.Call(ctx, call)
	}
}

var (
	_ Decorator = (*CircuitBreakerDecorator)(nil)
	_ Decorator = (*RetryDecorator)(nil)
	_ Decorator = (*RateLimiterDecorator)(nil)
	_ Decorator = (*BulkheadDecorator)(nil)
	_ Decorator = (*TimeLimiterDecorator)(nil)
	_ Decorator = DecoratorFunc(nil)
	_ pattern   = (*TimeLimiterDecorator)(nil)
	_ pattern   = (*CircuitBreakerDecorator)(nil)
)
