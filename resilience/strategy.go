package resilience

import (
	"context"

	"github.com/jonwraymond/cloudsdk/observe"
)

// Fallback computes a replacement result for a failed call.
type Fallback func(ctx context.Context, err error) (any, error)

// StrategyOption configures a Strategy.
type StrategyOption func(*Strategy)

// WithDecorators replaces the decorator list. Decorators are applied in
// list order, so the last one wraps outermost.
func WithDecorators(decorators ...Decorator) StrategyOption {
	return func(s *Strategy) {
		s.decorators = append([]Decorator(nil), decorators...)
	}
}

// WithCachingDecorator sets the caching decorator used by the default
// decorator list and by the cache clearing operations.
func WithCachingDecorator(d *CachingDecorator) StrategyOption {
	return func(s *Strategy) {
		if d != nil {
			s.caching = d
		}
	}
}

// WithStrategyLogger sets the logger.
func WithStrategyLogger(l observe.Logger) StrategyOption {
	return func(s *Strategy) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMiddleware sets the telemetry middleware wrapped around each call.
func WithMiddleware(m *observe.Middleware) StrategyOption {
	return func(s *Strategy) {
		if m != nil {
			s.middleware = m
		}
	}
}

// WithExecutor sets how queued calls are scheduled.
// Default: a new goroutine per call
func WithExecutor(exec func(task func())) StrategyOption {
	return func(s *Strategy) {
		if exec != nil {
			s.executor = exec
		}
	}
}

// Strategy composes decorators around units of work.
//
// Contract:
//   - Concurrency: safe for concurrent use once constructed.
//   - Errors: failures surface as *Error unless a fallback recovers them.
//   - Ordering: decorators run in the order they were composed.
type Strategy struct {
	decorators []Decorator
	caching    *CachingDecorator
	middleware *observe.Middleware
	logger     observe.Logger
	executor   func(task func())
}

// NewStrategy creates a strategy. Without WithDecorators it uses, in
// order: bulkhead, time limiter, rate limiter, circuit breaker, caching and
// retry, which makes retry the outermost.
func NewStrategy(opts ...StrategyOption) *Strategy {
	s := &Strategy{
		logger:   observe.NopLogger(),
		executor: func(task func()) { go task() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.caching == nil {
		s.caching = findDecorator[*CachingDecorator](s.decorators)
	}
	if s.caching == nil {
		s.caching = NewCachingDecorator(nil, WithCachingLogger(s.logger))
	}
	if s.decorators == nil {
		s.decorators = []Decorator{
			NewBulkheadDecorator(nil),
			NewTimeLimiterDecorator(),
			NewRateLimiterDecorator(nil),
			NewCircuitBreakerDecorator(nil),
			s.caching,
			NewRetryDecorator(nil),
		}
	}
	if s.middleware == nil {
		s.middleware = observe.NewMiddleware(nil, nil, s.logger)
	}
	return s
}

// Decorators returns the decorator list in application order.
func (s *Strategy) Decorators() []Decorator {
	return append([]Decorator(nil), s.decorators...)
}

// Caching returns the caching decorator.
func (s *Strategy) Caching() *CachingDecorator { return s.caching }

// CircuitBreakers returns the circuit breaker instances of the strategy's
// circuit breaker decorator, or nil when it has none.
func (s *Strategy) CircuitBreakers() *ProviderRegistry[*CircuitBreaker] {
	if d := findDecorator[*CircuitBreakerDecorator](s.decorators); d != nil {
		return d.Provider()
	}
	return nil
}

// DecorateCallable folds every decorator over call. When the decorated
// call fails and fallback is non-nil, the fallback's result is returned
// instead.
//
// Decorator setup runs without a caller context; ExecuteCallable and
// QueueCallable pass theirs through.
//
// Values read back from a serializable cache are decoded into the type the
// identifier last produced in this process, or into the type requested by
// the typed helpers (Execute, Decorate, Queue). A hit on an entry written by
// another process before either is known comes back as json.RawMessage.
func (s *Strategy) DecorateCallable(call Callable, cfg Configuration, fallback Fallback) Callable {
	return s.decorate(context.Background(), call, cfg, fallback)
}

func (s *Strategy) decorate(setup context.Context, call Callable, cfg Configuration, fallback Fallback) Callable {
	chain := call
	for _, d := range s.decorators {
		chain = decorateWith(setup, d, chain, cfg)
	}
	patterns := s.enabledPatterns(cfg)

	return func(ctx context.Context) (any, error) {
		meta := observe.CallMeta{
			Identifier: cfg.Identifier,
			Isolation:  cfg.IsolationMode.String(),
			Patterns:   patterns,
		}
		if ik, err := NewIsolationKey(ctx, cfg.IsolationMode); err == nil {
			meta.TenantID, meta.PrincipalID = ik.TenantID, ik.PrincipalID
		}
		s.logger.Debug(ctx, "executing resilient call",
			observe.Field{Key: "identifier", Value: cfg.Identifier},
			observe.Field{Key: "patterns", Value: meta.PatternList()},
		)

		v, err := s.middleware.Wrap(meta, observe.CallFunc(chain))(ctx)
		if err == nil {
			return v, nil
		}
		if fallback == nil {
			return nil, wrapError(cfg.Identifier, err)
		}
		fv, ferr := fallback(ctx, err)
		if ferr != nil {
			return nil, wrapError(cfg.Identifier, ferr)
		}
		return fv, nil
	}
}

// ExecuteCallable decorates call and runs it.
func (s *Strategy) ExecuteCallable(ctx context.Context, call Callable, cfg Configuration, fallback Fallback) (any, error) {
	return s.decorate(ctx, call, cfg, fallback)(ctx)
}

// QueueCallable decorates call and schedules it on the executor. The
// returned future completes with the call's result.
func (s *Strategy) QueueCallable(ctx context.Context, call Callable, cfg Configuration, fallback Fallback) *Future[any] {
	decorated := s.decorate(ctx, call, cfg, fallback)
	f := newFuture[any]()
	s.executor(func() {
		f.complete(decorated(ctx))
	})
	return f
}

// ClearCache removes the entries of cfg's cache that belong to the ambient
// tenant and principal and carry cfg's parameters.
func (s *Strategy) ClearCache(ctx context.Context, cfg Configuration) (int, error) {
	return s.ClearCacheWithFilter(ctx, cfg, And(KeyMatchesTenant(), KeyMatchesPrincipal(), KeyMatchesParameters()))
}

// ClearCacheWithFilter removes the entries of cfg's cache that filter
// matches.
func (s *Strategy) ClearCacheWithFilter(ctx context.Context, cfg Configuration, filter CacheFilter) (int, error) {
	n, err := s.caching.Clear(ctx, cfg, filter)
	if err != nil {
		return n, err
	}
	s.logger.Info(ctx, "cache entries cleared",
		observe.Field{Key: "identifier", Value: cfg.Identifier},
		observe.Field{Key: "count", Value: n},
	)
	return n, nil
}

// ClearAllCacheEntries empties cfg's cache for every tenant and principal.
func (s *Strategy) ClearAllCacheEntries(ctx context.Context, cfg Configuration) error {
	if err := s.caching.ClearAll(ctx, cfg); err != nil {
		return err
	}
	s.logger.Warn(ctx, "cache cleared for all tenants",
		observe.Field{Key: "identifier", Value: cfg.Identifier},
	)
	return nil
}

// enabledPatterns names the enabled decorators, outermost first.
func (s *Strategy) enabledPatterns(cfg Configuration) []string {
	var names []string
	for i := len(s.decorators) - 1; i >= 0; i-- {
		if p, ok := s.decorators[i].(pattern); ok && p.Enabled(cfg) {
			names = append(names, p.Name())
		}
	}
	return names
}

func findDecorator[T Decorator](decorators []Decorator) T {
	var zero T
	for _, d := range decorators {
		if t, ok := d.(T); ok {
			return t
		}
	}
	return zero
}

var _ DecorationStrategy = (*Strategy)(nil)
