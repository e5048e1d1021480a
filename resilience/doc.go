// Package resilience runs units of work under a per-call Configuration that
// enables any of caching, circuit breaking, retrying, rate limiting,
// bulkheading and time limiting.
//
// # Configuration and isolation
//
// A Configuration names the call (its Identifier) and selects an
// IsolationMode. Stateful patterns keep one instance per IsolationKey, so
// under TenantRequired two tenants never share a circuit breaker, and cache
// entries are keyed by the ambient tenant and principal from package
// tenancy.
//
// # Decorators
//
// Every pattern is a Decorator: it takes a Callable and a Configuration and
// returns a Callable, or the same Callable when its part of the
// configuration is disabled. A Strategy folds its decorators over the work
// in list order, so the last decorator wraps outermost. The default order
// is bulkhead, time limiter, rate limiter, circuit breaker, caching, retry.
//
// # Caching
//
// CachingDecorator keeps one named cache.Store per identifier and computes
// each key at most once at a time: callers for the same key serialize on a
// lock from a LockCache and read the stored result. When a configuration's
// expiry changes, the store is destroyed and recreated. A closed store is
// bypassed rather than failing the call.
//
// # Usage
//
//	r, err := resilience.NewResilience(logger)
//	if err != nil {
//	    return err
//	}
//	cfg := resilience.NewConfiguration("prices").
//	    WithCache(cache.ExpireAfterCreation, time.Hour, "EUR")
//	price, err := resilience.Execute(ctx, r, cfg, fetchPrice, nil)
//
// Failed calls return *Error, which carries the identifier and wraps the
// cause, so errors.Is(err, ErrCircuitOpen) and similar checks work.
//
// The primitives (CircuitBreaker, Retry, RateLimiter, Bulkhead, Timeout) are
// usable on their own as well.
package resilience
