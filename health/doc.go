// Package health reports the state of a resilience runtime.
//
// A Checker reports one component as Healthy, Degraded or Unhealthy. The
// package ships checkers for the parts of a runtime that can go wrong on
// their own: circuit breakers that have opened, the cache registry, and a
// Redis backend. An Aggregator runs a set of checkers concurrently under one
// deadline and folds their results into an overall Status.
//
//	agg := health.NewAggregator()
//	agg.Register("circuits", health.NewCircuitBreakerChecker(strategy.CircuitBreakers()))
//	agg.Register("caches", health.NewRegistryChecker(registry))
//	agg.Register("redis", health.NewRedisChecker(client))
//
//	results := agg.CheckAll(ctx)
//	if agg.OverallStatus(results) == health.StatusUnhealthy {
//	    // stop taking traffic
//	}
package health
