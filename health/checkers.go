package health

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"

	"github.com/jonwraymond/cloudsdk/cache"
	"github.com/jonwraymond/cloudsdk/resilience"
)

// CircuitBreakerChecker reports Degraded while any circuit breaker is open
// or half-open. Calls behind an open breaker fail fast, but the rest of the
// runtime keeps serving, so an open breaker never makes the runtime
// Unhealthy.
type CircuitBreakerChecker struct {
	breakers *resilience.ProviderRegistry[*resilience.CircuitBreaker]
}

// NewCircuitBreakerChecker creates a checker over the breakers of a
// strategy, usually Strategy.CircuitBreakers().
func NewCircuitBreakerChecker(breakers *resilience.ProviderRegistry[*resilience.CircuitBreaker]) *CircuitBreakerChecker {
	return &CircuitBreakerChecker{breakers: breakers}
}

// Name returns "circuit_breakers".
func (c *CircuitBreakerChecker) Name() string { return "circuit_breakers" }

// Check inspects every breaker.
func (c *CircuitBreakerChecker) Check(_ context.Context) Result {
	if c.breakers == nil {
		return Healthy("no circuit breakers")
	}
	var open, halfOpen []string
	total := 0
	c.breakers.Range(func(key resilience.IsolationKey, identifier string, cb *resilience.CircuitBreaker) bool {
		total++
		name := identifier + "@" + key.String()
		switch cb.State() {
		case resilience.StateOpen:
			open = append(open, name)
		case resilience.StateHalfOpen:
			halfOpen = append(halfOpen, name)
		}
		return true
	})
	sort.Strings(open)
	sort.Strings(halfOpen)

	details := map[string]any{
		"total":     total,
		"open":      open,
		"half_open": halfOpen,
	}
	if len(open) > 0 || len(halfOpen) > 0 {
		return Degraded(fmt.Sprintf("%d open, %d half-open of %d circuit breakers", len(open), len(halfOpen), total)).
			WithDetails(details)
	}
	return Healthy(fmt.Sprintf("%d circuit breakers closed", total)).WithDetails(details)
}

// RegistryChecker reports the caches in a cache.Registry and their
// estimated entry counts. With MaxEntries set, it reports Degraded once the
// total exceeds it.
type RegistryChecker struct {
	registry *cache.Registry

	// MaxEntries is the total entry count above which the check degrades.
	// Default: 0 (no limit)
	MaxEntries int64
}

// NewRegistryChecker creates a checker over registry.
func NewRegistryChecker(registry *cache.Registry) *RegistryChecker {
	return &RegistryChecker{registry: registry}
}

// Name returns "cache_registry".
func (c *RegistryChecker) Name() string { return "cache_registry" }

// Check sums the estimated size of every registered cache.
func (c *RegistryChecker) Check(ctx context.Context) Result {
	if c.registry == nil {
		return Unhealthy("no cache registry", ErrCheckFailed)
	}
	caches := c.registry.Caches()
	var entries int64
	for _, bc := range caches {
		if err := ctx.Err(); err != nil {
			return Unhealthy("cache registry check interrupted", err)
		}
		entries += bc.EstimatedSize(ctx)
	}
	details := map[string]any{
		"caches":  len(caches),
		"entries": entries,
	}
	if c.MaxEntries > 0 && entries > c.MaxEntries {
		return Degraded(fmt.Sprintf("%d cache entries exceed limit %d", entries, c.MaxEntries)).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("%d caches, %d entries", len(caches), entries)).WithDetails(details)
}

// RedisChecker pings a Redis server.
type RedisChecker struct {
	client redis.UniversalClient
}

// NewRedisChecker creates a checker for client.
func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{client: client}
}

// Name returns "redis".
func (c *RedisChecker) Name() string { return "redis" }

// Check reports Unhealthy when the server does not answer PING.
func (c *RedisChecker) Check(ctx context.Context) Result {
	if c.client == nil {
		return Unhealthy("no redis client", ErrCheckFailed)
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return Unhealthy("redis ping failed", fmt.Errorf("%w: %w", ErrCheckFailed, err))
	}
	return Healthy("redis reachable")
}

var (
	_ Checker = (*CircuitBreakerChecker)(nil)
	_ Checker = (*RegistryChecker)(nil)
	_ Checker = (*RedisChecker)(nil)
	_ Checker = (*CheckerFunc)(nil)
)
