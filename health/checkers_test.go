package health

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/jonwraymond/cloudsdk/cache"
	"github.com/jonwraymond/cloudsdk/resilience"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerChecker(t *testing.T) {
	breakers := resilience.NewCircuitBreakerProvider()
	checker := NewCircuitBreakerChecker(breakers)

	if got := checker.Check(context.Background()); got.Status != StatusHealthy {
		t.Fatalf("empty registry status = %v, want healthy", got.Status)
	}

	cfg := resilience.NewConfiguration("orders")
	cfg.CircuitBreaker.SlidingWindowSize = 2
	cfg.CircuitBreaker.FailureRateThreshold = 50
	key := resilience.IsolationKey{TenantID: "t1"}
	cb := breakers.Get(key, cfg)
	breakers.Get(resilience.IsolationKey{TenantID: "t2"}, cfg)

	if got := checker.Check(context.Background()); got.Status != StatusHealthy || got.Details["total"] != 2 {
		t.Fatalf("closed breakers = %v %v, want healthy with 2", got.Status, got.Details)
	}

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return errBoom })
	}
	if cb.State() != resilience.StateOpen {
		t.Fatalf("breaker state = %v, want open", cb.State())
	}

	got := checker.Check(context.Background())
	if got.Status != StatusDegraded {
		t.Fatalf("status = %v, want degraded", got.Status)
	}
	open, _ := got.Details["open"].([]string)
	if len(open) != 1 || open[0] != "orders@"+key.String() {
		t.Errorf("open = %v, want [orders@%s]", open, key)
	}
}

func TestCircuitBreakerChecker_NilRegistry(t *testing.T) {
	if got := NewCircuitBreakerChecker(nil).Check(context.Background()); got.Status != StatusHealthy {
		t.Fatalf("status = %v, want healthy", got.Status)
	}
}

func TestRegistryChecker(t *testing.T) {
	ctx := context.Background()
	registry := cache.NewRegistry()
	provider := cache.NewMemoryProvider()
	store, err := provider.CreateStore(ctx, "prices", cache.DefaultExpiryPolicy())
	if err != nil {
		t.Fatalf("CreateStore() error = %v", err)
	}
	registry.Register(store)

	for _, id := range []string{"a", "b", "c"} {
		key, err := cache.KeyFromIDs("t1", "").Append(id)
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if err := store.Put(ctx, key, id); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	checker := NewRegistryChecker(registry)
	got := checker.Check(ctx)
	if got.Status != StatusHealthy {
		t.Fatalf("status = %v, want healthy", got.Status)
	}
	if got.Details["caches"] != 1 || got.Details["entries"] != int64(3) {
		t.Errorf("details = %v, want 1 cache with 3 entries", got.Details)
	}

	checker.MaxEntries = 2
	if got := checker.Check(ctx); got.Status != StatusDegraded {
		t.Errorf("status over limit = %v, want degraded", got.Status)
	}
}

func TestRegistryChecker_NilRegistry(t *testing.T) {
	got := NewRegistryChecker(nil).Check(context.Background())
	if got.Status != StatusUnhealthy || !errors.Is(got.Error, ErrCheckFailed) {
		t.Fatalf("got %v %v, want unhealthy ErrCheckFailed", got.Status, got.Error)
	}
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	checker := NewRedisChecker(client)
	if got := checker.Check(context.Background()); got.Status != StatusHealthy {
		t.Fatalf("status = %v (%v), want healthy", got.Status, got.Error)
	}

	mr.Close()
	got := checker.Check(context.Background())
	if got.Status != StatusUnhealthy {
		t.Fatalf("status after close = %v, want unhealthy", got.Status)
	}
	if !errors.Is(got.Error, ErrCheckFailed) {
		t.Errorf("error = %v, want ErrCheckFailed", got.Error)
	}
}

func TestAggregator_RuntimeCheckers(t *testing.T) {
	agg := NewAggregator()
	agg.Register("circuits", NewCircuitBreakerChecker(resilience.NewCircuitBreakerProvider()))
	agg.Register("caches", NewRegistryChecker(cache.NewRegistry()))

	results := agg.CheckAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if status := agg.OverallStatus(results); status != StatusHealthy {
		t.Errorf("overall = %v, want healthy", status)
	}
}
