package bootstrap

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jonwraymond/cloudsdk/config"
	"github.com/jonwraymond/cloudsdk/health"
	"github.com/jonwraymond/cloudsdk/observe"
	"github.com/jonwraymond/cloudsdk/resilience"
	"github.com/jonwraymond/cloudsdk/tenancy"
)

func boolPtr(b bool) *bool { return &b }

func cachedConfig() config.Config {
	cfg := config.Default()
	cfg.Resilience = map[string]config.ResilienceSpec{
		"prices": {
			Cache: config.CacheSpec{Enabled: boolPtr(true), Duration: time.Minute},
		},
	}
	return cfg
}

func build(t *testing.T, cfg config.Config, opts ...Option) *Runtime {
	t.Helper()
	opts = append([]Option{WithLogger(observe.NopLogger())}, opts...)
	rt, err := Build(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })
	return rt
}

func countingWork(calls *atomic.Int32) func(context.Context) (int, error) {
	return func(context.Context) (int, error) {
		calls.Add(1)
		return 42, nil
	}
}

func TestBuild_Defaults(t *testing.T) {
	rt := build(t, cachedConfig())

	if rt.Strategy == nil || rt.Resilience == nil || rt.Registry == nil {
		t.Fatal("Build() left components nil")
	}
	if rt.Tokens != nil {
		t.Error("Tokens should be nil without a signing key")
	}
	if rt.Observer != nil {
		t.Error("Observer should be nil with telemetry disabled")
	}
	names := rt.Health.CheckerNames()
	if len(names) != 2 || names[0] != "circuit_breakers" || names[1] != "cache_registry" {
		t.Errorf("health checkers = %v", names)
	}

	rc, err := rt.Configuration("prices")
	if err != nil {
		t.Fatalf("Configuration() error = %v", err)
	}
	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		got, err := resilience.Execute(context.Background(), rt.Resilience, rc, countingWork(&calls), nil)
		if err != nil || got != 42 {
			t.Fatalf("Execute() = %d, %v", got, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("work ran %d times, want 1", calls.Load())
	}
	if rt.Registry.Len() != 1 {
		t.Errorf("registry caches = %d, want 1", rt.Registry.Len())
	}

	results := rt.Health.CheckAll(context.Background())
	if status := rt.Health.OverallStatus(results); status != health.StatusHealthy {
		t.Errorf("health = %v, want healthy", status)
	}
}

func TestBuild_Sturdyc(t *testing.T) {
	cfg := cachedConfig()
	cfg.Cache.Provider = config.ProviderSturdyc
	rt := build(t, cfg)

	rc, _ := rt.Configuration("prices")
	var calls atomic.Int32
	for i := 0; i < 2; i++ {
		if _, err := resilience.Execute(context.Background(), rt.Resilience, rc, countingWork(&calls), nil); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("work ran %d times, want 1", calls.Load())
	}
}

func TestBuild_RedisServesSerializableCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := cachedConfig()
	cfg.Cache.Redis.Address = mr.Addr()
	spec := cfg.Resilience["prices"]
	spec.Cache.Serializable = true
	cfg.Resilience["prices"] = spec

	rt := build(t, cfg)
	if names := rt.Health.CheckerNames(); len(names) != 3 {
		t.Errorf("health checkers = %v, want redis included", names)
	}

	rc, err := rt.Configuration("prices")
	if err != nil {
		t.Fatalf("Configuration() error = %v", err)
	}
	var calls atomic.Int32
	for i := 0; i < 2; i++ {
		got, err := resilience.Execute(context.Background(), rt.Resilience, rc, countingWork(&calls), nil)
		if err != nil || got != 42 {
			t.Fatalf("Execute() = %d, %v", got, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("work ran %d times, want 1", calls.Load())
	}
	if len(mr.Keys()) == 0 {
		t.Error("no entries written to redis")
	}

	results := rt.Health.CheckAll(context.Background())
	if results["redis"].Status != health.StatusHealthy {
		t.Errorf("redis health = %v (%v)", results["redis"].Status, results["redis"].Error)
	}
}

func TestBuild_RedisProvider(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := cachedConfig()
	cfg.Cache.Provider = config.ProviderRedis
	cfg.Cache.Redis.Address = mr.Addr()
	rt := build(t, cfg)

	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Provider = "memcached"
	rt, err := Build(context.Background(), cfg)
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("Build() error = %v, want ErrInvalidConfig", err)
	}
	if rt != nil {
		t.Error("Build() returned a runtime on error")
	}
}

func TestBuild_Tokens(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.SigningKey = "test-signing-key"
	cfg.Auth.Issuer = "https://issuer.example"
	rt := build(t, cfg)
	if rt.Tokens == nil {
		t.Fatal("Tokens is nil with a signing key")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "https://issuer.example",
		"zid": "tenant-1",
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	ctx, err := rt.Tokens.FromToken(context.Background(), signed)
	if err != nil {
		t.Fatalf("FromToken() error = %v", err)
	}
	if tenancy.TenantID(ctx) != "tenant-1" || tenancy.PrincipalID(ctx) != "alice" {
		t.Errorf("tenant/principal = %q/%q", tenancy.TenantID(ctx), tenancy.PrincipalID(ctx))
	}
}

func TestRuntime_Reload(t *testing.T) {
	rt := build(t, cachedConfig())

	next := cachedConfig()
	next.Resilience["orders"] = config.ResilienceSpec{Retry: config.RetrySpec{Enabled: boolPtr(true)}}
	if err := rt.Reload(context.Background(), next); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	rc, err := rt.Configuration("orders")
	if err != nil || !rc.Retry.Enabled {
		t.Fatalf("Configuration(orders) = %+v, %v", rc.Retry, err)
	}

	bad := cachedConfig()
	bad.Logging.Level = "loud"
	if err := rt.Reload(context.Background(), bad); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("Reload(invalid) error = %v, want ErrInvalidConfig", err)
	}
	if rt.Config().Logging.Level != "info" {
		t.Error("invalid reload replaced the configuration")
	}
}

func TestRuntime_ShutdownIsIdempotent(t *testing.T) {
	cfg := cachedConfig()
	cfg.Cache.CleanupInterval = 5 * time.Millisecond
	rt := build(t, cfg)

	time.Sleep(20 * time.Millisecond)
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown() error = %v", err)
	}
	if err := rt.Reload(context.Background(), cachedConfig()); !errors.Is(err, ErrShutdown) {
		t.Fatalf("Reload() after shutdown error = %v, want ErrShutdown", err)
	}
}
