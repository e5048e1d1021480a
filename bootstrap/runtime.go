package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/jonwraymond/cloudsdk/cache"
	"github.com/jonwraymond/cloudsdk/config"
	"github.com/jonwraymond/cloudsdk/health"
	"github.com/jonwraymond/cloudsdk/observe"
	"github.com/jonwraymond/cloudsdk/resilience"
	"github.com/jonwraymond/cloudsdk/tenancy"
)

// Option configures Build.
type Option func(*options)

type options struct {
	logger observe.Logger
	redis  redis.UniversalClient
}

// WithLogger replaces the logger Build would create from the logging level.
func WithLogger(l observe.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRedisClient supplies the Redis client instead of dialing
// cache.redis.address. The runtime does not close a supplied client.
func WithRedisClient(c redis.UniversalClient) Option {
	return func(o *options) { o.redis = c }
}

// Runtime holds the composed components.
type Runtime struct {
	Logger     observe.Logger
	Observer   observe.Observer
	Registry   *cache.Registry
	Strategy   *resilience.Strategy
	Resilience *resilience.Resilience
	Health     *health.Aggregator

	// Tokens is nil when no auth.signing_key is configured.
	Tokens *tenancy.JWTExtractor

	cfg          atomic.Pointer[config.Config]
	providers    []cache.Provider
	redis        redis.UniversalClient
	ownsRedis    bool
	stopCleanup  context.CancelFunc
	cleanupDone  chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
	closed       atomic.Bool
}

// Build composes a runtime from cfg. On error, everything built so far is
// released.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (rt *Runtime, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	rt = &Runtime{Logger: o.logger}
	if rt.Logger == nil {
		rt.Logger = observe.NewLogger(cfg.Logging.Level)
	}
	rt.cfg.Store(&cfg)
	defer func() {
		if err != nil {
			_ = rt.release(context.WithoutCancel(ctx))
			rt = nil
		}
	}()

	middleware, metrics, err := rt.buildTelemetry(ctx, cfg.Observe)
	if err != nil {
		return rt, err
	}

	rt.Registry = cache.NewRegistry(cache.WithRegistryLogger(rt.Logger))

	rt.redis = o.redis
	if rt.redis == nil && cfg.Cache.Redis.Address != "" {
		rt.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Address,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		rt.ownsRedis = true
	}

	provider, serializable, err := rt.buildProviders(cfg.Cache)
	if err != nil {
		return rt, err
	}

	locks := resilience.NewLockCache(resilience.WithLockIdle(cfg.Cache.LockIdleTimeout))
	caching := resilience.NewCachingDecorator(provider,
		resilience.WithSerializableProvider(serializable),
		resilience.WithCacheRegistry(rt.Registry),
		resilience.WithLockCache(locks),
		resilience.WithCachingLogger(rt.Logger),
		resilience.WithCachingMetrics(metrics),
	)
	rt.Strategy = resilience.NewStrategy(
		resilience.WithCachingDecorator(caching),
		resilience.WithStrategyLogger(rt.Logger),
		resilience.WithMiddleware(middleware),
	)
	rt.Resilience, err = resilience.NewResilience(rt.Logger, rt.Strategy)
	if err != nil {
		return rt, err
	}

	if cfg.Auth.SigningKey != "" {
		rt.Tokens = tenancy.NewJWTExtractor(tenancy.JWTConfig{
			Issuer:         cfg.Auth.Issuer,
			TenantClaim:    cfg.Auth.TenantClaim,
			SubdomainClaim: cfg.Auth.SubdomainClaim,
			PrincipalClaim: cfg.Auth.PrincipalClaim,
		}, tenancy.NewStaticKeyProvider([]byte(cfg.Auth.SigningKey)))
	}

	rt.Health = health.NewAggregator()
	rt.Health.Register("circuit_breakers", health.NewCircuitBreakerChecker(rt.Strategy.CircuitBreakers()))
	rt.Health.Register("cache_registry", health.NewRegistryChecker(rt.Registry))
	if rt.redis != nil {
		rt.Health.Register("redis", health.NewRedisChecker(rt.redis))
	}

	if cfg.Cache.CleanupInterval > 0 {
		rt.startCleanup(cfg.Cache.CleanupInterval, locks)
	}

	rt.Logger.Info(ctx, "resilience runtime started",
		observe.Field{Key: "cache_provider", Value: provider.Name()},
		observe.Field{Key: "serializable_provider", Value: serializable.Name()},
		observe.Field{Key: "configurations", Value: len(cfg.Resilience)},
	)
	return rt, nil
}

func (rt *Runtime) buildTelemetry(ctx context.Context, cfg observe.Config) (*observe.Middleware, observe.Metrics, error) {
	if !cfg.Tracing.Enabled && !cfg.Metrics.Enabled {
		return observe.NewMiddleware(nil, nil, rt.Logger), observe.NopMetrics(), nil
	}
	obs, err := observe.NewObserver(ctx, cfg, rt.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: telemetry: %w", err)
	}
	rt.Observer = obs
	metrics, err := observe.NewMetrics(obs.Meter())
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: metrics: %w", err)
	}
	return observe.NewMiddleware(observe.NewTracer(obs.Tracer()), metrics, rt.Logger), metrics, nil
}

// buildProviders returns the default provider and the provider for
// serializable caches: Redis whenever a client is available.
func (rt *Runtime) buildProviders(cfg config.CacheConfig) (provider, serializable cache.Provider, err error) {
	var redisProvider cache.Provider
	if rt.redis != nil {
		redisProvider = cache.NewRedisProvider(rt.redis, cache.WithKeyPrefix(cfg.Redis.KeyPrefix))
		rt.providers = append(rt.providers, redisProvider)
	}

	switch cfg.Provider {
	case config.ProviderMemory:
		provider = cache.NewMemoryProvider()
	case config.ProviderSturdyc:
		provider = cache.NewSturdycProvider(cache.SturdycConfig{
			Capacity:           cfg.Sturdyc.Capacity,
			NumShards:          cfg.Sturdyc.NumShards,
			EvictionPercentage: cfg.Sturdyc.EvictionPercentage,
			EvictionInterval:   cfg.Sturdyc.EvictionInterval,
		})
	case config.ProviderRedis:
		if redisProvider == nil {
			return nil, nil, fmt.Errorf("%w: redis without a client", ErrUnknownProvider)
		}
		provider = redisProvider
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	if provider != redisProvider {
		rt.providers = append(rt.providers, provider)
	}

	serializable = provider
	if redisProvider != nil {
		serializable = redisProvider
	}
	return provider, serializable, nil
}

func (rt *Runtime) startCleanup(interval time.Duration, locks *resilience.LockCache) {
	ctx, cancel := context.WithCancel(context.Background())
	rt.stopCleanup = cancel
	rt.cleanupDone = make(chan struct{})

	go func() {
		defer close(rt.cleanupDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rt.Registry.CleanUp(ctx)
				if n := locks.Evict(); n > 0 {
					rt.Logger.Debug(ctx, "evicted idle cache locks", observe.Field{Key: "count", Value: n})
				}
			}
		}
	}()
}

// Config returns the configuration currently in effect.
func (rt *Runtime) Config() config.Config { return *rt.cfg.Load() }

// Configuration returns the resilience configuration for identifier from
// the configuration currently in effect.
func (rt *Runtime) Configuration(identifier string) (resilience.Configuration, error) {
	return rt.Config().ResilienceFor(identifier)
}

// Reload replaces the resilience section used by Configuration. Components
// built at startup, such as providers and telemetry, keep their settings;
// a changed cache expiry takes effect on the next call because the caching
// decorator recreates stores whose expiry no longer matches.
func (rt *Runtime) Reload(ctx context.Context, cfg config.Config) error {
	if rt.closed.Load() {
		return ErrShutdown
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	rt.cfg.Store(&cfg)
	rt.Logger.Info(ctx, "resilience configuration reloaded",
		observe.Field{Key: "configurations", Value: len(cfg.Resilience)})
	return nil
}

// Watch reloads the runtime whenever loader's files change. The returned
// watcher must be stopped before Shutdown.
func (rt *Runtime) Watch(ctx context.Context, loader *config.Loader) (*config.Watcher, error) {
	if rt.closed.Load() {
		return nil, ErrShutdown
	}
	return loader.Watch(ctx,
		func(cfg config.Config) {
			if err := rt.Reload(ctx, cfg); err != nil {
				rt.Logger.Warn(ctx, "configuration reload rejected", observe.Field{Key: "error", Value: err.Error()})
			}
		},
		func(err error) {
			rt.Logger.Warn(ctx, "configuration reload failed", observe.Field{Key: "error", Value: err.Error()})
		},
	)
}

// Shutdown stops background work, closes every cache store and the Redis
// client, and flushes telemetry. It is safe to call more than once.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	rt.shutdownOnce.Do(func() {
		rt.closed.Store(true)
		rt.shutdownErr = rt.release(ctx)
		rt.Logger.Info(ctx, "resilience runtime stopped")
	})
	return rt.shutdownErr
}

func (rt *Runtime) release(ctx context.Context) error {
	var errs []error
	if rt.stopCleanup != nil {
		rt.stopCleanup()
		<-rt.cleanupDone
	}
	for _, p := range rt.providers {
		if err := p.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("bootstrap: close %s provider: %w", p.Name(), err))
		}
	}
	if rt.redis != nil && rt.ownsRedis {
		if err := rt.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("bootstrap: close redis: %w", err))
		}
	}
	if rt.Observer != nil {
		if err := rt.Observer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("bootstrap: telemetry shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
