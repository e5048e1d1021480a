package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/jonwraymond/cloudsdk/cache"
	"github.com/jonwraymond/cloudsdk/observe"
)

// CachingOption configures a CachingDecorator.
type CachingOption func(*CachingDecorator)

// WithSerializableProvider sets the provider used for configurations with
// Cache.Serializable set.
// Default: the decorator's provider
func WithSerializableProvider(p cache.Provider) CachingOption {
	return func(d *CachingDecorator) {
		if p != nil {
			d.serializable = p
		}
	}
}

// WithCacheRegistry sets the registry that created stores join.
func WithCacheRegistry(r *cache.Registry) CachingOption {
	return func(d *CachingDecorator) {
		if r != nil {
			d.registry = r
		}
	}
}

// WithLockCache sets the lock cache shared by cache-miss computations.
func WithLockCache(lc *LockCache) CachingOption {
	return func(d *CachingDecorator) {
		if lc != nil {
			d.locks = lc
		}
	}
}

// WithValidity sets the check a cached value must pass to be returned.
// Values failing it are recomputed and never stored.
// Default: value is not nil
func WithValidity(valid func(value any) bool) CachingOption {
	return func(d *CachingDecorator) {
		if valid != nil {
			d.valid = valid
		}
	}
}

// WithCachingLogger sets the logger.
func WithCachingLogger(l observe.Logger) CachingOption {
	return func(d *CachingDecorator) {
		if l != nil {
			d.logger = l.With(observe.Field{Key: "component", Value: "resilience.caching"})
		}
	}
}

// WithCachingMetrics sets the recorder for cache hits and misses.
func WithCachingMetrics(m observe.Metrics) CachingOption {
	return func(d *CachingDecorator) {
		if m != nil {
			d.metrics = m
		}
	}
}

// CachingDecorator memoizes call results in one named store per
// configuration identifier.
//
// Contract:
//   - Concurrency: safe for concurrent use. Store setup is serialized; the
//     decorated call itself runs outside that lock.
//   - At most one computation is in flight per (identifier, cache key);
//     callers for the same key wait and then read the stored result.
//   - A closed store is bypassed: the call runs uncached.
//   - A value failing the validity check counts as a miss, so such values
//     are recomputed on every call.
type CachingDecorator struct {
	provider     cache.Provider
	serializable cache.Provider
	registry     *cache.Registry
	locks        *LockCache
	valid        func(any) bool
	logger       observe.Logger
	metrics      observe.Metrics
	valueTypes   *xsync.MapOf[string, reflect.Type]

	mu sync.Mutex
}

// NewCachingDecorator creates a caching decorator whose stores come from
// provider.
func NewCachingDecorator(provider cache.Provider, opts ...CachingOption) *CachingDecorator {
	if provider == nil {
		provider = cache.NewMemoryProvider()
	}
	d := &CachingDecorator{
		provider:     provider,
		serializable: provider,
		registry:     cache.NewRegistry(),
		locks:        NewLockCache(),
		valid:        func(v any) bool { return v != nil },
		logger:       observe.NopLogger(),
		metrics:      observe.NopMetrics(),
		valueTypes:   xsync.NewMapOf[string, reflect.Type](),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (*CachingDecorator) Name() string { return "caching" }

func (*CachingDecorator) Enabled(cfg Configuration) bool { return cfg.Cache.Enabled }

// Registry returns the registry stores are registered with.
func (d *CachingDecorator) Registry() *cache.Registry { return d.registry }

// Locks returns the lock cache.
func (d *CachingDecorator) Locks() *LockCache { return d.locks }

// DecorateCallable resolves the store for cfg and returns a memoizing
// callable. When the store cannot be created the returned callable fails
// with that error.
func (d *CachingDecorator) DecorateCallable(call Callable, cfg Configuration) Callable {
	return d.DecorateCallableContext(context.Background(), call, cfg)
}

// DecorateCallableContext is DecorateCallable with store setup, and its
// logging, done under ctx.
func (d *CachingDecorator) DecorateCallableContext(ctx context.Context, call Callable, cfg Configuration) Callable {
	if !cfg.Cache.Enabled {
		return call
	}
	store, err := d.resolveStore(ctx, cfg)
	if err != nil {
		d.logger.Error(ctx, "cache store unavailable",
			observe.Field{Key: "identifier", Value: cfg.Identifier},
			observe.Field{Key: "error", Value: err},
		)
		return func(context.Context) (any, error) {
			return nil, wrapError(cfg.Identifier, err)
		}
	}
	return func(ctx context.Context) (any, error) {
		return d.invoke(ctx, store, call, cfg)
	}
}

func (d *CachingDecorator) invoke(ctx context.Context, store cache.Store, call Callable, cfg Configuration) (any, error) {
	if store.IsClosed() {
		return call(ctx)
	}
	key, err := d.dataKey(ctx, cfg)
	if err != nil {
		return nil, wrapError(cfg.Identifier, err)
	}
	lockKey, err := key.Clone().Append(cfg.Identifier)
	if err != nil {
		return nil, wrapError(cfg.Identifier, err)
	}

	unlock := d.locks.Lock(lockKey.String())
	defer unlock()

	meta := d.callMeta(key, cfg)
	if v, ok := store.Get(ctx, key); ok {
		if v, ok = d.decode(ctx, cfg, v); ok && d.valid(v) {
			d.metrics.RecordCacheLookup(ctx, meta, true)
			return v, nil
		}
	}
	d.metrics.RecordCacheLookup(ctx, meta, false)

	v, err := call(ctx)
	if err != nil {
		return nil, wrapError(cfg.Identifier, err)
	}
	if d.valid(v) {
		d.valueTypes.Store(cfg.Identifier, reflect.TypeOf(v))
		if err := store.Put(ctx, key, v); err != nil {
			d.logger.Warn(ctx, "cache put failed",
				observe.Field{Key: "identifier", Value: cfg.Identifier},
				observe.Field{Key: "store_id", Value: store.ID()},
				observe.Field{Key: "error", Value: err},
			)
		}
	}
	return v, nil
}

// decode turns a raw value read from a serializing store back into a typed
// one: the type requested through ctx wins over the type this identifier
// last produced. Without either the raw value is returned as is. A value
// that does not decode counts as a miss.
func (d *CachingDecorator) decode(ctx context.Context, cfg Configuration, v any) (any, bool) {
	raw, ok := v.(json.RawMessage)
	if !ok {
		return v, true
	}
	t := resultTypeFrom(ctx)
	if t == nil {
		if t, ok = d.valueTypes.Load(cfg.Identifier); !ok || t == nil {
			return raw, true
		}
	}
	out := reflect.New(t)
	if err := json.Unmarshal(raw, out.Interface()); err != nil {
		d.logger.Warn(ctx, "cached value does not decode",
			observe.Field{Key: "identifier", Value: cfg.Identifier},
			observe.Field{Key: "type", Value: t.String()},
			observe.Field{Key: "error", Value: err},
		)
		return nil, false
	}
	return out.Elem().Interface(), true
}

// dataKey builds the storage key for the ambient isolation context and the
// configured parameters.
func (d *CachingDecorator) dataKey(ctx context.Context, cfg Configuration) (*cache.Key, error) {
	var (
		key *cache.Key
		err error
	)
	switch cfg.IsolationMode {
	case TenantRequired:
		key, err = cache.KeyOfTenantIsolation(ctx)
	case TenantOptional:
		key = cache.KeyOfTenantOptionalIsolation(ctx)
	case TenantAndPrincipalRequired:
		key, err = cache.KeyOfTenantAndPrincipalIsolation(ctx)
	case TenantAndPrincipalOptional:
		key = cache.KeyOfTenantAndPrincipalOptionalIsolation(ctx)
	default:
		key = cache.KeyOfNoIsolation()
	}
	if err != nil {
		return nil, err
	}
	if cfg.Cache.Serializable {
		sk, err := cache.NewSerializableKey(key)
		if err != nil {
			return nil, err
		}
		if sk, err = sk.Append(cfg.Cache.Parameters...); err != nil {
			return nil, err
		}
		return sk.Key(), nil
	}
	return key.Append(cfg.Cache.Parameters...)
}

func (d *CachingDecorator) callMeta(key *cache.Key, cfg Configuration) observe.CallMeta {
	t, _ := key.TenantID()
	p, _ := key.PrincipalID()
	return observe.CallMeta{
		Identifier:  cfg.Identifier,
		Isolation:   cfg.IsolationMode.String(),
		TenantID:    t,
		PrincipalID: p,
	}
}

func (d *CachingDecorator) providerFor(cfg Configuration) cache.Provider {
	if cfg.Cache.Serializable {
		return d.serializable
	}
	return d.provider
}

// resolveStore returns the store for cfg, creating it or replacing one
// whose expiry no longer matches.
func (d *CachingDecorator) resolveStore(ctx context.Context, cfg Configuration) (cache.Store, error) {
	expiry := cfg.Cache.Expiry()
	if err := expiry.Validate(); err != nil {
		return nil, err
	}
	provider := d.providerFor(cfg)

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := provider.Store(cfg.Identifier); ok {
		if !existing.IsClosed() && existing.Expiry() == expiry {
			return existing, nil
		}
		d.registry.Unregister(existing)
		if err := provider.DestroyStore(ctx, cfg.Identifier); err != nil {
			return nil, fmt.Errorf("destroy store %q: %w", cfg.Identifier, err)
		}
		d.logger.Info(ctx, "cache store recreated",
			observe.Field{Key: "identifier", Value: cfg.Identifier},
			observe.Field{Key: "old_expiry", Value: existing.Expiry().String()},
			observe.Field{Key: "expiry", Value: expiry.String()},
		)
	}

	store, err := provider.CreateStore(ctx, cfg.Identifier, expiry)
	if err != nil {
		return nil, fmt.Errorf("create store %q on %s: %w", cfg.Identifier, provider.Name(), err)
	}
	d.registry.Register(store)
	d.logger.Debug(ctx, "cache store created",
		observe.Field{Key: "identifier", Value: cfg.Identifier},
		observe.Field{Key: "provider", Value: provider.Name()},
		observe.Field{Key: "store_id", Value: store.ID()},
		observe.Field{Key: "expiry", Value: expiry.String()},
	)
	return store, nil
}

// errNoStore reports that a configuration has never been decorated.
var errNoStore = errors.New("no cache store")

func (d *CachingDecorator) lookupStore(cfg Configuration) (cache.Store, bool) {
	s, ok := d.providerFor(cfg).Store(cfg.Identifier)
	if !ok || s.IsClosed() {
		return nil, false
	}
	return s, true
}

// Clear removes the entries of cfg's store that filter matches and returns
// how many were removed. A configuration without a store clears nothing.
func (d *CachingDecorator) Clear(ctx context.Context, cfg Configuration, filter CacheFilter) (int, error) {
	store, ok := d.lookupStore(cfg)
	if !ok {
		return 0, nil
	}
	if filter == nil {
		filter = And()
	}
	var doomed []*cache.Key
	store.Range(ctx, func(key *cache.Key, value any) bool {
		if filter(ctx, cfg, key, value) {
			doomed = append(doomed, key)
		}
		return true
	})
	if len(doomed) == 0 {
		return 0, nil
	}
	if err := store.RemoveAll(ctx, doomed); err != nil {
		return 0, wrapError(cfg.Identifier, err)
	}
	return len(doomed), nil
}

// ClearAll removes every entry of cfg's store, across all tenants and
// principals.
func (d *CachingDecorator) ClearAll(ctx context.Context, cfg Configuration) error {
	store, ok := d.lookupStore(cfg)
	if !ok {
		return nil
	}
	if err := store.Clear(ctx); err != nil {
		return wrapError(cfg.Identifier, err)
	}
	return nil
}

// Store returns the live store for cfg, if it has been created.
func (d *CachingDecorator) Store(cfg Configuration) (cache.Store, error) {
	s, ok := d.lookupStore(cfg)
	if !ok {
		return nil, fmt.Errorf("%w for %q", errNoStore, cfg.Identifier)
	}
	return s, nil
}

var (
	_ ContextDecorator = (*CachingDecorator)(nil)
	_ pattern          = (*CachingDecorator)(nil)
)
