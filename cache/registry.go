package cache

import (
	"context"
	"sync"

	"github.com/jonwraymond/cloudsdk/observe"
	"github.com/jonwraymond/cloudsdk/tenancy"
)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used to report sweep results and
// per-store failures.
func WithRegistryLogger(l observe.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l.With(observe.Field{Key: "component", Value: "cache.registry"})
		}
	}
}

// Registry tracks live stores so they can be invalidated in bulk by tenant,
// by principal, or entirely.
//
// Contract:
//   - Concurrency: all methods are safe for concurrent use. Sweeps iterate a
//     snapshot, so stores registered during a sweep may be skipped.
//   - Errors: a failure on one store is logged and does not stop the sweep.
//   - Counts: returned counts are best-effort and may include entries that
//     expired before removal.
type Registry struct {
	mu     sync.Mutex
	stores []BulkCache
	logger observe.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{logger: observe.NopLogger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a store and returns it. Registering the same store twice
// makes sweeps visit it twice.
func (r *Registry) Register(c BulkCache) BulkCache {
	if c == nil {
		return nil
	}
	r.mu.Lock()
	r.stores = append(r.stores, c)
	r.mu.Unlock()
	return c
}

// Unregister removes one registration of c and returns c. Its entries are
// kept. Unknown stores are ignored.
func (r *Registry) Unregister(c BulkCache) BulkCache {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.stores {
		if s == c {
			r.stores = append(r.stores[:i], r.stores[i+1:]...)
			break
		}
	}
	return c
}

// Caches returns a snapshot of the registered stores.
func (r *Registry) Caches() []BulkCache {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]BulkCache, len(r.stores))
	copy(out, r.stores)
	return out
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// InvalidateAll clears every registered store and returns the number of
// entries they held beforehand.
func (r *Registry) InvalidateAll(ctx context.Context) int64 {
	var total int64
	for _, c := range r.Caches() {
		size := c.EstimatedSize(ctx)
		if err := c.Clear(ctx); err != nil {
			r.logger.Warn(ctx, "cache clear failed", observe.Field{Key: "error", Value: err})
			continue
		}
		total += size
	}
	r.logger.Info(ctx, "invalidated all caches", observe.Field{Key: "entries", Value: total})
	return total
}

// InvalidateTenantCaches removes every entry whose key belongs to tenantID.
// An empty tenantID targets keys without tenant isolation.
func (r *Registry) InvalidateTenantCaches(ctx context.Context, tenantID string) int64 {
	n := r.removeMatching(ctx, func(k *Key) bool { return k.MatchesTenant(tenantID) })
	r.logger.Info(ctx, "invalidated tenant caches",
		observe.Field{Key: "tenant.id", Value: tenantID},
		observe.Field{Key: "entries", Value: n},
	)
	return n
}

// InvalidatePrincipalCaches removes every entry whose key belongs to the
// given tenant and principal.
func (r *Registry) InvalidatePrincipalCaches(ctx context.Context, tenantID, principalID string) int64 {
	n := r.removeMatching(ctx, func(k *Key) bool { return k.MatchesPrincipal(tenantID, principalID) })
	r.logger.Info(ctx, "invalidated principal caches",
		observe.Field{Key: "tenant.id", Value: tenantID},
		observe.Field{Key: "principal.id", Value: principalID},
		observe.Field{Key: "entries", Value: n},
	)
	return n
}

// InvalidateTenantCachesFromContext invalidates the ambient tenant's entries.
// It returns 0 when no tenant is available.
func (r *Registry) InvalidateTenantCachesFromContext(ctx context.Context) int64 {
	t, ok := tenancy.TenantFromContext(ctx)
	if !ok {
		return 0
	}
	return r.InvalidateTenantCaches(ctx, t.ID)
}

// InvalidatePrincipalCachesFromContext invalidates the ambient principal's
// entries. It returns 0 unless both tenant and principal are available.
func (r *Registry) InvalidatePrincipalCachesFromContext(ctx context.Context) int64 {
	t, ok := tenancy.TenantFromContext(ctx)
	if !ok {
		return 0
	}
	p, ok := tenancy.PrincipalFromContext(ctx)
	if !ok {
		return 0
	}
	return r.InvalidatePrincipalCaches(ctx, t.ID, p.ID)
}

// CleanUp asks every registered store to drop expired entries.
func (r *Registry) CleanUp(ctx context.Context) {
	caches := r.Caches()
	for _, c := range caches {
		c.CleanUp(ctx)
	}
	r.logger.Info(ctx, "cleaned up caches", observe.Field{Key: "caches", Value: len(caches)})
}

func (r *Registry) removeMatching(ctx context.Context, match func(*Key) bool) int64 {
	var total int64
	for _, c := range r.Caches() {
		var doomed []*Key
		c.Range(ctx, func(k *Key, _ any) bool {
			if match(k) {
				doomed = append(doomed, k)
			}
			return true
		})
		if len(doomed) == 0 {
			continue
		}
		if err := c.RemoveAll(ctx, doomed); err != nil {
			r.logger.Warn(ctx, "cache removal failed",
				observe.Field{Key: "error", Value: err},
				observe.Field{Key: "keys", Value: len(doomed)},
			)
			continue
		}
		total += int64(len(doomed))
	}
	return total
}
