package resilience

import (
	"context"

	"github.com/jonwraymond/cloudsdk/cache"
)

// CacheFilter selects cache entries for targeted invalidation. It is never
// consulted when reading or writing entries.
type CacheFilter func(ctx context.Context, cfg Configuration, key *cache.Key, value any) bool

// And matches when every filter matches. With no filters it matches
// everything.
func And(filters ...CacheFilter) CacheFilter {
	return func(ctx context.Context, cfg Configuration, key *cache.Key, value any) bool {
		for _, f := range filters {
			if !f(ctx, cfg, key, value) {
				return false
			}
		}
		return true
	}
}

// Or matches when any filter matches. With no filters it matches nothing.
func Or(filters ...CacheFilter) CacheFilter {
	return func(ctx context.Context, cfg Configuration, key *cache.Key, value any) bool {
		for _, f := range filters {
			if f(ctx, cfg, key, value) {
				return true
			}
		}
		return false
	}
}

// KeyMatchesTenant matches keys whose tenant equals the ambient tenant
// under the configuration's isolation mode. It matches nothing when the
// isolation key cannot be resolved.
func KeyMatchesTenant() CacheFilter {
	return func(ctx context.Context, cfg Configuration, key *cache.Key, _ any) bool {
		ik, err := NewIsolationKey(ctx, cfg.IsolationMode)
		if err != nil {
			return false
		}
		return key.MatchesTenant(ik.TenantID)
	}
}

// KeyMatchesTenantID matches keys whose tenant is tenantID. An empty
// tenantID matches keys without a tenant.
func KeyMatchesTenantID(tenantID string) CacheFilter {
	return func(_ context.Context, _ Configuration, key *cache.Key, _ any) bool {
		return key.MatchesTenant(tenantID)
	}
}

// KeyMatchesPrincipal matches keys whose principal equals the ambient
// principal under the configuration's isolation mode.
func KeyMatchesPrincipal() CacheFilter {
	return func(ctx context.Context, cfg Configuration, key *cache.Key, _ any) bool {
		ik, err := NewIsolationKey(ctx, cfg.IsolationMode)
		if err != nil {
			return false
		}
		return principalMatches(key, ik.PrincipalID)
	}
}

// KeyMatchesPrincipalID matches keys whose principal is principalID.
func KeyMatchesPrincipalID(principalID string) CacheFilter {
	return func(_ context.Context, _ Configuration, key *cache.Key, _ any) bool {
		return principalMatches(key, principalID)
	}
}

// KeyMatchesParameters matches keys whose components equal the
// configuration's cache parameters, in order.
func KeyMatchesParameters() CacheFilter {
	return func(_ context.Context, cfg Configuration, key *cache.Key, _ any) bool {
		return key.MatchesComponents(cfg.Cache.Parameters)
	}
}

// KeyMatchesParameterList matches keys whose components equal params, in
// order.
func KeyMatchesParameterList(params ...any) CacheFilter {
	want := append([]any(nil), params...)
	return func(_ context.Context, _ Configuration, key *cache.Key, _ any) bool {
		return key.MatchesComponents(want)
	}
}

func principalMatches(key *cache.Key, principalID string) bool {
	p, _ := key.PrincipalID()
	return p == principalID
}
