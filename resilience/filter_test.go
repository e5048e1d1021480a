package resilience

import (
	"context"
	"testing"

	"github.com/jonwraymond/cloudsdk/cache"
)

func filterKey(t *testing.T, tenantID, principalID string, params ...any) *cache.Key {
	t.Helper()
	k, err := cache.KeyFromIDs(tenantID, principalID).Append(params...)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func TestCacheFilter_Predicates(t *testing.T) {
	cfg := cachedConfig("f", TenantAndPrincipalOptional, "p1", 2)
	ctx := isolationCtx("t1", "alice")

	tests := []struct {
		name   string
		filter CacheFilter
		key    *cache.Key
		want   bool
	}{
		{"ambient tenant match", KeyMatchesTenant(), filterKey(t, "t1", "bob"), true},
		{"ambient tenant mismatch", KeyMatchesTenant(), filterKey(t, "t2", "alice"), false},
		{"explicit tenant", KeyMatchesTenantID("t2"), filterKey(t, "t2", ""), true},
		{"explicit empty tenant", KeyMatchesTenantID(""), filterKey(t, "", ""), true},
		{"ambient principal match", KeyMatchesPrincipal(), filterKey(t, "t9", "alice"), true},
		{"ambient principal mismatch", KeyMatchesPrincipal(), filterKey(t, "t1", "bob"), false},
		{"explicit principal", KeyMatchesPrincipalID("bob"), filterKey(t, "t1", "bob"), true},
		{"configured parameters", KeyMatchesParameters(), filterKey(t, "t1", "", "p1", 2), true},
		{"parameters order sensitive", KeyMatchesParameters(), filterKey(t, "t1", "", 2, "p1"), false},
		{"explicit parameters", KeyMatchesParameterList("x"), filterKey(t, "", "", "x"), true},
		{"explicit parameters length", KeyMatchesParameterList("x"), filterKey(t, "", "", "x", "y"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter(ctx, cfg, tt.key, nil); got != tt.want {
				t.Errorf("filter() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheFilter_AmbientUnresolvable(t *testing.T) {
	cfg := cachedConfig("f", TenantRequired)
	key := filterKey(t, "", "")

	if KeyMatchesTenant()(context.Background(), cfg, key, nil) {
		t.Error("KeyMatchesTenant matched without a required tenant")
	}
	if KeyMatchesPrincipal()(context.Background(), cfg, key, nil) {
		t.Error("KeyMatchesPrincipal matched without a required tenant")
	}
}

func TestCacheFilter_Combinators(t *testing.T) {
	ctx := context.Background()
	cfg := cachedConfig("f", NoIsolation)
	key := filterKey(t, "a", "")
	isA := KeyMatchesTenantID("a")
	isB := KeyMatchesTenantID("b")

	tests := []struct {
		name   string
		filter CacheFilter
		want   bool
	}{
		{"and both", And(isA, isA), true},
		{"and conflicting", And(isA, isB), false},
		{"and empty", And(), true},
		{"or conflicting", Or(isB, isA), true},
		{"or neither", Or(isB, isB), false},
		{"or empty", Or(), false},
		{"nested", Or(And(isA, isB), isA), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter(ctx, cfg, key, nil); got != tt.want {
				t.Errorf("filter() = %v, want %v", got, tt.want)
			}
		})
	}
}
