package cache_test

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/cloudsdk/cache"
	"github.com/jonwraymond/cloudsdk/tenancy"
)

func ExampleKeyOfTenantIsolation() {
	ctx := tenancy.WithTenant(context.Background(), tenancy.Tenant{ID: "acme"})

	key, err := cache.KeyOfTenantIsolation(ctx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	_, _ = key.Append("orders", 42)

	tenant, _ := key.TenantID()
	fmt.Println("tenant:", tenant)
	fmt.Println("components:", len(key.Components()))
	// Output:
	// tenant: acme
	// components: 2
}

func ExampleRegistry_InvalidateTenantCaches() {
	ctx := context.Background()
	provider := cache.NewMemoryProvider()
	store, _ := provider.CreateStore(ctx, "orders", cache.ExpiryPolicy{
		Strategy: cache.ExpireAfterModification,
		Duration: time.Minute,
	})

	registry := cache.NewRegistry()
	registry.Register(store)

	for _, tenant := range []string{"acme", "acme", "globex"} {
		key, _ := cache.KeyFromIDs(tenant, "").Append(store.EstimatedSize(ctx))
		_ = store.Put(ctx, key, "value")
	}

	fmt.Println("removed:", registry.InvalidateTenantCaches(ctx, "acme"))
	fmt.Println("remaining:", store.EstimatedSize(ctx))
	// Output:
	// removed: 2
	// remaining: 1
}
