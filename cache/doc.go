// Package cache provides tenant- and principal-isolated cache keys, named
// stores with configurable expiry, and a registry for bulk invalidation.
//
// A Key identifies a cache slot by (tenant id, principal id, components).
// Stores are created by a Provider (memory, sturdyc or redis) under a name and
// an ExpiryPolicy. A Registry tracks any number of stores and invalidates
// entries across all of them by tenant, by principal or entirely.
package cache
