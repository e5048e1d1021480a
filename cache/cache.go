package cache

import (
	"context"
	"errors"
)

// Sentinel errors for cache operations.
var (
	// ErrInvalidArgument is returned when a nil component is appended to a key.
	ErrInvalidArgument = errors.New("cache: invalid argument")

	// ErrNotSerializable is returned when a component or value cannot be
	// serialized for a store that persists beyond the process.
	ErrNotSerializable = errors.New("cache: value is not serializable")

	// ErrUnsupportedExpiry is returned when an expiry strategy is unknown or
	// not supported by a provider.
	ErrUnsupportedExpiry = errors.New("cache: unsupported expiry strategy")

	// ErrInvalidExpiry is returned when an expiry policy has an unknown strategy or a non-positive duration.
	ErrInvalidExpiry = errors.New("cache: invalid expiry policy")

	// ErrStoreClosed is returned when writing to a closed store.
	ErrStoreClosed = errors.New("cache: store is closed")

	// ErrStoreExists is returned when creating a store under a name in use.
	ErrStoreExists = errors.New("cache: store already exists")
)

// BulkCache is the surface a Registry needs to sweep a cache.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Range visits a point-in-time view; entries added during Range may be missed.
// - EstimatedSize may count entries that are expired but not yet cleaned up.
type BulkCache interface {
	// Range calls fn for each live entry until fn returns false.
	Range(ctx context.Context, fn func(key *Key, value any) bool)

	// RemoveAll removes the given keys. Missing keys are ignored.
	RemoveAll(ctx context.Context, keys []*Key) error

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// EstimatedSize returns the approximate number of entries.
	EstimatedSize(ctx context.Context) int64

	// CleanUp evicts entries that are already expired.
	CleanUp(ctx context.Context)
}

// Store is a named cache of Key to value entries with one ExpiryPolicy.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Get never errors; it returns (nil, false) on miss or when closed.
// - Ownership: Put stores a copy of the key; later Appends do not affect it.
type Store interface {
	BulkCache

	// Name returns the name the store was created under.
	Name() string

	// ID returns a unique id for this store instance.
	ID() string

	// Get returns the live value for key.
	Get(ctx context.Context, key *Key) (any, bool)

	// Put stores value under key, applying the expiry policy.
	Put(ctx context.Context, key *Key, value any) error

	// Expiry returns the policy the store was created with.
	Expiry() ExpiryPolicy

	// Close releases the store. Closed stores miss on Get and reject Put.
	Close(ctx context.Context) error

	// IsClosed reports whether Close has been called.
	IsClosed() bool
}

// Provider creates and destroys named stores.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - CreateStore fails with ErrStoreExists for a name already in use and with
//     ErrUnsupportedExpiry for a policy the provider cannot honor.
//   - DestroyStore closes the store, drops its entries and frees the name.
type Provider interface {
	// Name identifies the provider in logs ("memory", "sturdyc", "redis").
	Name() string

	// Store returns the store registered under name.
	Store(name string) (Store, bool)

	// CreateStore creates a store under name.
	CreateStore(ctx context.Context, name string, expiry ExpiryPolicy) (Store, error)

	// DestroyStore destroys the store registered under name, if any.
	DestroyStore(ctx context.Context, name string) error

	// Close destroys every store created by the provider.
	Close(ctx context.Context) error
}
