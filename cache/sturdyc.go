package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/viccon/sturdyc"
)

// SturdycProviderName is the name reported by the sharded provider.
const SturdycProviderName = "sturdyc"

// SturdycConfig sizes each store created by a SturdycProvider.
type SturdycConfig struct {
	// Capacity is the maximum number of entries per store.
	// Default: 10000
	Capacity int

	// NumShards splits each store to reduce lock contention.
	// Default: 10
	NumShards int

	// EvictionPercentage is the share of a full shard evicted at once.
	// Default: 10
	EvictionPercentage int

	// EvictionInterval is how often expired entries are swept.
	// Default: 1 minute
	EvictionInterval time.Duration
}

// DefaultSturdycConfig returns the default store sizing.
func DefaultSturdycConfig() SturdycConfig {
	return SturdycConfig{
		Capacity:           10000,
		NumShards:          10,
		EvictionPercentage: 10,
		EvictionInterval:   time.Minute,
	}
}

func (c SturdycConfig) withDefaults() SturdycConfig {
	d := DefaultSturdycConfig()
	if c.Capacity <= 0 {
		c.Capacity = d.Capacity
	}
	if c.NumShards <= 0 {
		c.NumShards = d.NumShards
	}
	if c.EvictionPercentage <= 0 || c.EvictionPercentage > 100 {
		c.EvictionPercentage = d.EvictionPercentage
	}
	if c.EvictionInterval <= 0 {
		c.EvictionInterval = d.EvictionInterval
	}
	return c
}

// SturdycProvider creates sharded, capacity-bounded in-process stores.
//
// The underlying client resets an entry's TTL on every write and never on
// read, so only ExpireAfterModification and ExpireAfterCreation are
// supported. Under ExpireAfterCreation a live entry is never overwritten,
// since rewriting it would reset its TTL. Caching decorators write only on a
// miss, which makes the two strategies behave identically there.
type SturdycProvider struct {
	cfg    SturdycConfig
	mu     sync.Mutex
	stores map[string]*SturdycStore
	closed bool
}

var _ Provider = (*SturdycProvider)(nil)

// NewSturdycProvider creates a provider. Zero fields of cfg take defaults.
func NewSturdycProvider(cfg SturdycConfig) *SturdycProvider {
	return &SturdycProvider{
		cfg:    cfg.withDefaults(),
		stores: make(map[string]*SturdycStore),
	}
}

func (p *SturdycProvider) Name() string { return SturdycProviderName }

func (p *SturdycProvider) Store(name string) (Store, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stores[name]
	if !ok {
		return nil, false
	}
	return s, true
}

// CreateStore fails with ErrUnsupportedExpiry for access and touch expiry.
func (p *SturdycProvider) CreateStore(_ context.Context, name string, expiry ExpiryPolicy) (Store, error) {
	if err := expiry.Validate(); err != nil {
		return nil, err
	}
	if expiry.Strategy != ExpireAfterModification && expiry.Strategy != ExpireAfterCreation {
		return nil, fmt.Errorf("%w: %s provider does not support %s", ErrUnsupportedExpiry, p.Name(), expiry.Strategy)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrStoreClosed
	}
	if _, ok := p.stores[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrStoreExists, name)
	}
	client := sturdyc.New[sturdycEntry](
		p.cfg.Capacity,
		p.cfg.NumShards,
		expiry.Duration,
		p.cfg.EvictionPercentage,
		sturdyc.WithEvictionInterval(p.cfg.EvictionInterval),
	)
	s := &SturdycStore{name: name, id: uuid.NewString(), expiry: expiry, client: client}
	p.stores[name] = s
	return s, nil
}

func (p *SturdycProvider) DestroyStore(ctx context.Context, name string) error {
	p.mu.Lock()
	s, ok := p.stores[name]
	delete(p.stores, name)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close(ctx)
}

func (p *SturdycProvider) Close(ctx context.Context) error {
	p.mu.Lock()
	stores := p.stores
	p.stores = make(map[string]*SturdycStore)
	p.closed = true
	p.mu.Unlock()
	for _, s := range stores {
		_ = s.Close(ctx)
	}
	return nil
}

type sturdycEntry struct {
	key   *Key
	value any
}

// SturdycStore is a Store backed by a sturdyc client.
type SturdycStore struct {
	name   string
	id     string
	expiry ExpiryPolicy
	client *sturdyc.Client[sturdycEntry]
	closed atomic.Bool
}

var _ Store = (*SturdycStore)(nil)

func (s *SturdycStore) Name() string         { return s.name }
func (s *SturdycStore) ID() string           { return s.id }
func (s *SturdycStore) Expiry() ExpiryPolicy { return s.expiry }
func (s *SturdycStore) IsClosed() bool       { return s.closed.Load() }

func (s *SturdycStore) Get(_ context.Context, key *Key) (any, bool) {
	if s.IsClosed() || key == nil {
		return nil, false
	}
	e, ok := s.client.Get(key.String())
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (s *SturdycStore) Put(_ context.Context, key *Key, value any) error {
	if s.IsClosed() {
		return ErrStoreClosed
	}
	if key == nil {
		return fmt.Errorf("%w: nil key", ErrInvalidArgument)
	}
	cacheKey := key.String()
	if s.expiry.Strategy == ExpireAfterCreation {
		if _, ok := s.client.Get(cacheKey); ok {
			return nil
		}
	}
	s.client.Set(cacheKey, sturdycEntry{key: key.Clone(), value: value})
	return nil
}

func (s *SturdycStore) Range(_ context.Context, fn func(key *Key, value any) bool) {
	if s.IsClosed() {
		return
	}
	for _, k := range s.client.ScanKeys() {
		e, ok := s.client.Get(k)
		if !ok {
			continue
		}
		if !fn(e.key.Clone(), e.value) {
			return
		}
	}
}

func (s *SturdycStore) RemoveAll(_ context.Context, keys []*Key) error {
	if s.IsClosed() {
		return ErrStoreClosed
	}
	for _, k := range keys {
		if k != nil {
			s.client.Delete(k.String())
		}
	}
	return nil
}

func (s *SturdycStore) Clear(_ context.Context) error {
	if s.IsClosed() {
		return ErrStoreClosed
	}
	for _, k := range s.client.ScanKeys() {
		s.client.Delete(k)
	}
	return nil
}

func (s *SturdycStore) EstimatedSize(_ context.Context) int64 {
	if s.IsClosed() {
		return 0
	}
	return int64(s.client.Size())
}

// CleanUp is a no-op; the client sweeps expired entries on its own interval.
func (s *SturdycStore) CleanUp(_ context.Context) {}

func (s *SturdycStore) Close(ctx context.Context) error {
	if s.closed.CompareAndSwap(false, true) {
		for _, k := range s.client.ScanKeys() {
			s.client.Delete(k)
		}
	}
	return nil
}
