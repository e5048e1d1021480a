package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryProviderName is the name reported by the in-process provider.
const MemoryProviderName = "memory"

// MemoryOption configures a MemoryProvider.
type MemoryOption func(*MemoryProvider)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(p *MemoryProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// MemoryProvider creates in-process stores. It supports every expiry
// strategy and accepts any key.
type MemoryProvider struct {
	mu     sync.Mutex
	stores map[string]*MemoryStore
	now    func() time.Time
	closed bool
}

var _ Provider = (*MemoryProvider)(nil)

// NewMemoryProvider creates a provider with no stores.
func NewMemoryProvider(opts ...MemoryOption) *MemoryProvider {
	p := &MemoryProvider{
		stores: make(map[string]*MemoryStore),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns MemoryProviderName.
func (p *MemoryProvider) Name() string { return MemoryProviderName }

// Store returns the open store with the given name.
func (p *MemoryProvider) Store(name string) (Store, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stores[name]
	if !ok {
		return nil, false
	}
	return s, true
}

// CreateStore creates a store. It fails with ErrStoreExists if an open
// store with that name already exists.
func (p *MemoryProvider) CreateStore(_ context.Context, name string, expiry ExpiryPolicy) (Store, error) {
	if err := expiry.Validate(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrStoreClosed
	}
	if _, ok := p.stores[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrStoreExists, name)
	}
	s := &MemoryStore{
		name:    name,
		id:      uuid.NewString(),
		expiry:  expiry,
		entries: xsync.NewMapOf[string, *memoryEntry](),
		now:     p.now,
	}
	p.stores[name] = s
	return s, nil
}

// DestroyStore closes and forgets the named store. Unknown names are ignored.
func (p *MemoryProvider) DestroyStore(ctx context.Context, name string) error {
	p.mu.Lock()
	s, ok := p.stores[name]
	delete(p.stores, name)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close(ctx)
}

// Close closes every store and rejects further creation.
func (p *MemoryProvider) Close(ctx context.Context) error {
	p.mu.Lock()
	stores := p.stores
	p.stores = make(map[string]*MemoryStore)
	p.closed = true
	p.mu.Unlock()
	for _, s := range stores {
		_ = s.Close(ctx)
	}
	return nil
}

type memoryEntry struct {
	key       *Key
	value     any
	expiresAt time.Time
}

// MemoryStore is a Store held in process memory. Entries are immutable and
// replaced atomically, so concurrent readers never observe partial updates.
type MemoryStore struct {
	name    string
	id      string
	expiry  ExpiryPolicy
	entries *xsync.MapOf[string, *memoryEntry]
	now     func() time.Time
	closed  atomic.Bool
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Name() string         { return s.name }
func (s *MemoryStore) ID() string           { return s.id }
func (s *MemoryStore) Expiry() ExpiryPolicy { return s.expiry }
func (s *MemoryStore) IsClosed() bool       { return s.closed.Load() }

// Get returns the live value for key. Closed stores always miss.
func (s *MemoryStore) Get(_ context.Context, key *Key) (any, bool) {
	if s.IsClosed() || key == nil {
		return nil, false
	}
	now := s.now()
	var value any
	var hit bool
	s.entries.Compute(key.String(), func(old *memoryEntry, loaded bool) (*memoryEntry, bool) {
		if !loaded {
			return nil, true
		}
		if !now.Before(old.expiresAt) {
			return nil, true
		}
		value, hit = old.value, true
		if s.expiry.resetsOnAccess() {
			return &memoryEntry{key: old.key, value: old.value, expiresAt: now.Add(s.expiry.Duration)}, false
		}
		return old, false
	})
	return value, hit
}

// Put stores value under key.
func (s *MemoryStore) Put(_ context.Context, key *Key, value any) error {
	if s.IsClosed() {
		return ErrStoreClosed
	}
	if key == nil {
		return fmt.Errorf("%w: nil key", ErrInvalidArgument)
	}
	now := s.now()
	stored := key.Clone()
	s.entries.Compute(key.String(), func(old *memoryEntry, loaded bool) (*memoryEntry, bool) {
		expiresAt := now.Add(s.expiry.Duration)
		if loaded && now.Before(old.expiresAt) && !s.expiry.resetsOnUpdate() {
			expiresAt = old.expiresAt
		}
		return &memoryEntry{key: stored, value: value, expiresAt: expiresAt}, false
	})
	return nil
}

// Range visits live entries until fn returns false.
func (s *MemoryStore) Range(_ context.Context, fn func(key *Key, value any) bool) {
	if s.IsClosed() {
		return
	}
	now := s.now()
	s.entries.Range(func(_ string, e *memoryEntry) bool {
		if !now.Before(e.expiresAt) {
			return true
		}
		return fn(e.key.Clone(), e.value)
	})
}

// RemoveAll deletes the given keys. Missing keys are ignored.
func (s *MemoryStore) RemoveAll(_ context.Context, keys []*Key) error {
	if s.IsClosed() {
		return ErrStoreClosed
	}
	for _, k := range keys {
		if k != nil {
			s.entries.Delete(k.String())
		}
	}
	return nil
}

// Clear deletes every entry.
func (s *MemoryStore) Clear(_ context.Context) error {
	if s.IsClosed() {
		return ErrStoreClosed
	}
	s.entries.Clear()
	return nil
}

// EstimatedSize returns the number of held entries, which may include
// entries that have expired but not yet been cleaned up.
func (s *MemoryStore) EstimatedSize(_ context.Context) int64 {
	return int64(s.entries.Size())
}

// CleanUp drops expired entries.
func (s *MemoryStore) CleanUp(_ context.Context) {
	now := s.now()
	s.entries.Range(func(k string, e *memoryEntry) bool {
		if !now.Before(e.expiresAt) {
			s.entries.Compute(k, func(cur *memoryEntry, loaded bool) (*memoryEntry, bool) {
				if !loaded {
					return nil, true
				}
				return cur, !now.Before(cur.expiresAt)
			})
		}
		return true
	})
}

// Close marks the store closed and releases its entries.
func (s *MemoryStore) Close(_ context.Context) error {
	if s.closed.CompareAndSwap(false, true) {
		s.entries.Clear()
	}
	return nil
}
