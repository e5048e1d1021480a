package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisProviderName is the name reported by the redis provider.
const RedisProviderName = "redis"

// DefaultRedisKeyPrefix namespaces every key written by a RedisProvider.
const DefaultRedisKeyPrefix = "cloudsdk:cache"

// RedisOption configures a RedisProvider.
type RedisOption func(*RedisProvider)

// WithKeyPrefix sets the namespace for redis keys.
// Default: DefaultRedisKeyPrefix
func WithKeyPrefix(prefix string) RedisOption {
	return func(p *RedisProvider) {
		if prefix != "" {
			p.prefix = prefix
		}
	}
}

// WithScanCount sets the COUNT hint used when scanning a store.
// Default: 100
func WithScanCount(n int64) RedisOption {
	return func(p *RedisProvider) {
		if n > 0 {
			p.scanCount = n
		}
	}
}

// RedisProvider creates stores shared through redis. Keys must be
// SerializableKey-compatible and values must be JSON-encodable.
//
// Get returns the stored value as json.RawMessage; callers decode it into
// the type they expect. The provider does not own the client and never
// closes it.
type RedisProvider struct {
	client    redis.UniversalClient
	prefix    string
	scanCount int64

	mu     sync.Mutex
	stores map[string]*RedisStore
	closed bool
}

var _ Provider = (*RedisProvider)(nil)

// NewRedisProvider creates a provider on top of client.
func NewRedisProvider(client redis.UniversalClient, opts ...RedisOption) *RedisProvider {
	p := &RedisProvider{
		client:    client,
		prefix:    DefaultRedisKeyPrefix,
		scanCount: 100,
		stores:    make(map[string]*RedisStore),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *RedisProvider) Name() string { return RedisProviderName }

// Client returns the underlying redis client.
func (p *RedisProvider) Client() redis.UniversalClient { return p.client }

func (p *RedisProvider) Store(name string) (Store, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stores[name]
	if !ok {
		return nil, false
	}
	return s, true
}

func (p *RedisProvider) CreateStore(_ context.Context, name string, expiry ExpiryPolicy) (Store, error) {
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
	s := &RedisStore{
		name:      name,
		id:        uuid.NewString(),
		expiry:    expiry,
		client:    p.client,
		namespace: p.prefix + ":" + name + ":",
		scanCount: p.scanCount,
	}
	p.stores[name] = s
	return s, nil
}

// DestroyStore clears the named store's keys and forgets it.
func (p *RedisProvider) DestroyStore(ctx context.Context, name string) error {
	p.mu.Lock()
	s, ok := p.stores[name]
	delete(p.stores, name)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	err := s.Clear(ctx)
	_ = s.Close(ctx)
	return err
}

// Close closes every store handle. Data in redis is left in place.
func (p *RedisProvider) Close(ctx context.Context) error {
	p.mu.Lock()
	stores := p.stores
	p.stores = make(map[string]*RedisStore)
	p.closed = true
	p.mu.Unlock()
	for _, s := range stores {
		_ = s.Close(ctx)
	}
	return nil
}

type redisEnvelope struct {
	Key   *SerializableKey `json:"key"`
	Value json.RawMessage  `json:"value"`
}

// RedisStore is a Store whose entries live under a redis key namespace.
type RedisStore struct {
	name      string
	id        string
	expiry    ExpiryPolicy
	client    redis.UniversalClient
	namespace string
	scanCount int64
	closed    atomic.Bool
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) Name() string         { return s.name }
func (s *RedisStore) ID() string           { return s.id }
func (s *RedisStore) Expiry() ExpiryPolicy { return s.expiry }
func (s *RedisStore) IsClosed() bool       { return s.closed.Load() }

func (s *RedisStore) redisKey(k *Key) string {
	return s.namespace + k.String()
}

// Get returns the raw JSON value stored under key. Redis errors are
// reported as misses.
func (s *RedisStore) Get(ctx context.Context, key *Key) (any, bool) {
	if s.IsClosed() || key == nil {
		return nil, false
	}
	rk := s.redisKey(key)
	data, err := s.client.Get(ctx, rk).Bytes()
	if err != nil {
		return nil, false
	}
	var env redisEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false
	}
	if s.expiry.resetsOnAccess() {
		s.client.PExpire(ctx, rk, s.expiry.Duration)
	}
	return env.Value, true
}

// Put encodes value as JSON and stores it. Keys with components that are
// not serializable fail with ErrNotSerializable.
func (s *RedisStore) Put(ctx context.Context, key *Key, value any) error {
	if s.IsClosed() {
		return ErrStoreClosed
	}
	if key == nil {
		return fmt.Errorf("%w: nil key", ErrInvalidArgument)
	}
	sk, err := NewSerializableKey(key)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: value: %v", ErrNotSerializable, err)
	}
	data, err := json.Marshal(redisEnvelope{Key: sk, Value: raw})
	if err != nil {
		return err
	}
	rk := s.redisKey(key)

	if s.expiry.resetsOnUpdate() {
		return s.client.Set(ctx, rk, data, s.expiry.Duration).Err()
	}

	created, err := s.client.SetNX(ctx, rk, data, s.expiry.Duration).Result()
	if err != nil || created {
		return err
	}
	// Existing entry: replace the value but keep its remaining TTL.
	ttl, err := s.client.PTTL(ctx, rk).Result()
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = s.expiry.Duration
	}
	return s.client.Set(ctx, rk, data, ttl).Err()
}

// Range scans the store's namespace and visits each decodable entry.
func (s *RedisStore) Range(ctx context.Context, fn func(key *Key, value any) bool) {
	if s.IsClosed() {
		return
	}
	iter := s.client.Scan(ctx, 0, globEscape(s.namespace)+"*", s.scanCount).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var env redisEnvelope
		if err := json.Unmarshal(data, &env); err != nil || env.Key == nil {
			continue
		}
		if !fn(env.Key.Key(), env.Value) {
			return
		}
	}
}

func (s *RedisStore) RemoveAll(ctx context.Context, keys []*Key) error {
	if s.IsClosed() {
		return ErrStoreClosed
	}
	if len(keys) == 0 {
		return nil
	}
	rks := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != nil {
			rks = append(rks, s.redisKey(k))
		}
	}
	return s.client.Del(ctx, rks...).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if s.IsClosed() {
		return ErrStoreClosed
	}
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) EstimatedSize(ctx context.Context) int64 {
	if s.IsClosed() {
		return 0
	}
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return 0
	}
	return int64(len(keys))
}

// CleanUp is a no-op; redis expires keys itself.
func (s *RedisStore) CleanUp(_ context.Context) {}

// Close marks the handle closed. Stored data is not removed.
func (s *RedisStore) Close(_ context.Context) error {
	s.closed.Store(true)
	return nil
}

func (s *RedisStore) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, globEscape(s.namespace)+"*", s.scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return keys, nil
}

func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Ping checks the connection.
func (p *RedisProvider) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.client.Ping(ctx).Err()
}
