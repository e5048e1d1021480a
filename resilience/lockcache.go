package resilience

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// LockCacheOption configures a LockCache.
type LockCacheOption func(*LockCache)

// WithLockIdle sets how long an unused lock is kept.
// Default: 30 minutes
func WithLockIdle(d time.Duration) LockCacheOption {
	return func(c *LockCache) {
		if d > 0 {
			c.idle = d
		}
	}
}

// WithLockClock sets the time source used for idle tracking.
func WithLockClock(now func() time.Time) LockCacheOption {
	return func(c *LockCache) {
		if now != nil {
			c.now = now
		}
	}
}

type lockEntry struct {
	mu         sync.Mutex
	refs       int
	lastAccess time.Time
}

// LockCache hands out one mutex per string key. Locks that nobody holds or
// waits on are dropped once idle.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Two callers locking the same key at the same time always share a
//     mutex; eviction never removes a lock that is held or awaited.
type LockCache struct {
	locks     *xsync.MapOf[string, *lockEntry]
	idle      time.Duration
	now       func() time.Time
	lastSweep atomic.Int64
}

// NewLockCache creates an empty lock cache.
func NewLockCache(opts ...LockCacheOption) *LockCache {
	c := &LockCache{
		locks: xsync.NewMapOf[string, *lockEntry](),
		idle:  30 * time.Minute,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lastSweep.Store(c.now().UnixNano())
	return c
}

// Lock blocks until the lock for key is held and returns its release
// function. The release function must be called exactly once.
func (c *LockCache) Lock(key string) (unlock func()) {
	c.maybeSweep()

	entry, _ := c.locks.Compute(key, func(old *lockEntry, loaded bool) (*lockEntry, bool) {
		if !loaded {
			old = &lockEntry{}
		}
		old.refs++
		old.lastAccess = c.now()
		return old, false
	})
	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			c.locks.Compute(key, func(old *lockEntry, loaded bool) (*lockEntry, bool) {
				if !loaded || old != entry {
					return old, !loaded
				}
				old.refs--
				old.lastAccess = c.now()
				return old, false
			})
		})
	}
}

// Evict drops locks that are unused and have been idle at least the idle
// duration. It returns the number dropped.
func (c *LockCache) Evict() int {
	now := c.now()
	c.lastSweep.Store(now.UnixNano())
	dropped := 0
	c.locks.Range(func(key string, _ *lockEntry) bool {
		c.locks.Compute(key, func(old *lockEntry, loaded bool) (*lockEntry, bool) {
			if !loaded {
				return old, true
			}
			if old.refs == 0 && now.Sub(old.lastAccess) >= c.idle {
				dropped++
				return old, true
			}
			return old, false
		})
		return true
	})
	return dropped
}

// Len returns the number of locks currently tracked.
func (c *LockCache) Len() int { return c.locks.Size() }

func (c *LockCache) maybeSweep() {
	last := c.lastSweep.Load()
	now := c.now().UnixNano()
	if time.Duration(now-last) < c.idle {
		return
	}
	if c.lastSweep.CompareAndSwap(last, now) {
		c.Evict()
	}
}
