package cache

import (
	"sync"
	"time"
)

// Cache is an in-process TTL cache keyed by string. Each key carries a
// version that Delete bumps, so a fill started before an invalidation can
// be refused with SetIfVersion.
type Cache[V any] struct {
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	m        map[string]entry[V]
	versions map[string]uint64
}

type entry[V any] struct {
	val V
	exp time.Time
}

func New[V any](ttl time.Duration) *Cache[V] {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return &Cache[V]{
		ttl: ttl,
		now: time.Now,
		m:        make(map[string]entry[V]),
		versions: make(map[string]uint64),
	}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	now := c.now()
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}

	if now.After(e.exp) {
		c.mu.Lock()
		// re-check: a concurrent Set may have refreshed the entry
		if cur, ok := c.m[key]; ok && now.After(cur.exp) {
			delete(c.m, key)
		}
		c.mu.Unlock()

		var zero V
		return zero, false
	}

	return e.val, true
}

func (c *Cache[V]) Set(key string, val V) {
	c.mu.Lock()
	c.m[key] = entry[V]{val: val, exp: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Version returns the current version of key. Read it before loading the
// value from the source of truth.
func (c *Cache[V]) Version(key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.versions[key]
}

// SetIfVersion stores val only if key has not been deleted since version
// was read. It reports whether the value was stored.
func (c *Cache[V]) SetIfVersion(key string, version uint64, val V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.versions[key] != version {
		return false
	}

	c.m[key] = entry[V]{val: val, exp: c.now().Add(c.ttl)}
	return true
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.versions[key]++
	c.mu.Unlock()
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
