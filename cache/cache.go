// Package cache provides a time-boxed, tag-invalidated cache for content
// listings and post bodies.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL is the revalidation window for cached content.
const DefaultTTL = time.Hour

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// Invalidator is anything that can drop entries by tag or by path.
type Invalidator interface {
	InvalidateTag(tag string) int
	InvalidatePath(path string) int
}

type entry[V any] struct {
	value   V
	expires time.Time
	tags    []string
	path    string
	stale   bool
}

// Cache holds values of type V for at most TTL. Stale or expired entries
// are treated as misses.
type Cache[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     Clock
	entries map[string]*entry[V]
	// gen counts invalidations. A fill that started before an
	// invalidation must not be stored.
	gen uint64
}

// New creates a Cache. A ttl of zero or less uses DefaultTTL; a nil clock
// uses time.Now.
func New[V any](ttl time.Duration, now Clock) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{ttl: ttl, now: now, entries: make(map[string]*entry[V])}
}

// TTL returns the revalidation window.
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the fresh value stored under key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if e.stale || !c.now().Before(e.expires) {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key. path is optional and lets InvalidatePath
// find the entry.
func (c *Cache[V]) Set(key string, value V, path string, tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry[V]{
		value:   value,
		expires: c.now().Add(c.ttl),
		tags:    append([]string(nil), tags...),
		path:    path,
	}
}

// Generation returns the invalidation counter. Read it before fetching the
// value to store and pass it to SetAt.
func (c *Cache[V]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetAt stores value like Set unless the cache was invalidated after gen
// was read, in which case the value is dropped and SetAt returns false.
func (c *Cache[V]) SetAt(gen uint64, key string, value V, path string, tags ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return false
	}
	c.entries[key] = &entry[V]{
		value:   value,
		expires: c.now().Add(c.ttl),
		tags:    append([]string(nil), tags...),
		path:    path,
	}
	return true
}

// InvalidateTag marks every entry carrying tag as stale and returns how
// many were marked. Fills in flight are discarded too.
func (c *Cache[V]) InvalidateTag(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++

	n := 0
	for _, e := range c.entries {
		if e.stale {
			continue
		}
		for _, t := range e.tags {
			if t == tag {
				e.stale = true
				n++
				break
			}
		}
	}
	return n
}

// InvalidatePath marks the entries stored for path as stale.
func (c *Cache[V]) InvalidatePath(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++

	n := 0
	for _, e := range c.entries {
		if !e.stale && e.path != "" && e.path == path {
			e.stale = true
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
