// Package capability holds the pieces shared by the matcher and action
// registries.
package capability

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// Cache memoizes resolved capabilities by configuration fingerprint.
// Resolution errors are cached too, so a broken spec is compiled once.
// It is safe for concurrent use. A Cache with size <= 0 never stores.
type Cache[T any] struct {
	mu    sync.Mutex
	cache *lru.Cache
}

type cached[T any] struct {
	value T
	err   error
}

// NewCache creates a cache holding at most size entries.
func NewCache[T any](size int) *Cache[T] {
	c := &Cache[T]{}
	if size > 0 {
		c.cache = lru.New(size)
	}
	return c
}

// GetOrBuild returns the cached result for key, calling build on a miss.
// build runs outside the lock; concurrent misses for one key may both build.
func (c *Cache[T]) GetOrBuild(key string, build func() (T, error)) (T, error) {
	if c.cache == nil {
		return build()
	}

	c.mu.Lock()
	if v, ok := c.cache.Get(key); ok {
		c.mu.Unlock()
		hit := v.(cached[T])
		return hit.value, hit.err
	}
	c.mu.Unlock()

	value, err := build()

	c.mu.Lock()
	c.cache.Add(key, cached[T]{value: value, err: err})
	c.mu.Unlock()
	return value, err
}

// Len returns the number of cached entries.
func (c *Cache[T]) Len() int {
	if c.cache == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// Clear drops every entry.
func (c *Cache[T]) Clear() {
	if c.cache == nil {
		return
	}
	c.mu.Lock()
	c.cache.Clear()
	c.mu.Unlock()
}
