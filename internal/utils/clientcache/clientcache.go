// Package clientcache provides a type-safe cache for lazily built, shareable
// values (SDK clients, executors) with singleflight construction.
package clientcache

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache caches values by key. The factory for a key runs at most once at a
// time, even under concurrent load.
type Cache[T any] struct {
	cache   sync.Map
	sfGroup singleflight.Group
}

// NewCache creates a new type-safe cache
func NewCache[T any]() *Cache[T] {
	return &Cache[T]{}
}

// GetOrCreate retrieves a cached value or creates one using the factory.
func (c *Cache[T]) GetOrCreate(key string, factory func() (T, error)) (T, error) {
	if cached, ok := c.cache.Load(key); ok {
		return cached.(T), nil
	}

	v, err, _ := c.sfGroup.Do(key, func() (any, error) {
		// Re-check after winning the singleflight slot.
		if cached, ok := c.cache.Load(key); ok {
			return cached.(T), nil
		}

		value, err := factory()
		if err != nil {
			var zero T
			return zero, err
		}

		c.cache.Store(key, value)
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return v.(T), nil
}

// Delete removes a value from the cache
func (c *Cache[T]) Delete(key string) {
	c.cache.Delete(key)
}
