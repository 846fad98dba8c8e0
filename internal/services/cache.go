package services

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of cached lookups.
const DefaultCacheSize = 256

type cacheKey struct {
	view string
	name string
}

type cacheEntry struct {
	version   int64
	instances []Instance
}

// LookupCache memoizes service lookups per view. Entries carry the registry
// version they were computed at and are ignored once the version moved on.
type LookupCache struct {
	cache *lru.Cache[cacheKey, cacheEntry]
}

// NewLookupCache creates a cache holding up to size lookups.
func NewLookupCache(size int) (*LookupCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup cache: %w", err)
	}
	return &LookupCache{cache: cache}, nil
}

// Get returns the cached instances of name in view at version.
func (c *LookupCache) Get(view, name string, version int64) ([]Instance, bool) {
	key := cacheKey{view: view, name: name}
	entry, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	if entry.version != version {
		c.cache.Remove(key)
		return nil, false
	}
	return append([]Instance(nil), entry.instances...), true
}

// Put stores the instances of name in view computed at version.
func (c *LookupCache) Put(view, name string, version int64, instances []Instance) {
	c.cache.Add(cacheKey{view: view, name: name}, cacheEntry{
		version:   version,
		instances: append([]Instance(nil), instances...),
	})
}

// Len returns the number of cached lookups.
func (c *LookupCache) Len() int {
	return c.cache.Len()
}

// Purge drops every entry.
func (c *LookupCache) Purge() {
	c.cache.Purge()
}
