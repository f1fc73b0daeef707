package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// GoCache holds the entries of a single namespace in a go-cache instance
type GoCache struct {
	cache     *gocache.Cache
	retention time.Duration
}

// NewGoCache creates a namespace partition.
// retention: how long entries stay readable, 0 keeps them until deleted
// cleanupInterval: janitor interval, ignored when retention is 0
func NewGoCache(retention, cleanupInterval time.Duration) *GoCache {
	expiration := gocache.NoExpiration
	if retention > 0 {
		expiration = retention
	} else {
		cleanupInterval = 0
	}

	return &GoCache{
		cache:     gocache.New(expiration, cleanupInterval),
		retention: expiration,
	}
}

// Get returns the entry stored under key
func (gc *GoCache) Get(key string) (Entry, bool) {
	value, found := gc.cache.Get(key)
	if !found {
		return Entry{}, false
	}
	entry, ok := value.(Entry)
	return entry, ok
}

// Set stores the entry under its key, replacing any previous one
func (gc *GoCache) Set(entry Entry) {
	gc.cache.Set(entry.Key, entry, gc.retention)
}

// Delete removes the entry stored under key
func (gc *GoCache) Delete(key string) {
	gc.cache.Delete(key)
}

// Keys returns the keys currently held
func (gc *GoCache) Keys() []string {
	items := gc.cache.Items()
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	return keys
}

// Clear removes all entries
func (gc *GoCache) Clear() {
	gc.cache.Flush()
}

// ItemCount returns the number of entries, including ones past retention
// that the janitor has not removed yet
func (gc *GoCache) ItemCount() int {
	return gc.cache.ItemCount()
}
