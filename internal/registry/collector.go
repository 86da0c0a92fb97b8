package registry

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

type cacheKey struct {
	ecosystem Ecosystem
	name      string
}

// Cache memoizes registry signals keyed by (ecosystem, name). It is an
// explicitly owned object so tests and callers control its lifetime; there
// is no package-level cache. Writes replace a key's entry wholesale.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]Signals
}

// NewCache creates an empty signal cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]Signals)}
}

func (c *Cache) get(key cacheKey) (Signals, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sig, ok := c.entries[key]
	return sig, ok
}

func (c *Cache) put(key cacheKey, sig Signals) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = sig
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Collector resolves registry signals through a cache. Concurrent requests
// for distinct packages proceed independently; concurrent requests for the
// same package share one fetch via singleflight.
type Collector struct {
	cache    *Cache
	fetchers map[Ecosystem]Fetcher
	group    singleflight.Group
}

// NewCollector creates a collector over the given cache using the default
// public-registry fetchers.
func NewCollector(cache *Cache) *Collector {
	return NewCollectorWithFetchers(cache, DefaultFetchers())
}

// NewCollectorWithFetchers creates a collector with explicit fetchers,
// mainly so tests can point at httptest servers.
func NewCollectorWithFetchers(cache *Cache, fetchers map[Ecosystem]Fetcher) *Collector {
	return &Collector{cache: cache, fetchers: fetchers}
}

// Signals returns the registry signals for ref, fetching at most once per
// key for the collector's lifetime. An ecosystem without a fetcher yields
// Signals{Exists: false}, the same shape as a failed fetch.
func (c *Collector) Signals(ctx context.Context, ref PackageRef) Signals {
	key := cacheKey{ecosystem: ref.Ecosystem, name: ref.Name}
	if sig, ok := c.cache.get(key); ok {
		return sig
	}

	fetcher, ok := c.fetchers[ref.Ecosystem]
	if !ok {
		return Signals{Exists: false}
	}

	v, _, _ := c.group.Do(string(ref.Ecosystem)+"\x00"+ref.Name, func() (any, error) {
		// A racing caller may have filled the cache while we waited.
		if sig, ok := c.cache.get(key); ok {
			return sig, nil
		}
		sig := fetcher.FetchSignals(ctx, ref.Name)
		c.cache.put(key, sig)
		return sig, nil
	})
	return v.(Signals)
}
