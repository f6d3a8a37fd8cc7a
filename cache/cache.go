// Package cache holds assembled feed responses for a short window.
//
// Each Cache is one namespace (e.g. the roll feed, or shop and ad listings).
// Instances are built once at startup, handed to the components that read or
// invalidate them, and stopped at shutdown.
package cache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/ddevcap/rollfeed/metrics"
)

// DefaultTTL is used when a cache is built with a non-positive TTL.
const DefaultTTL = 30 * time.Second

// Cache maps a request fingerprint to a serialized response. Entries expire
// a fixed duration after insertion; reads never extend their lifetime.
type Cache struct {
	name  string
	items *ttlcache.Cache[string, []byte]

	mu      sync.Mutex
	running bool
}

// New creates a cache whose entries live for ttl unless Set overrides it.
func New(name string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		name: name,
		items: ttlcache.New[string, []byte](
			ttlcache.WithTTL[string, []byte](ttl),
			ttlcache.WithDisableTouchOnHit[string, []byte](),
		),
	}
}

// Name is the namespace label used in logs and metrics.
func (c *Cache) Name() string { return c.name }

// Start runs the background loop that evicts expired entries. Expired
// entries are never returned even when the loop is not running.
func (c *Cache) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	go c.items.Start()
}

// Stop ends the eviction loop started by Start.
func (c *Cache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	c.items.Stop()
}

// Set stores value under key. A zero ttl uses the cache default. Empty keys
// and negative TTLs are rejected: they are logged and nothing is stored.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) {
	if key == "" || ttl < 0 {
		slog.Warn("cache: rejected entry", "cache", c.name, "key", key, "ttl", ttl)
		return
	}
	if ttl == 0 {
		ttl = ttlcache.DefaultTTL
	}
	c.items.Set(key, value, ttl)
	metrics.CacheStores.WithLabelValues(c.name).Inc()
}

// Get returns the value stored under key if it has not expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	item := c.items.Get(key)
	if item == nil {
		metrics.CacheLookups.WithLabelValues(c.name, "miss").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues(c.name, "hit").Inc()
	return item.Value(), true
}

// Has reports whether Get would currently succeed for key.
func (c *Cache) Has(key string) bool {
	return c.items.Has(key)
}

// Clear discards every entry immediately.
func (c *Cache) Clear() {
	c.items.DeleteAll()
	metrics.CacheClears.WithLabelValues(c.name).Inc()
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *Cache) Len() int {
	return c.items.Len()
}
