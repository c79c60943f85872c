// Package routecache is the small TTL'd cache of Route enrichments
// keyed by callsign (or icao24 when no callsign is known). It sits in
// front of aero-api lookups and the store's routes table so the bounds
// query planner (C7) can join without a database round trip on the hot
// path.
package routecache

import (
	"sync"
	"time"

	"aircraftdata/pkg/adsb"
)

type entry struct {
	route     adsb.Route
	expiresAt time.Time
}

// Cache is a concurrency-safe TTL map of Route values.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
}

// New constructs a Cache with the given entry TTL.
func New(ttl time.Duration) *Cache {
	return &Cache{entries: make(map[string]entry), ttl: ttl}
}

// Put stores or refreshes a route under key.
func (c *Cache) Put(key string, route adsb.Route) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{route: route, expiresAt: time.Now().Add(c.ttl)}
}

// Get returns the cached route for key, if present and unexpired.
func (c *Cache) Get(key string) (adsb.Route, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return adsb.Route{}, false
	}
	return e.route, true
}
