// Package livecache implements the Live-State Cache (C6): an in-process
// map of the latest AircraftState per icao24, sized and TTL'd so bounds
// queries can answer from memory before falling back to the Priority
// Store. Grounded on the teacher's repository-layer read paths, replacing
// the SQL round trip with a guarded map.
package livecache

import (
	"sync"
	"time"

	"aircraftdata/internal/metrics"
	"aircraftdata/pkg/adsb"
)

// Config is the cache's configuration surface.
type Config struct {
	Enabled                 bool
	TTL                     time.Duration
	MaxEntries              int
	CleanupInterval         time.Duration
	MinResultsBeforeDBFallback int
}

// DefaultConfig matches spec-named defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                    true,
		TTL:                        2 * time.Minute,
		MaxEntries:                 20000,
		CleanupInterval:            30 * time.Second,
		MinResultsBeforeDBFallback: 50,
	}
}

type entry struct {
	state     adsb.AircraftState
	updatedAt int64 // unix millis
}

// Cache is a concurrency-safe, size- and TTL-bounded map keyed by icao24.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	cfg     Config

	stopOnce sync.Once
	stop     chan struct{}
}

// New constructs a Cache and starts its periodic sweep goroutine.
func New(cfg Config) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		cfg:     cfg,
		stop:    make(chan struct{}),
	}
	if cfg.Enabled && cfg.CleanupInterval > 0 {
		go c.sweepLoop()
	}
	return c
}

// Close stops the background sweep goroutine.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	cutoff := time.Now().Add(-c.cfg.TTL).UnixMilli()
	c.mu.Lock()
	for k, e := range c.entries {
		if e.updatedAt < cutoff {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Upsert inserts or replaces the cached entry for state.ICAO24. If the
// cache is at MaxEntries, the single oldest entry (by updatedAt) is
// evicted first, per the LRU-by-update-time contract.
func (c *Cache) Upsert(state adsb.AircraftState) {
	if !c.cfg.Enabled {
		return
	}
	now := time.Now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[state.ICAO24]; !exists && len(c.entries) >= c.cfg.MaxEntries && c.cfg.MaxEntries > 0 {
		c.evictOldestLocked()
	}
	c.entries[state.ICAO24] = entry{state: state, updatedAt: now}
	metrics.CacheSize.Set(float64(len(c.entries)))
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestTime int64 = -1
	for k, e := range c.entries {
		if oldestTime == -1 || e.updatedAt < oldestTime {
			oldestKey = k
			oldestTime = e.updatedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		metrics.CacheEvictions.Inc()
	}
}

// Get returns the cached state for icao24, or false if absent or expired.
func (c *Cache) Get(icao24 string) (adsb.AircraftState, bool) {
	c.mu.RLock()
	e, ok := c.entries[icao24]
	c.mu.RUnlock()
	if !ok {
		metrics.CacheMisses.Inc()
		return adsb.AircraftState{}, false
	}
	if c.expired(e.updatedAt) {
		c.mu.Lock()
		delete(c.entries, icao24)
		c.mu.Unlock()
		metrics.CacheMisses.Inc()
		return adsb.AircraftState{}, false
	}
	metrics.CacheHits.Inc()
	return e.state, true
}

func (c *Cache) expired(updatedAtMs int64) bool {
	return time.Now().UnixMilli()-updatedAtMs >= c.cfg.TTL.Milliseconds()
}

// BoundsScan walks every entry, dropping (and deleting) those expired by
// TTL, those outside the rectangle, and those with last_contact before
// minLastContact. O(n) in cache size.
func (c *Cache) BoundsScan(latMin, lonMin, latMax, lonMax float64, minLastContact int64) []adsb.AircraftState {
	now := time.Now().UnixMilli()
	ttlMs := c.cfg.TTL.Milliseconds()

	var expiredKeys []string
	var out []adsb.AircraftState

	c.mu.RLock()
	for k, e := range c.entries {
		if now-e.updatedAt >= ttlMs {
			expiredKeys = append(expiredKeys, k)
			continue
		}
		s := e.state
		if s.Latitude < latMin || s.Latitude > latMax || s.Longitude < lonMin || s.Longitude > lonMax {
			continue
		}
		if s.LastContact < minLastContact {
			continue
		}
		out = append(out, s)
	}
	c.mu.RUnlock()

	if len(expiredKeys) > 0 {
		c.mu.Lock()
		for _, k := range expiredKeys {
			delete(c.entries, k)
		}
		c.mu.Unlock()
	}

	return out
}

// Len returns the current entry count, for metrics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
