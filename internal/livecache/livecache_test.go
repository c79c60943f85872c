package livecache

import (
	"testing"
	"time"

	"aircraftdata/pkg/adsb"
)

func newTestCache(maxEntries int, ttl time.Duration) *Cache {
	c := New(Config{Enabled: true, TTL: ttl, MaxEntries: maxEntries, CleanupInterval: time.Hour})
	return c
}

func TestUpsertAndGet(t *testing.T) {
	c := newTestCache(10, time.Minute)
	defer c.Close()

	st := adsb.AircraftState{ICAO24: "a1b2c3", Latitude: 40, Longitude: -74, LastContact: 100}
	c.Upsert(st)

	got, ok := c.Get("a1b2c3")
	if !ok {
		t.Fatal("expected entry present")
	}
	if got.Latitude != 40 {
		t.Errorf("expected latitude 40, got %v", got.Latitude)
	}
}

func TestGetMissing(t *testing.T) {
	c := newTestCache(10, time.Minute)
	defer c.Close()

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown icao24")
	}
}

func TestEvictsOldestWhenFull(t *testing.T) {
	c := newTestCache(2, time.Minute)
	defer c.Close()

	c.Upsert(adsb.AircraftState{ICAO24: "aaaaaa"})
	time.Sleep(2 * time.Millisecond)
	c.Upsert(adsb.AircraftState{ICAO24: "bbbbbb"})
	time.Sleep(2 * time.Millisecond)
	c.Upsert(adsb.AircraftState{ICAO24: "cccccc"})

	if _, ok := c.Get("aaaaaa"); ok {
		t.Error("expected oldest entry evicted")
	}
	if _, ok := c.Get("cccccc"); !ok {
		t.Error("expected newest entry retained")
	}
	if c.Len() != 2 {
		t.Errorf("expected cache size capped at 2, got %d", c.Len())
	}
}

func TestBoundsScanFiltersRectangleAndStaleness(t *testing.T) {
	c := newTestCache(10, time.Minute)
	defer c.Close()

	c.Upsert(adsb.AircraftState{ICAO24: "inside", Latitude: 40, Longitude: -74, LastContact: 1000})
	c.Upsert(adsb.AircraftState{ICAO24: "outside", Latitude: 10, Longitude: 10, LastContact: 1000})
	c.Upsert(adsb.AircraftState{ICAO24: "old", Latitude: 40, Longitude: -74, LastContact: 1})

	results := c.BoundsScan(39, -75, 41, -73, 500)

	if len(results) != 1 || results[0].ICAO24 != "inside" {
		t.Errorf("expected only 'inside' to match, got %+v", results)
	}
}

func TestBoundsScanDropsExpiredEntries(t *testing.T) {
	c := newTestCache(10, 5*time.Millisecond)
	defer c.Close()

	c.Upsert(adsb.AircraftState{ICAO24: "a1b2c3", Latitude: 40, Longitude: -74, LastContact: 1000})
	time.Sleep(20 * time.Millisecond)

	results := c.BoundsScan(0, -180, 90, 180, 0)
	if len(results) != 0 {
		t.Errorf("expected expired entry dropped, got %d results", len(results))
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry deleted from cache, len=%d", c.Len())
	}
}
