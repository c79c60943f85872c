// Package query implements the Bounds Query Planner (C7): it decides
// whether the live-state cache can answer a bounds query on its own,
// falls back to the Priority Store otherwise, merges the two, joins
// route enrichments, and applies the staleness/landed-aircraft rules
// before handing survivors to the trajectory predictor.
package query

import (
	"context"
	"time"

	"aircraftdata/internal/livecache"
	"aircraftdata/pkg/adsb"
)

const hardCapRecentContact = 30 * time.Minute

const staleAfter = 15 * time.Minute

// Store is the subset of the Priority Store the planner needs.
type Store interface {
	FindInBounds(ctx context.Context, latMin, lonMin, latMax, lonMax float64, minLastContact int64) ([]adsb.AircraftState, error)
	GetByICAO24(ctx context.Context, icao24 string) (*adsb.AircraftState, error)
	GetByCallsign(ctx context.Context, callsign string) (*adsb.AircraftState, error)
}

// RouteCache is the subset of route lookup (and background-populate) the
// planner needs, keyed by callsign when available, else icao24.
type RouteCache interface {
	Get(key string) (adsb.Route, bool)
	Put(key string, route adsb.Route)
}

// RouteProvider resolves a live route enrichment on a cache miss. The
// aero-api adapter is the only implementation; it's optional so the
// planner still works with no aero-api credentials configured.
type RouteProvider interface {
	FetchRoute(ctx context.Context, callsign string) (*adsb.Route, error)
}

// Predictor is implemented by the trajectory predictor (C8); the bool
// return reports whether prediction applied (false returns state as-is
// and a zero confidence).
type Predictor interface {
	Predict(state adsb.AircraftState, route *adsb.Route, now time.Time) (result adsb.AircraftState, confidence float64, predicted bool)
}

// Config is the planner's configuration surface.
type Config struct {
	RecentContactThreshold time.Duration
	MinResultsBeforeDBFallback int
}

// DefaultConfig matches spec-named defaults.
func DefaultConfig() Config {
	return Config{
		RecentContactThreshold:     30 * time.Minute,
		MinResultsBeforeDBFallback: 50,
	}
}

// Planner answers get_aircraft_in_bounds queries.
type Planner struct {
	cache         *livecache.Cache
	store         Store
	routes        RouteCache
	routeProvider RouteProvider
	predictor     Predictor
	cfg           Config
}

// New constructs a Planner. routes, routeProvider and predictor may all be
// nil, in which case route joining, background route enrichment, and
// prediction are skipped respectively.
func New(cache *livecache.Cache, store Store, routes RouteCache, routeProvider RouteProvider, predictor Predictor, cfg Config) *Planner {
	return &Planner{cache: cache, store: store, routes: routes, routeProvider: routeProvider, predictor: predictor, cfg: cfg}
}

// lookupRoute returns a cached route for key, if any. On a miss with a
// RouteProvider configured, it kicks off a background fetch to populate
// the cache for the next lookup rather than blocking this one on an
// outbound aero-api call.
func (p *Planner) lookupRoute(key string) *adsb.Route {
	if p.routes == nil || key == "" {
		return nil
	}
	if r, ok := p.routes.Get(key); ok {
		return &r
	}
	if p.routeProvider != nil {
		go p.backgroundFetchRoute(key)
	}
	return nil
}

func (p *Planner) backgroundFetchRoute(callsign string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	route, err := p.routeProvider.FetchRoute(ctx, callsign)
	if err != nil || route == nil {
		return
	}
	p.routes.Put(callsign, *route)
}

// Result is an enriched aircraft ready for the HTTP response layer.
type Result struct {
	State      adsb.AircraftState
	Route      *adsb.Route
	IsStale    bool
	Predicted  bool
	Confidence float64
}

// GetAircraftInBounds runs the full C7 pipeline.
func (p *Planner) GetAircraftInBounds(ctx context.Context, latMin, lonMin, latMax, lonMax float64) ([]Result, error) {
	if latMin == latMax {
		return nil, nil
	}

	now := time.Now()

	threshold := p.cfg.RecentContactThreshold
	if threshold <= 0 || threshold > hardCapRecentContact {
		threshold = hardCapRecentContact
	}
	minLastContact := now.Add(-threshold).Unix()

	var fromCache []adsb.AircraftState
	if p.cache != nil {
		fromCache = p.cache.BoundsScan(latMin, lonMin, latMax, lonMax, minLastContact)
	}

	var merged map[string]adsb.AircraftState
	if len(fromCache) >= p.cfg.MinResultsBeforeDBFallback && p.cfg.MinResultsBeforeDBFallback > 0 {
		merged = indexByICAO(fromCache)
	} else {
		fromStore, err := p.store.FindInBounds(ctx, latMin, lonMin, latMax, lonMax, minLastContact)
		if err != nil {
			return nil, err
		}
		merged = mergeByLastContact(fromCache, fromStore)
	}

	results := make([]Result, 0, len(merged))
	for _, state := range merged {
		key := state.Callsign
		if key == "" {
			key = state.ICAO24
		}
		route := p.lookupRoute(key)

		isStale := now.Sub(time.Unix(state.LastContact, 0)) > staleAfter
		if state.OnGround && isStale {
			continue // landed long ago; noise
		}

		if route != nil && route.HasArrived(now) && route.Arrival.Latitude != nil && route.Arrival.Longitude != nil {
			state.Latitude = *route.Arrival.Latitude
			state.Longitude = *route.Arrival.Longitude
			zero := 0.0
			state.Velocity = &zero
			state.OnGround = true
			isStale = true
		}

		predicted := false
		confidence := 0.0
		if p.predictor != nil {
			state, confidence, predicted = p.predictor.Predict(state, route, now)
		}

		results = append(results, Result{State: state, Route: route, IsStale: isStale, Predicted: predicted, Confidence: confidence})
	}

	return results, nil
}

// GetByIdentifier answers /planes/{identifier}: identifier is tried as an
// icao24 first, falling back to a callsign lookup. Returns (nil, nil) when
// nothing matches either way.
func (p *Planner) GetByIdentifier(ctx context.Context, identifier string) (*Result, error) {
	now := time.Now()

	var state *adsb.AircraftState
	if adsb.IsValidICAO24(identifier) {
		if p.cache != nil {
			if s, ok := p.cache.Get(identifier); ok {
				state = &s
			}
		}
		if state == nil {
			st, err := p.store.GetByICAO24(ctx, identifier)
			if err != nil {
				return nil, err
			}
			state = st
		}
	} else {
		st, err := p.store.GetByCallsign(ctx, identifier)
		if err != nil {
			return nil, err
		}
		state = st
	}
	if state == nil {
		return nil, nil
	}

	key := state.Callsign
	if key == "" {
		key = state.ICAO24
	}
	route := p.lookupRoute(key)

	isStale := now.Sub(time.Unix(state.LastContact, 0)) > staleAfter

	predicted := false
	confidence := 0.0
	enriched := *state
	if p.predictor != nil {
		enriched, confidence, predicted = p.predictor.Predict(enriched, route, now)
	}

	return &Result{State: enriched, Route: route, IsStale: isStale, Predicted: predicted, Confidence: confidence}, nil
}

func indexByICAO(states []adsb.AircraftState) map[string]adsb.AircraftState {
	m := make(map[string]adsb.AircraftState, len(states))
	for _, s := range states {
		m[s.ICAO24] = s
	}
	return m
}

// mergeByLastContact combines cache and store results, keeping whichever
// row has the higher last_contact per icao24.
func mergeByLastContact(cache, store []adsb.AircraftState) map[string]adsb.AircraftState {
	m := make(map[string]adsb.AircraftState, len(cache)+len(store))
	for _, s := range store {
		m[s.ICAO24] = s
	}
	for _, s := range cache {
		if existing, ok := m[s.ICAO24]; !ok || s.LastContact > existing.LastContact {
			m[s.ICAO24] = s
		}
	}
	return m
}
