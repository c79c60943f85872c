// Package aeroapi adapts the FlightAware AeroAPI client into the module's
// provider interfaces. AeroAPI's free/low tiers do not expose a bulk
// positional feed, so FetchAll/FetchBounds intentionally return no
// states; the adapter's real contribution is route enrichment for the
// trajectory predictor (C8) via FetchRoute.
package aeroapi

import (
	"context"
	"fmt"

	"aircraftdata/pkg/adsb"
	"aircraftdata/pkg/flightaware"
)

// Client implements adsb.DataSource (as a no-op positional feed) and
// adsb.RouteProvider against the FlightAware AeroAPI.
type Client struct {
	fa *flightaware.Client
}

// New wraps an existing flightaware.Client.
func New(fa *flightaware.Client) *Client {
	return &Client{fa: fa}
}

func (c *Client) Kind() adsb.DataSourceKind { return adsb.SourceAeroAPI }

func (c *Client) Close() error { return nil }

// FetchAll always returns an empty set: AeroAPI is queried per-callsign,
// not as a bulk feed, so the ingestion worker never schedules it here.
func (c *Client) FetchAll(ctx context.Context) ([]adsb.AircraftState, error) {
	return nil, nil
}

// FetchBounds always returns an empty set for the same reason as FetchAll.
func (c *Client) FetchBounds(ctx context.Context, latMin, lonMin, latMax, lonMax float64) ([]adsb.AircraftState, error) {
	return nil, nil
}

// FetchRoute resolves a callsign's filed flight plan into a Route
// enrichment. Returns (nil, nil) when AeroAPI has no flight plan on
// file, matching the upstream client's not-found convention.
func (c *Client) FetchRoute(ctx context.Context, callsign string) (*adsb.Route, error) {
	plan, err := c.fa.GetFlightPlanByCallsign(ctx, callsign)
	if err != nil {
		return nil, fmt.Errorf("fetch flight plan for %s: %w", callsign, err)
	}
	if plan == nil {
		return nil, nil
	}

	route := &adsb.Route{
		Key:          callsign,
		AircraftType: plan.AircraftType,
		FlightStatus: plan.Status,
		Departure:    adsb.Airport{ICAO: plan.Departure.Code, Name: plan.Departure.Name},
		Arrival:      adsb.Airport{ICAO: plan.Arrival.Code, Name: plan.Arrival.Name},
	}
	if !plan.ETD.IsZero() {
		route.ScheduledDeparture = &plan.ETD
	}
	if !plan.ETA.IsZero() {
		route.ScheduledArrival = &plan.ETA
	}
	return route, nil
}
