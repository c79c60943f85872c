package adsb

import (
	"context"
	"time"
)

// Airport is a minimal airport reference used by Route.
type Airport struct {
	ICAO      string   `json:"icao,omitempty"`
	IATA      string   `json:"iata,omitempty"`
	Name      string   `json:"name,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Route is a per-flight enrichment, never authoritative on its own: it
// augments an AircraftState with where the flight came from and is
// going, so C8 can predict along a great circle instead of dead
// reckoning. Keyed by callsign when available, else icao24.
type Route struct {
	Key string `json:"key"`

	Departure Airport `json:"departure_airport"`
	Arrival   Airport `json:"arrival_airport"`

	ScheduledDeparture *time.Time `json:"scheduled_departure,omitempty"`
	ScheduledArrival   *time.Time `json:"scheduled_arrival,omitempty"`
	ActualDeparture    *time.Time `json:"actual_departure,omitempty"`
	ActualArrival      *time.Time `json:"actual_arrival,omitempty"`

	AircraftType     string  `json:"aircraft_type,omitempty"`
	ProgressPercent  float64 `json:"progress_percent"`
	FlightStatus     string  `json:"flight_status,omitempty"`
}

// HasArrived reports whether the route carries enough information to
// say the flight has landed: an explicit arrived/landed status, or an
// actual arrival time in the past.
func (r Route) HasArrived(now time.Time) bool {
	switch r.FlightStatus {
	case "landed", "arrived":
		return true
	}
	return r.ActualArrival != nil && r.ActualArrival.Before(now)
}

// RouteProvider is implemented by adapters capable of enriching a
// callsign or icao24 with route information (e.g. aero-api).
type RouteProvider interface {
	FetchRoute(ctx context.Context, key string) (*Route, error)
}
