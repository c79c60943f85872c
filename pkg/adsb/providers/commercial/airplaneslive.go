// Package commercial implements the commercial-network ADS-B provider
// adapter for airplanes.live (https://airplanes.live/api-guide/). It is
// grounded on the teacher's original single-purpose client, generalized
// here to the adsb.DataSource interface and the governor package's shared
// rate-limit/backoff handling.
package commercial

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"aircraftdata/pkg/adsb"
	"aircraftdata/pkg/governor"
)

// Client implements adsb.DataSource against the airplanes.live v2 API.
// Rate limit: 1 request per second.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	backoff     governor.BackoffConfig
	lastRequest time.Time
}

// New creates a commercial-network client. baseURL is typically
// "https://api.airplanes.live/v2".
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		backoff:    governor.DefaultBackoffConfig(),
	}
}

func (c *Client) Kind() adsb.DataSourceKind { return adsb.SourceCommercialNetwork }

func (c *Client) Close() error { return nil }

// FetchAll has no global "all aircraft" endpoint on this provider; it
// fans out to FetchBounds with the widest point query the API allows.
func (c *Client) FetchAll(ctx context.Context) ([]adsb.AircraftState, error) {
	return c.FetchBounds(ctx, -90, -180, 90, 180)
}

// FetchBounds uses the provider's /point/[lat]/[lon]/[radius] endpoint,
// centered on the rectangle's midpoint with a radius covering its
// diagonal, capped at the provider's 250nm maximum.
func (c *Client) FetchBounds(ctx context.Context, latMin, lonMin, latMax, lonMax float64) ([]adsb.AircraftState, error) {
	centerLat := (latMin + latMax) / 2
	centerLon := (lonMin + lonMax) / 2
	radiusNM := boundingRadiusNM(latMin, lonMin, latMax, lonMax)
	if radiusNM > 250.0 {
		radiusNM = 250.0
	}

	c.rateLimitWait()
	url := fmt.Sprintf("%s/point/%.4f/%.4f/%.0f", c.baseURL, centerLat, centerLon, radiusNM)

	return governor.WithBackoffResult(ctx, c.backoff, func() ([]adsb.AircraftState, error) {
		return c.fetchOnce(ctx, url)
	})
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]adsb.AircraftState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch aircraft: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &governor.RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: governor.ParseRetryAfter(resp.Header),
			Message:    "commercial-network rate limit exceeded",
			Headers:    governor.ExtractRateLimitHeaders(resp.Header),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("commercial-network API returned status %d", resp.StatusCode)
	}

	var apiResp pointResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	now := time.Now().Unix()
	out := make([]adsb.AircraftState, 0, len(apiResp.Aircraft))
	for _, ac := range apiResp.Aircraft {
		if ac.Lat == nil || ac.Lon == nil {
			continue
		}
		s := ac.toAircraftState()
		s.IngestionTimestamp = now
		s.DataSource = adsb.SourceCommercialNetwork
		s.SourcePriority = adsb.SourceCommercialNetwork.Priority()
		s.Normalize()
		if !adsb.IsValidICAO24(s.ICAO24) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *Client) rateLimitWait() {
	if !c.lastRequest.IsZero() {
		if elapsed := time.Since(c.lastRequest); elapsed < time.Second {
			time.Sleep(time.Second - elapsed)
		}
	}
	c.lastRequest = time.Now()
}

type pointResponse struct {
	Aircraft []rawAircraft `json:"ac"`
	Total    int           `json:"total"`
	Now      float64       `json:"now"`
}

// rawAircraft is the airplanes.live wire shape. alt_baro/alt_geom can be
// either a float (feet) or the literal string "ground".
type rawAircraft struct {
	Hex      string   `json:"hex"`
	Flight   *string  `json:"flight"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	AltBaro  any      `json:"alt_baro"`
	AltGeom  any      `json:"alt_geom"`
	Gs       *float64 `json:"gs"`
	Track    *float64 `json:"track"`
	BaroRate *float64 `json:"baro_rate"`
	Squawk   *string  `json:"squawk"`
	Category *string  `json:"category"`
	Seen     *float64 `json:"seen"`
}

func (ac rawAircraft) toAircraftState() adsb.AircraftState {
	s := adsb.AircraftState{ICAO24: ac.Hex}

	if ac.Flight != nil {
		s.Callsign = trimSpace(*ac.Flight)
	}
	if ac.Lat != nil {
		s.Latitude = *ac.Lat
	}
	if ac.Lon != nil {
		s.Longitude = *ac.Lon
	}

	if alt, grounded := parseAltitude(ac.AltGeom); alt != nil {
		m := adsb.FeetToM(*alt)
		s.GeoAltitude = &m
	} else if grounded {
		s.OnGround = true
	}
	if alt, grounded := parseAltitude(ac.AltBaro); alt != nil {
		m := adsb.FeetToM(*alt)
		s.BaroAltitude = &m
	} else if grounded {
		s.OnGround = true
	}

	if ac.Gs != nil {
		v := adsb.KnotsToMPS(*ac.Gs)
		s.Velocity = &v
	}
	s.TrueTrack = ac.Track
	if ac.BaroRate != nil {
		v := adsb.FPMToMPS(*ac.BaroRate)
		s.VerticalRate = &v
	}
	if ac.Squawk != nil {
		s.Squawk = *ac.Squawk
	}
	if ac.Category != nil {
		if cat, ok := adsb.CategoryFromCode(*ac.Category); ok {
			s.Category = &cat
		}
	}

	now := time.Now().Unix()
	if ac.Seen != nil {
		s.LastContact = now - int64(*ac.Seen)
	} else {
		s.LastContact = now
	}
	s.TimePosition = s.LastContact

	return s
}

// parseAltitude extracts a feet value from the provider's alt_baro/alt_geom
// field, which may be a JSON number or the literal string "ground". The
// second return reports whether the value signaled "ground".
func parseAltitude(val any) (*float64, bool) {
	switch v := val.(type) {
	case float64:
		return &v, false
	case string:
		return nil, v == "ground"
	default:
		return nil, false
	}
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && s[start] == ' ' {
		start++
	}
	for end > start && s[end-1] == ' ' {
		end--
	}
	return s[start:end]
}

// boundingRadiusNM approximates the great-circle half-diagonal of a
// lat/lon rectangle in nautical miles, using a flat-earth projection
// scaled by latitude (60nm per degree of latitude, cos(lat) for longitude).
func boundingRadiusNM(latMin, lonMin, latMax, lonMax float64) float64 {
	midLatRad := (latMin + latMax) / 2 * math.Pi / 180
	dLatNM := (latMax - latMin) * 60.0
	dLonNM := (lonMax - lonMin) * 60.0 * math.Cos(midLatRad)
	return math.Hypot(dLatNM, dLonNM) / 2
}
