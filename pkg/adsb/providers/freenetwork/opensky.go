// Package freenetwork implements the free-network ADS-B provider adapter,
// modeled on the OpenSky Network's /states/all endpoint. OpenSky reports
// each aircraft as a heterogeneous JSON array indexed by field position;
// this package is the only place in the module allowed to know those
// indices. State.UnmarshalJSON converts the array into named fields once,
// at the edge, so nothing downstream ever branches on state[7].
package freenetwork

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

// Client is a adsb.DataSource backed by the OpenSky-style states/all API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	username   string
	password   string
	backoff    governor.BackoffConfig
}

// Config configures Client.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// New constructs a free-network client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		username:   cfg.Username,
		password:   cfg.Password,
		backoff:    governor.DefaultBackoffConfig(),
	}
}

func (c *Client) Kind() adsb.DataSourceKind { return adsb.SourceFreeNetwork }

func (c *Client) Close() error { return nil }

// FetchAll fetches every state the provider currently reports.
func (c *Client) FetchAll(ctx context.Context) ([]adsb.AircraftState, error) {
	return c.fetch(ctx, fmt.Sprintf("%s/states/all", c.baseURL))
}

// FetchBounds fetches states within a bounding box using the provider's
// native lamin/lomin/lamax/lomax query parameters.
func (c *Client) FetchBounds(ctx context.Context, latMin, lonMin, latMax, lonMax float64) ([]adsb.AircraftState, error) {
	url := fmt.Sprintf("%s/states/all?lamin=%.4f&lomin=%.4f&lamax=%.4f&lomax=%.4f",
		c.baseURL, latMin, lonMin, latMax, lonMax)
	return c.fetch(ctx, url)
}

// FetchPoint fetches states within radiusNM nautical miles of (lat, lon),
// converting the radius to a bounding box the way the scan scheduler's
// anchor points are expressed.
func (c *Client) FetchPoint(ctx context.Context, lat, lon, radiusNM float64) ([]adsb.AircraftState, error) {
	const nmPerDegreeLat = 60.0
	latOffset := radiusNM / nmPerDegreeLat
	lonOffset := latOffset
	if cos := math.Cos(lat * math.Pi / 180); cos > 0.01 {
		lonOffset = radiusNM / (nmPerDegreeLat * cos)
	}
	return c.FetchBounds(ctx, lat-latOffset, lon-lonOffset, lat+latOffset, lon+lonOffset)
}

func (c *Client) fetch(ctx context.Context, url string) ([]adsb.AircraftState, error) {
	return governor.WithBackoffResult(ctx, c.backoff, func() ([]adsb.AircraftState, error) {
		return c.fetchOnce(ctx, url)
	})
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]adsb.AircraftState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch states: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &governor.RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: governor.ParseRetryAfter(resp.Header),
			Message:    "free-network rate limit exceeded",
			Headers:    governor.ExtractRateLimitHeaders(resp.Header),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("free-network API returned status %d", resp.StatusCode)
	}

	var body statesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode states response: %w", err)
	}

	now := time.Now().Unix()
	out := make([]adsb.AircraftState, 0, len(body.States))
	for _, st := range body.States {
		s := st.toAircraftState()
		s.IngestionTimestamp = now
		s.DataSource = adsb.SourceFreeNetwork
		s.SourcePriority = adsb.SourceFreeNetwork.Priority()
		s.Normalize()
		if !adsb.IsValidICAO24(s.ICAO24) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

type statesResponse struct {
	Time   int64   `json:"time"`
	States []state `json:"states"`
}

// state mirrors one row of OpenSky's states/all array:
//
//	[icao24, callsign, origin_country, time_position, last_contact,
//	 longitude, latitude, baro_altitude, on_ground, velocity,
//	 true_track, vertical_rate, sensors, geo_altitude, squawk, spi,
//	 position_source, category]
//
// UnmarshalJSON is the sole place this module touches positional indices.
type state struct {
	icao24         string
	callsign       string
	timePosition   *int64
	lastContact    int64
	longitude      *float64
	latitude       *float64
	baroAltitude   *float64
	onGround       bool
	velocity       *float64
	trueTrack      *float64
	verticalRate   *float64
	geoAltitude    *float64
	squawk         string
	category       *int
}

func (s *state) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 17 {
		return fmt.Errorf("freenetwork: short state row (%d fields)", len(raw))
	}

	s.icao24, _ = raw[0].(string)
	s.callsign, _ = raw[1].(string)
	if v, ok := raw[3].(float64); ok {
		t := int64(v)
		s.timePosition = &t
	}
	if v, ok := raw[4].(float64); ok {
		s.lastContact = int64(v)
	}
	if v, ok := raw[5].(float64); ok {
		s.longitude = &v
	}
	if v, ok := raw[6].(float64); ok {
		s.latitude = &v
	}
	if v, ok := raw[7].(float64); ok {
		s.baroAltitude = &v
	}
	if v, ok := raw[8].(bool); ok {
		s.onGround = v
	}
	if v, ok := raw[9].(float64); ok {
		s.velocity = &v
	}
	if v, ok := raw[10].(float64); ok {
		s.trueTrack = &v
	}
	if v, ok := raw[11].(float64); ok {
		s.verticalRate = &v
	}
	if v, ok := raw[13].(float64); ok {
		s.geoAltitude = &v
	}
	if v, ok := raw[14].(string); ok {
		s.squawk = v
	}
	if len(raw) > 17 {
		if v, ok := raw[17].(float64); ok {
			cat := int(v)
			s.category = &cat
		}
	}
	return nil
}

func (s state) toAircraftState() adsb.AircraftState {
	out := adsb.AircraftState{
		ICAO24:      s.icao24,
		Callsign:    s.callsign,
		OnGround:    s.onGround,
		Squawk:      s.squawk,
		LastContact: s.lastContact,
		Category:    s.category,
	}
	if s.latitude != nil {
		out.Latitude = *s.latitude
	}
	if s.longitude != nil {
		out.Longitude = *s.longitude
	}
	if s.baroAltitude != nil {
		m := adsb.FeetToM(*s.baroAltitude)
		out.BaroAltitude = &m
	}
	if s.geoAltitude != nil {
		m := adsb.FeetToM(*s.geoAltitude)
		out.GeoAltitude = &m
	}
	out.Velocity = s.velocity
	out.TrueTrack = s.trueTrack
	out.VerticalRate = s.verticalRate
	if s.timePosition != nil {
		out.TimePosition = *s.timePosition
	}
	if !out.OnGround {
		out.OnGround = adsb.InferOnGround(out.BaroAltitude, out.Velocity)
	}
	return out
}
