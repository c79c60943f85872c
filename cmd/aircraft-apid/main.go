// Command aircraft-apid serves the query API: bounds search, single-plane
// lookup, feeder ingestion push, and flight-path history, plus the
// WebSocket broadcast upgrade. Grounded on the teacher's cmd/web-server
// (chi router, middleware stack, graceful shutdown), generalized from
// telescope/observer routes to the Bounds Query Planner's surface.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aircraftdata/internal/auth"
	"aircraftdata/internal/broadcast"
	"aircraftdata/internal/livecache"
	"aircraftdata/internal/logging"
	"aircraftdata/internal/metrics"
	"aircraftdata/internal/query"
	"aircraftdata/internal/queue"
	"aircraftdata/internal/routecache"
	"aircraftdata/internal/store"
	"aircraftdata/pkg/adsb"
	"aircraftdata/pkg/adsb/providers/aeroapi"
	"aircraftdata/pkg/config"
	"aircraftdata/pkg/flightaware"
	"aircraftdata/pkg/tracking"

	"github.com/redis/go-redis/v9"
)

var configPath = flag.String("config", "configs/config.json", "Path to configuration file")

var logger = logging.New("apid")

// Server holds the query API's dependencies.
type Server struct {
	router        *chi.Mux
	cfg           *config.Config
	store         *store.Store
	cache         *livecache.Cache
	planner       *query.Planner
	hub           *broadcast.Hub
	queue         *queue.Queue
	highWaterMark int64
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config failed", logging.F("error", err))
		os.Exit(1)
	}

	st, err := store.Connect(store.Config{
		Host:               cfg.Database.Host,
		Port:               cfg.Database.Port,
		Database:           cfg.Database.Database,
		Username:           cfg.Database.Username,
		Password:           cfg.Database.Password,
		SSLMode:            cfg.Database.SSLMode,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		StalenessThreshold: cfg.LiveState.StalenessThreshold(),
		GraceWindow:        cfg.LiveState.GraceWindow(),
	})
	if err != nil {
		logger.Error("connect store failed", logging.F("error", err))
		os.Exit(1)
	}
	defer st.Close()

	if err := st.InitSchema(context.Background()); err != nil {
		logger.Error("init schema failed", logging.F("error", err))
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Queue.Addr, Password: cfg.Queue.Password, DB: cfg.Queue.DB})
	defer rdb.Close()
	ingestionQueue := queue.New(rdb, queue.IngestionQueue())

	cache := livecache.New(livecache.Config{
		Enabled:         true,
		TTL:             time.Duration(cfg.LiveState.TTLSeconds) * time.Second,
		MaxEntries:      20000,
		CleanupInterval: 30 * time.Second,
	})
	defer cache.Close()

	routes := routecache.New(time.Hour)
	hub := broadcast.New()
	defer hub.Close()

	relayCtx, cancelRelay := context.WithCancel(context.Background())
	defer cancelRelay()
	go broadcast.RelayFromRedis(relayCtx, rdb, hub)
	go reportQueueDepth(relayCtx, ingestionQueue)

	var routeProvider query.RouteProvider
	if aeroCfg, ok := cfg.Providers["aero-api"]; ok && aeroCfg.Enabled {
		routeProvider = aeroapi.New(flightaware.NewClient(flightaware.Config{
			APIKey:          aeroCfg.APIKey,
			RequestsPerHour: int(aeroCfg.RateLimitPerMin * 60),
			Timeout:         time.Duration(aeroCfg.TimeoutSeconds) * time.Second,
		}))
	}

	planner := query.New(cache, st, routes, routeProvider, predictorAdapter{}, query.Config{
		RecentContactThreshold:    time.Duration(cfg.RecentContactThresholdSeconds) * time.Second,
		MinResultsBeforeDBFallback: 50,
	})

	srv := &Server{
		router:        chi.NewRouter(),
		cfg:           cfg,
		store:         st,
		cache:         cache,
		planner:       planner,
		hub:           hub,
		queue:         ingestionQueue,
		highWaterMark: int64(cfg.Queue.HighWaterMark),
	}
	srv.setupRoutes()

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      srv.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("listening", logging.F("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", logging.F("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", logging.F("error", err))
	}
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/area/{latmin}/{lonmin}/{latmax}/{lonmax}", s.handleArea)
	r.Get("/planes/{identifier}", s.handlePlane)
	r.Get("/history/{icao24}", s.handleHistory)

	r.Group(func(r chi.Router) {
		r.Use(s.feederAuthMiddleware)
		r.Post("/feeder/aircraft", s.handleFeederPush)
	})

	r.Get("/ws", s.hub.Handler)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	problems := map[string]string{}
	if _, err := s.store.GetStats(ctx); err != nil {
		problems["store"] = err.Error()
	}
	if _, err := s.queue.Depth(ctx); err != nil {
		problems["queue"] = err.Error()
	}

	if len(problems) > 0 {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "problems": problems})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleArea(w http.ResponseWriter, r *http.Request) {
	latMin, err1 := strconv.ParseFloat(chi.URLParam(r, "latmin"), 64)
	lonMin, err2 := strconv.ParseFloat(chi.URLParam(r, "lonmin"), 64)
	latMax, err3 := strconv.ParseFloat(chi.URLParam(r, "latmax"), 64)
	lonMax, err4 := strconv.ParseFloat(chi.URLParam(r, "lonmax"), 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		http.Error(w, "invalid bounds", http.StatusBadRequest)
		return
	}
	if lonMin > lonMax {
		http.Error(w, "antimeridian-crossing bounds are not supported", http.StatusBadRequest)
		return
	}

	results, err := s.planner.GetAircraftInBounds(r.Context(), latMin, lonMin, latMax, lonMax)
	if err != nil {
		logger.Error("area query failed", logging.F("error", err))
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, toPlaneResponses(results))
}

func (s *Server) handlePlane(w http.ResponseWriter, r *http.Request) {
	identifier := strings.TrimSpace(chi.URLParam(r, "identifier"))
	lookup := strings.ToLower(identifier)
	if !adsb.IsValidICAO24(lookup) {
		lookup = identifier
	}

	result, err := s.planner.GetByIdentifier(r.Context(), lookup)
	if err != nil {
		logger.Error("plane lookup failed", logging.F("identifier", identifier), logging.F("error", err))
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if result == nil {
		http.Error(w, "aircraft not found", http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, toPlaneResponse(*result))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	icao24 := strings.ToLower(chi.URLParam(r, "icao24"))
	if !adsb.IsValidICAO24(icao24) {
		http.Error(w, "invalid icao24", http.StatusBadRequest)
		return
	}

	from, to, err := parseTimeRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	history, err := s.store.GetPositionHistory(r.Context(), icao24, from, to)
	if err != nil {
		logger.Error("history query failed", logging.F("icao24", icao24), logging.F("error", err))
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, toGeoJSON(icao24, history))
}

func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	toStr := q.Get("to")
	fromStr := q.Get("from")

	to := time.Now().UTC()
	if toStr != "" {
		t, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to: %w", err)
		}
		to = t
	}

	from := to.Add(-time.Hour)
	if fromStr != "" {
		t, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from: %w", err)
		}
		from = t
	}

	return from, to, nil
}

// feederRequest is the body of POST /feeder/aircraft.
type feederRequest struct {
	States []adsb.AircraftState `json:"states"`
}

func (s *Server) handleFeederPush(w http.ResponseWriter, r *http.Request) {
	priority, ok := r.Context().Value(feederPriorityKey{}).(int)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if s.highWaterMark > 0 {
		depth, err := s.queue.Depth(r.Context())
		if err != nil {
			logger.Warn("queue depth check failed", logging.F("error", err))
		} else if depth.Ready >= s.highWaterMark {
			http.Error(w, "queue backpressured", http.StatusServiceUnavailable)
			return
		}
	}

	var req feederRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	now := time.Now().Unix()
	batch := make([]queue.Message, 0, len(req.States))
	accepted, rejected := 0, 0
	for _, state := range req.States {
		state.Normalize()
		if !adsb.IsValidICAO24(state.ICAO24) {
			rejected++
			continue
		}
		state.DataSource = adsb.SourceFeeder
		state.SourcePriority = priority
		state.IngestionTimestamp = now

		payload, err := json.Marshal(state)
		if err != nil {
			rejected++
			continue
		}
		batch = append(batch, queue.Message{
			ID:                 fmt.Sprintf("feeder-%s-%d", state.ICAO24, now),
			Payload:            payload,
			Source:             string(adsb.SourceFeeder),
			SourcePriority:     priority,
			IngestionTimestamp: now,
		})
		accepted++
	}

	if len(batch) > 0 {
		if err := s.queue.Enqueue(r.Context(), batch); err != nil {
			logger.Error("feeder enqueue failed", logging.F("error", err))
			http.Error(w, "enqueue failed", http.StatusServiceUnavailable)
			return
		}
	}

	respondJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted, "rejected": rejected})
}

type feederPriorityKey struct{}

// feederAuthMiddleware validates the opaque bearer token against the
// feeder_tokens table and stashes the token's source_priority in the
// request context for handleFeederPush.
func (s *Server) feederAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		rec, err := s.store.LookupFeederToken(r.Context(), auth.HashFeederToken(token))
		if err != nil {
			http.Error(w, "invalid or revoked token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), feederPriorityKey{}, rec.SourcePriority)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// planeResponse is the enriched aircraft shape returned by /area and /planes.
type planeResponse struct {
	adsb.AircraftState
	IsStale    bool    `json:"is_stale"`
	Predicted  bool    `json:"predicted"`
	Confidence float64 `json:"confidence,omitempty"`
	Route      *adsb.Route `json:"route,omitempty"`
}

func toPlaneResponse(r query.Result) planeResponse {
	return planeResponse{
		AircraftState: r.State,
		IsStale:       r.IsStale,
		Predicted:     r.Predicted,
		Confidence:    r.Confidence,
		Route:         r.Route,
	}
}

func toPlaneResponses(results []query.Result) []planeResponse {
	out := make([]planeResponse, len(results))
	for i, r := range results {
		out[i] = toPlaneResponse(r)
	}
	return out
}

// geoJSON is a minimal FeatureCollection of a single LineString tracing
// icao24's reported positions across the requested window.
type geoJSON struct {
	Type     string          `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

type geoJSONFeature struct {
	Type       string         `json:"type"`
	Geometry   geoJSONLine    `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type geoJSONLine struct {
	Type        string        `json:"type"`
	Coordinates [][2]float64  `json:"coordinates"`
}

func toGeoJSON(icao24 string, history []adsb.AircraftState) geoJSON {
	coords := make([][2]float64, len(history))
	timestamps := make([]int64, len(history))
	for i, st := range history {
		coords[i] = [2]float64{st.Longitude, st.Latitude}
		timestamps[i] = st.LastContact
	}

	return geoJSON{
		Type: "FeatureCollection",
		Features: []geoJSONFeature{{
			Type:     "Feature",
			Geometry: geoJSONLine{Type: "LineString", Coordinates: coords},
			Properties: map[string]any{
				"icao24":     icao24,
				"timestamps": timestamps,
			},
		}},
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// reportQueueDepth polls the ingestion queue's lane depths into the
// aircraftdata_queue_depth gauge until ctx is cancelled.
func reportQueueDepth(ctx context.Context, q *queue.Queue) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := q.Depth(ctx)
			if err != nil {
				continue
			}
			metrics.QueueDepth.WithLabelValues("ingestion", "ready").Set(float64(depth.Ready))
			metrics.QueueDepth.WithLabelValues("ingestion", "delayed").Set(float64(depth.Delayed))
			metrics.QueueDepth.WithLabelValues("ingestion", "dead").Set(float64(depth.DeadLetter))
		}
	}
}

// predictorAdapter adapts the package-level tracking.Predict function to
// the query.Predictor interface.
type predictorAdapter struct{}

func (predictorAdapter) Predict(state adsb.AircraftState, route *adsb.Route, now time.Time) (adsb.AircraftState, float64, bool) {
	return tracking.Predict(state, route, now)
}
