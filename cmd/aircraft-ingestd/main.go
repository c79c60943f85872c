// Command aircraft-ingestd runs the background data plane: the
// Ingestion Worker pool, the CONUS Scan Scheduler, the Webhook
// Deliverer, and the queue's delayed-lane mover. It owns no HTTP
// listener and no WebSocket clients; events it publishes cross to
// cmd/aircraft-apid over the shared Redis pub/sub channel (see
// internal/broadcast.RedisPublisher). Grounded on the teacher's
// cmd/collector polling-loop main, generalized to a queue-driven,
// multi-worker daemon.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"aircraftdata/internal/broadcast"
	"aircraftdata/internal/events"
	"aircraftdata/internal/ingest"
	"aircraftdata/internal/livecache"
	"aircraftdata/internal/logging"
	"aircraftdata/internal/queue"
	"aircraftdata/internal/scanner"
	"aircraftdata/internal/store"
	"aircraftdata/internal/webhook"
	"aircraftdata/pkg/adsb"
	"aircraftdata/pkg/adsb/providers/commercial"
	"aircraftdata/pkg/adsb/providers/freenetwork"
	"aircraftdata/pkg/config"
)

var configPath = flag.String("config", "configs/config.json", "Path to configuration file")

var logger = logging.New("ingestd")

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
	webhookQueue := queue.New(rdb, queue.WebhookQueue())

	cache := livecache.New(livecache.Config{
		Enabled:         true,
		TTL:             time.Duration(cfg.LiveState.TTLSeconds) * time.Second,
		MaxEntries:      20000,
		CleanupInterval: 30 * time.Second,
	})
	defer cache.Close()

	publisher := events.New(broadcast.NewRedisPublisher(rdb), st, webhookQueue, int64(cfg.Webhooks.QueueHighWaterMark))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	moveInterval := time.Duration(cfg.Queue.MoverIntervalSeconds) * time.Second
	go queue.RunMover(ctx, ingestionQueue, moveInterval)
	go queue.RunMover(ctx, webhookQueue, moveInterval)

	ingestCfg := ingest.DefaultConfig()
	ingestCfg.Workers = cfg.Ingestion.Workers
	ingestCfg.BatchSize = cfg.Ingestion.BatchSize
	worker := ingest.New(ingestionQueue, st, cache, publisher, ingestCfg)
	for i := 0; i < ingestCfg.Workers; i++ {
		go worker.Run(ctx)
	}

	webhookCfg := webhook.DefaultConfig()
	webhookCfg.BreakerThreshold = cfg.Webhooks.BreakerThreshold
	webhookCfg.BreakerResetWindow = time.Duration(cfg.Webhooks.BreakerResetWindowSeconds) * time.Second
	deliverer := webhook.New(webhookQueue, st, webhookCfg)
	go deliverer.Run(ctx)

	if cfg.Scanner.Enabled {
		if freeNetCfg, ok := cfg.Providers["free-network"]; ok && freeNetCfg.Enabled {
			freeNet := freenetwork.New(freenetwork.Config{
				BaseURL:  freeNetCfg.BaseURL,
				Username: freeNetCfg.Username,
				Password: freeNetCfg.Password,
				Timeout:  time.Duration(freeNetCfg.TimeoutSeconds) * time.Second,
			})
			sched := scanner.New(scanner.DefaultAnchors(), freeNet, ingestionQueue, scanner.Config{
				Interval:      time.Duration(cfg.Scanner.IntervalSeconds * float64(time.Second)),
				HighWaterMark: int64(cfg.Queue.HighWaterMark),
			})
			go sched.Run(ctx)
		} else {
			logger.Warn("scanner enabled but free-network provider is not, skipping")
		}
	}

	if commercialCfg, ok := cfg.Providers["commercial-network"]; ok && commercialCfg.Enabled {
		client := commercial.New(commercialCfg.BaseURL)
		interval := rateToInterval(commercialCfg.RateLimitPerMin)
		go pollFetchAll(ctx, client, ingestionQueue, interval)
	}

	// aero-api's free/low tiers expose no bulk positional feed (see
	// pkg/adsb/providers/aeroapi), so this daemon never polls it; its
	// client is instead constructed in cmd/aircraft-apid as the bounds
	// query planner's query.RouteProvider for per-callsign route lookups.

	logger.Info("ingestion daemon running", logging.F("workers", ingestCfg.Workers))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
}

// fetcher is the subset of adsb.DataSource a global poll loop needs.
type fetcher interface {
	Kind() adsb.DataSourceKind
	FetchAll(ctx context.Context) ([]adsb.AircraftState, error)
}

// rateToInterval turns a provider's documented requests-per-minute budget
// into a polling interval, floored at one second.
func rateToInterval(ratePerMin float64) time.Duration {
	if ratePerMin <= 0 {
		return time.Minute
	}
	interval := time.Duration(float64(time.Minute) / ratePerMin)
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// pollFetchAll runs f.FetchAll on a fixed interval and enqueues every
// reported state to q, until ctx is cancelled. A failed fetch is logged
// and skipped rather than stalling the loop.
func pollFetchAll(ctx context.Context, f fetcher, q *queue.Queue, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		states, err := f.FetchAll(ctx)
		if err != nil {
			logger.Warn("poll failed", logging.F("provider", f.Kind()), logging.F("error", err))
			continue
		}
		if len(states) == 0 {
			continue
		}

		now := time.Now().Unix()
		batch := make([]queue.Message, 0, len(states))
		for _, state := range states {
			payload, err := json.Marshal(state)
			if err != nil {
				logger.Warn("marshal state failed", logging.F("icao24", state.ICAO24), logging.F("error", err))
				continue
			}
			batch = append(batch, queue.Message{
				ID:                 fmt.Sprintf("poll-%s-%s-%d", f.Kind(), state.ICAO24, now),
				Payload:            payload,
				Source:             string(f.Kind()),
				SourcePriority:     state.SourcePriority,
				IngestionTimestamp: now,
			})
		}
		if len(batch) == 0 {
			continue
		}
		if err := q.Enqueue(ctx, batch); err != nil {
			logger.Warn("enqueue failed", logging.F("provider", f.Kind()), logging.F("error", err))
		}
	}
}
