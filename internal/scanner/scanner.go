// Package scanner implements the CONUS Scan Scheduler (C12): it holds an
// ordered list of (lat, lon, radius_nm) anchor points covering the
// continental U.S. and round-robins the free-network adapter's
// fetch_point call at the provider's rate limit, enqueueing every
// response to the ingestion queue with source_priority=20 and
// skip_history=true. Grounded on the teacher's cmd/collector polling loop,
// adapted from a fixed-interval single-source poll to a rate-limited,
// multi-anchor rotation.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"aircraftdata/internal/logging"
	"aircraftdata/internal/queue"
	"aircraftdata/pkg/adsb"
)

var logger = logging.New("scanner")

// scanSourcePriority is the priority CONUS scan results are enqueued with,
// named explicitly by the scheduler regardless of the free-network
// adapter's own default priority.
const scanSourcePriority = 20

// Anchor is one (lat, lon, radius_nm) point the scheduler polls in turn.
type Anchor struct {
	Name     string
	Lat      float64
	Lon      float64
	RadiusNM float64
}

// FreeNetworkSource is the subset of the free-network adapter the
// scheduler drives.
type FreeNetworkSource interface {
	FetchPoint(ctx context.Context, lat, lon, radiusNM float64) ([]adsb.AircraftState, error)
}

// Config tunes the scheduler's pacing.
type Config struct {
	// Interval between successive fetch_point calls; the provider's
	// documented rate limit (default 1 request/second).
	Interval time.Duration
	// HighWaterMark is the ready-lane depth at or above which the
	// scheduler skips a rotation rather than adding to the backlog.
	// Zero disables the check.
	HighWaterMark int64
}

// DefaultConfig matches the spec-named 1 req/sec free-network rate limit.
func DefaultConfig() Config {
	return Config{Interval: time.Second}
}

// Scheduler round-robins Anchors against a FreeNetworkSource and enqueues
// results to the ingestion queue.
type Scheduler struct {
	anchors []Anchor
	source  FreeNetworkSource
	queue   *queue.Queue
	cfg     Config
}

// New constructs a Scheduler over the given anchor list. anchors must be
// non-empty; callers needing CONUS-wide coverage can use DefaultAnchors.
func New(anchors []Anchor, source FreeNetworkSource, q *queue.Queue, cfg Config) *Scheduler {
	return &Scheduler{anchors: anchors, source: source, queue: q, cfg: cfg}
}

// Run drives the round-robin scan loop until ctx is cancelled. A failure
// at one anchor is logged and isolated; the scheduler advances to the
// next anchor rather than stalling the rotation.
func (s *Scheduler) Run(ctx context.Context) {
	if len(s.anchors) == 0 {
		logger.Warn("no anchors configured, nothing to scan")
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	idx := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		anchor := s.anchors[idx]
		if s.backpressured(ctx) {
			logger.Warn("skipping CONUS rotation, queue backpressured", logging.F("anchor", anchor.Name))
		} else if err := s.scanOne(ctx, anchor); err != nil {
			logger.Warn("anchor failed", logging.F("anchor", anchor.Name), logging.F("error", err))
		}

		idx++
		if idx >= len(s.anchors) {
			idx = 0
			logger.Info("completed a full CONUS scan cycle", logging.F("anchors", len(s.anchors)))
		}
	}
}

// backpressured reports whether the ingestion queue's ready lane has
// reached the configured high-water mark.
func (s *Scheduler) backpressured(ctx context.Context) bool {
	if s.cfg.HighWaterMark <= 0 {
		return false
	}
	depth, err := s.queue.Depth(ctx)
	if err != nil {
		logger.Warn("queue depth check failed", logging.F("error", err))
		return false
	}
	return depth.Ready >= s.cfg.HighWaterMark
}

// scanOne fetches one anchor point and enqueues every reported aircraft
// state as its own ingestion queue message, batched into a single
// Enqueue call.
func (s *Scheduler) scanOne(ctx context.Context, anchor Anchor) error {
	states, err := s.source.FetchPoint(ctx, anchor.Lat, anchor.Lon, anchor.RadiusNM)
	if err != nil {
		return fmt.Errorf("fetch_point(%s): %w", anchor.Name, err)
	}
	if len(states) == 0 {
		return nil
	}

	batch := make([]queue.Message, 0, len(states))
	now := time.Now().Unix()
	for _, state := range states {
		state.SourcePriority = scanSourcePriority
		state.IngestionTimestamp = now

		payload, err := json.Marshal(state)
		if err != nil {
			logger.Warn("marshal state failed", logging.F("icao24", state.ICAO24), logging.F("error", err))
			continue
		}
		batch = append(batch, queue.Message{
			ID:                 fmt.Sprintf("scan-%s-%d", state.ICAO24, now),
			Payload:            payload,
			Source:             string(adsb.SourceFreeNetwork),
			SourcePriority:     scanSourcePriority,
			IngestionTimestamp: now,
			SkipHistory:        true,
		})
	}
	if len(batch) == 0 {
		return nil
	}
	return s.queue.Enqueue(ctx, batch)
}
