// Package ingest implements the Ingestion Worker (C4): it pops messages
// from the ingestion queue, validates them, applies the Priority Store's
// upsert decision, writes through to the live-state cache on success, and
// asks the Event Publisher to announce the change. Grounded on the
// teacher's cmd/collector polling loop and internal/db upsert shape,
// generalized to queue-driven, priority-aware ingestion.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"aircraftdata/internal/errs"
	"aircraftdata/internal/logging"
	"aircraftdata/internal/queue"
	"aircraftdata/internal/store"
	"aircraftdata/pkg/adsb"
)

var logger = logging.New("ingest")

const maxRetries = 3

var backoffBase = 500 * time.Millisecond
var backoffCap = 30 * time.Second

// Store is the subset of the Priority Store the worker needs.
type Store interface {
	Upsert(ctx context.Context, state adsb.AircraftState, skipHistory bool) (store.UpsertResult, error)
}

// Cache is the subset of the live-state cache the worker writes through to.
type Cache interface {
	Upsert(state adsb.AircraftState)
}

// Publisher is the subset of the event publisher (C9) the worker calls on
// a successful upsert.
type Publisher interface {
	PublishAircraftUpdated(ctx context.Context, state adsb.AircraftState) error
}

// Config tunes worker concurrency and batching.
type Config struct {
	Workers       int
	BatchSize     int
	PopTimeout    time.Duration
	MoveInterval  time.Duration
}

// DefaultConfig matches spec-named defaults.
func DefaultConfig() Config {
	return Config{Workers: 4, BatchSize: 100, PopTimeout: time.Second, MoveInterval: time.Second}
}

// Worker drains the ingestion queue.
type Worker struct {
	queue     *queue.Queue
	store     Store
	cache     Cache
	publisher Publisher
	cfg       Config
}

func New(q *queue.Queue, store Store, cache Cache, publisher Publisher, cfg Config) *Worker {
	return &Worker{queue: q, store: store, cache: cache, publisher: publisher, cfg: cfg}
}

// Run drives one worker loop until ctx is cancelled. Spawn cfg.Workers
// copies concurrently to parallelize ingestion.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := w.queue.Pop(ctx, w.cfg.PopTimeout)
		if err != nil {
			logger.Warn("pop failed", logging.F("error", err))
			continue
		}
		if msg == nil {
			continue // timed out, no message waiting
		}
		w.process(ctx, *msg)
	}
}

// process handles one popped message: validate, upsert, write through,
// publish; reschedule or dead-letter on transient failure. Each message is
// handled independently so a single bad record never blocks its batch-mates.
func (w *Worker) process(ctx context.Context, msg queue.Message) {
	var state adsb.AircraftState
	if err := json.Unmarshal(msg.Payload, &state); err != nil {
		logger.Warn("dropping message", logging.F("message_id", msg.ID), logging.F("reason", "unmarshal payload"), logging.F("error", err))
		w.queue.DeadLetter(ctx, msg, fmt.Sprintf("unmarshal payload: %v", err))
		return
	}
	state.Normalize()

	if !adsb.IsValidICAO24(state.ICAO24) {
		logger.Warn("dropping message", logging.F("message_id", msg.ID), logging.F("reason", "invalid icao24"), logging.F("icao24", state.ICAO24))
		w.queue.DeadLetter(ctx, msg, "invalid or missing icao24")
		return
	}

	result, err := w.store.Upsert(ctx, state, msg.SkipHistory)
	if err != nil {
		w.handleFailure(ctx, msg, err)
		return
	}
	if !result.Applied {
		return // lost the priority decision; nothing changed
	}

	if w.cache != nil {
		w.cache.Upsert(state)
	}
	if w.publisher != nil {
		if err := w.publisher.PublishAircraftUpdated(ctx, state); err != nil {
			logger.Error("publish failed", logging.F("icao24", state.ICAO24), logging.F("error", err))
		}
	}
}

func (w *Worker) handleFailure(ctx context.Context, msg queue.Message, err error) {
	if !errs.Retryable(err) {
		logger.Error("permanent failure", logging.F("message_id", msg.ID), logging.F("error", err))
		w.queue.DeadLetter(ctx, msg, err.Error())
		return
	}
	if msg.Retries >= maxRetries {
		logger.Error("exhausted retries", logging.F("message_id", msg.ID), logging.F("error", err))
		w.queue.DeadLetter(ctx, msg, err.Error())
		return
	}
	delay := backoffBase << uint(msg.Retries)
	if delay > backoffCap {
		delay = backoffCap
	}
	if err := w.queue.Reschedule(ctx, msg, delay); err != nil {
		logger.Warn("reschedule failed", logging.F("message_id", msg.ID), logging.F("error", err))
	}
}
