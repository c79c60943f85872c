// Package queue implements the three-lane durable queue shared by the
// Ingestion Queue and the Webhook Queue (C3): a ready FIFO list, a
// delayed sorted set scored by available_at, and a dead-letter list.
// Backed by Redis, grounded on the pack's go-redis usage and on the
// teacher's internal/db retry idiom for transient-failure handling.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"aircraftdata/internal/errs"
)

// Message is the envelope carried through a queue's three lanes. Payload
// is left as raw JSON so the same queue shape serves both ingestion
// batches (adsb.AircraftState) and webhook deliveries.
type Message struct {
	ID                 string          `json:"id"`
	Payload             json.RawMessage `json:"payload"`
	Source              string          `json:"source,omitempty"`
	SourcePriority       int             `json:"source_priority,omitempty"`
	IngestionTimestamp   int64           `json:"ingestion_timestamp,omitempty"`
	SkipHistory          bool            `json:"skip_history,omitempty"`
	Retries              int             `json:"retries"`
	AvailableAt          int64           `json:"available_at,omitempty"` // unix millis
}

// Config names the three Redis keys backing one queue instance.
type Config struct {
	ReadyKey      string
	DelayedKey    string
	DeadLetterKey string
}

// IngestionQueue returns the key set for the aircraft-state ingestion lanes.
func IngestionQueue() Config {
	return Config{ReadyKey: "queue:ingestion:ready", DelayedKey: "queue:ingestion:delayed", DeadLetterKey: "queue:ingestion:dead"}
}

// WebhookQueue returns the key set for the webhook delivery lanes.
func WebhookQueue() Config {
	return Config{ReadyKey: "queue:webhook:ready", DelayedKey: "queue:webhook:delayed", DeadLetterKey: "queue:webhook:dead"}
}

// Queue is a durable, Redis-backed three-lane message queue.
type Queue struct {
	rdb *redis.Client
	cfg Config
}

// New wraps an existing Redis client with the given lane configuration.
func New(rdb *redis.Client, cfg Config) *Queue {
	return &Queue{rdb: rdb, cfg: cfg}
}

// Enqueue appends batch to the ready lane with O(len(batch)) and never
// blocks beyond transport cost; messages without an ID are assigned one
// by the caller before Enqueue is called.
func (q *Queue) Enqueue(ctx context.Context, batch []Message) error {
	if len(batch) == 0 {
		return nil
	}
	values := make([]interface{}, len(batch))
	for i, m := range batch {
		b, err := json.Marshal(m)
		if err != nil {
			return errs.New(errs.QueuePermanent, false, fmt.Errorf("marshal queue message: %w", err))
		}
		values[i] = b
	}
	if err := q.rdb.LPush(ctx, q.cfg.ReadyKey, values...).Err(); err != nil {
		return errs.New(errs.StoreTransient, true, fmt.Errorf("enqueue: %w", err))
	}
	return nil
}

// Pop blocks up to blockTimeout waiting for a message on the ready lane,
// returning (nil, nil) on timeout. Workers must tolerate re-delivery of
// the same message after a crash between Pop and a successful ack.
func (q *Queue) Pop(ctx context.Context, blockTimeout time.Duration) (*Message, error) {
	res, err := q.rdb.BRPop(ctx, blockTimeout, q.cfg.ReadyKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.StoreTransient, true, fmt.Errorf("pop: %w", err))
	}
	if len(res) < 2 {
		return nil, nil
	}
	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return nil, errs.New(errs.QueuePermanent, false, fmt.Errorf("unmarshal popped message: %w", err))
	}
	return &msg, nil
}

// Reschedule moves msg to the delayed lane, due at now+delay.
func (q *Queue) Reschedule(ctx context.Context, msg Message, delay time.Duration) error {
	msg.Retries++
	msg.AvailableAt = time.Now().Add(delay).UnixMilli()
	b, err := json.Marshal(msg)
	if err != nil {
		return errs.New(errs.QueuePermanent, false, fmt.Errorf("marshal rescheduled message: %w", err))
	}
	z := redis.Z{Score: float64(msg.AvailableAt), Member: b}
	if err := q.rdb.ZAdd(ctx, q.cfg.DelayedKey, z).Err(); err != nil {
		return errs.New(errs.StoreTransient, true, fmt.Errorf("reschedule: %w", err))
	}
	return nil
}

// DeadLetter appends msg to the dead-letter lane along with the terminal
// failure reason.
func (q *Queue) DeadLetter(ctx context.Context, msg Message, reason string) error {
	entry := struct {
		Message Message `json:"message"`
		Reason  string  `json:"reason"`
		At      int64   `json:"at"`
	}{Message: msg, Reason: reason, At: time.Now().UnixMilli()}
	b, err := json.Marshal(entry)
	if err != nil {
		return errs.New(errs.QueuePermanent, false, fmt.Errorf("marshal dead-letter entry: %w", err))
	}
	if err := q.rdb.LPush(ctx, q.cfg.DeadLetterKey, b).Err(); err != nil {
		return errs.New(errs.StoreTransient, true, fmt.Errorf("dead-letter: %w", err))
	}
	return nil
}

// MoveDue migrates delayed items whose available_at has passed into the
// ready lane. Intended to be called periodically by a mover goroutine;
// returns the number of messages moved.
func (q *Queue) MoveDue(ctx context.Context, now time.Time) (int, error) {
	max := fmt.Sprintf("%d", now.UnixMilli())
	due, err := q.rdb.ZRangeByScore(ctx, q.cfg.DelayedKey, &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, errs.New(errs.StoreTransient, true, fmt.Errorf("scan delayed lane: %w", err))
	}
	if len(due) == 0 {
		return 0, nil
	}

	moved := 0
	for _, member := range due {
		removed, err := q.rdb.ZRem(ctx, q.cfg.DelayedKey, member).Result()
		if err != nil {
			return moved, errs.New(errs.StoreTransient, true, fmt.Errorf("remove from delayed lane: %w", err))
		}
		if removed == 0 {
			continue // another mover already claimed this member
		}
		if err := q.rdb.LPush(ctx, q.cfg.ReadyKey, member).Err(); err != nil {
			return moved, errs.New(errs.StoreTransient, true, fmt.Errorf("promote to ready lane: %w", err))
		}
		moved++
	}
	return moved, nil
}

// RunMover blocks, migrating due delayed messages into the ready lane
// every interval, until ctx is cancelled.
func RunMover(ctx context.Context, q *Queue, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.MoveDue(ctx, time.Now())
		}
	}
}

// Depth reports the lengths of all three lanes, for metrics.
type Depth struct {
	Ready      int64
	Delayed    int64
	DeadLetter int64
}

func (q *Queue) Depth(ctx context.Context) (Depth, error) {
	ready, err := q.rdb.LLen(ctx, q.cfg.ReadyKey).Result()
	if err != nil {
		return Depth{}, err
	}
	delayed, err := q.rdb.ZCard(ctx, q.cfg.DelayedKey).Result()
	if err != nil {
		return Depth{}, err
	}
	dead, err := q.rdb.LLen(ctx, q.cfg.DeadLetterKey).Result()
	if err != nil {
		return Depth{}, err
	}
	return Depth{Ready: ready, Delayed: delayed, DeadLetter: dead}, nil
}
