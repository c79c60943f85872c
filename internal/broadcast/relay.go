package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"aircraftdata/internal/events"
	"aircraftdata/internal/logging"
)

var relayLogger = logging.New("broadcast")

// EventsChannel is the spec-named single logical pub/sub topic every
// process publishes aircraft-update events to and the broadcaster
// subscribes from, so the Hub holding WebSocket clients doesn't have to
// live in the same process as the Ingestion Worker that produces events.
const EventsChannel = "events"

// RedisPublisher implements events.Broadcast by publishing the envelope
// to the shared Redis pub/sub channel instead of fanning out to local
// WebSocket clients directly; used by the ingestion daemon, which has no
// client connections of its own.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, env events.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return p.rdb.Publish(ctx, EventsChannel, b).Err()
}

// RelayFromRedis subscribes to EventsChannel and feeds every received
// envelope into hub.Publish, until ctx is cancelled. Run this once per
// Hub in the process serving WebSocket clients.
func RelayFromRedis(ctx context.Context, rdb *redis.Client, hub *Hub) {
	sub := rdb.Subscribe(ctx, EventsChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env events.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				relayLogger.Warn("dropping malformed event", logging.F("error", err))
				continue
			}
			if err := hub.Publish(ctx, env); err != nil {
				relayLogger.Warn("publish to hub failed", logging.F("error", err))
			}
		}
	}
}
