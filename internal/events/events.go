// Package events implements the Event Publisher (C9): it wraps an
// accepted aircraft state in a canonical envelope, fans it out to the
// WebSocket broadcaster's pub/sub channel (C11), and enqueues one webhook
// queue message per active subscription interested in the event type.
// Grounded on the teacher's JSON envelope conventions (cmd/web-server
// respondJSON) and on google/uuid for event identity.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aircraftdata/internal/queue"
	"aircraftdata/internal/store"
	"aircraftdata/pkg/adsb"
)

// AircraftPositionUpdated is the only event type the ingestion path emits
// today; the envelope shape supports more without changes.
const AircraftPositionUpdated = "aircraft.position.updated"

const envelopeVersion = "v1"

// Envelope is the canonical event shape published to both the broadcaster
// and webhook subscribers.
type Envelope struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	Version    string          `json:"version"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Broadcast is the subset of the WebSocket broadcaster (C11) the publisher
// feeds; a nil Broadcast simply skips that fan-out leg.
type Broadcast interface {
	Publish(ctx context.Context, env Envelope) error
}

// SubscriptionLister is the subset of the Priority Store's webhook
// subscription table the publisher needs.
type SubscriptionLister interface {
	ListActiveSubscriptionsForEventType(ctx context.Context, eventType string) ([]store.WebhookSubscription, error)
	CreateDelivery(ctx context.Context, d store.WebhookDelivery) error
}

// Publisher constructs and fans out canonical events.
type Publisher struct {
	broadcast     Broadcast
	subscriptions SubscriptionLister
	webhookQueue  *queue.Queue
	highWaterMark int64
}

// New constructs a Publisher. highWaterMark is the webhook queue's
// ready-lane depth at or above which new deliveries are shed rather than
// enqueued; zero disables the check.
func New(broadcast Broadcast, subscriptions SubscriptionLister, webhookQueue *queue.Queue, highWaterMark int64) *Publisher {
	return &Publisher{broadcast: broadcast, subscriptions: subscriptions, webhookQueue: webhookQueue, highWaterMark: highWaterMark}
}

// PublishAircraftUpdated implements ingest.Publisher.
func (p *Publisher) PublishAircraftUpdated(ctx context.Context, state adsb.AircraftState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	env := Envelope{
		ID:         uuid.New(),
		Type:       AircraftPositionUpdated,
		Version:    envelopeVersion,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}

	if p.broadcast != nil {
		if err := p.broadcast.Publish(ctx, env); err != nil {
			return fmt.Errorf("publish to broadcaster: %w", err)
		}
	}

	return p.fanOutToWebhooks(ctx, env)
}

// fanOutToWebhooks creates a pending WebhookDelivery and enqueues one
// QueueMessage into the webhook queue per active, interested subscription.
func (p *Publisher) fanOutToWebhooks(ctx context.Context, env Envelope) error {
	if p.subscriptions == nil || p.webhookQueue == nil {
		return nil
	}

	if p.highWaterMark > 0 {
		depth, err := p.webhookQueue.Depth(ctx)
		if err == nil && depth.Ready >= p.highWaterMark {
			return nil
		}
	}

	subs, err := p.subscriptions.ListActiveSubscriptionsForEventType(ctx, env.Type)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	envelopeJSON, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	var batch []queue.Message
	for _, sub := range subs {
		deliveryID := uuid.New()
		if err := p.subscriptions.CreateDelivery(ctx, store.WebhookDelivery{
			ID:             deliveryID,
			EventID:        env.ID,
			SubscriptionID: sub.ID,
			Payload:        envelopeJSON,
			Status:         "pending",
		}); err != nil {
			return fmt.Errorf("create delivery for subscription %s: %w", sub.ID, err)
		}

		deliveryMsg := struct {
			DeliveryID     uuid.UUID       `json:"delivery_id"`
			SubscriptionID uuid.UUID       `json:"subscription_id"`
			Envelope       json.RawMessage `json:"envelope"`
		}{DeliveryID: deliveryID, SubscriptionID: sub.ID, Envelope: envelopeJSON}

		msgPayload, err := json.Marshal(deliveryMsg)
		if err != nil {
			return fmt.Errorf("marshal webhook queue message: %w", err)
		}
		batch = append(batch, queue.Message{ID: deliveryID.String(), Payload: msgPayload})
	}

	return p.webhookQueue.Enqueue(ctx, batch)
}
