package events

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"aircraftdata/internal/queue"
	"aircraftdata/internal/store"
	"aircraftdata/pkg/adsb"
)

type fakeBroadcast struct {
	published []Envelope
}

func (f *fakeBroadcast) Publish(ctx context.Context, env Envelope) error {
	f.published = append(f.published, env)
	return nil
}

type fakeSubscriptions struct {
	subs      []store.WebhookSubscription
	deliveries []store.WebhookDelivery
}

func (f *fakeSubscriptions) ListActiveSubscriptionsForEventType(ctx context.Context, eventType string) ([]store.WebhookSubscription, error) {
	var out []store.WebhookSubscription
	for _, s := range f.subs {
		if s.WantsEventType(eventType) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubscriptions) CreateDelivery(ctx context.Context, d store.WebhookDelivery) error {
	f.deliveries = append(f.deliveries, d)
	return nil
}

func newTestWebhookQueue(t *testing.T) *queue.Queue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return queue.New(rdb, queue.WebhookQueue())
}

func TestPublishAircraftUpdatedBroadcastsAndFansOut(t *testing.T) {
	broadcast := &fakeBroadcast{}
	subs := &fakeSubscriptions{subs: []store.WebhookSubscription{
		{ID: uuid.New(), Status: "active", EventTypes: []string{AircraftPositionUpdated}},
		{ID: uuid.New(), Status: "active", EventTypes: []string{"other.event"}},
	}}
	q := newTestWebhookQueue(t)
	pub := New(broadcast, subs, q, 0)

	state := adsb.AircraftState{ICAO24: "a1b2c3", Latitude: 35, Longitude: -80}
	if err := pub.PublishAircraftUpdated(context.Background(), state); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(broadcast.published) != 1 {
		t.Fatalf("expected 1 broadcast event, got %d", len(broadcast.published))
	}
	if broadcast.published[0].Type != AircraftPositionUpdated {
		t.Errorf("expected type %s, got %s", AircraftPositionUpdated, broadcast.published[0].Type)
	}

	if len(subs.deliveries) != 1 {
		t.Fatalf("expected 1 delivery created (only the interested subscription), got %d", len(subs.deliveries))
	}

	depth, err := q.Depth(context.Background())
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth.Ready != 1 {
		t.Errorf("expected 1 webhook queue message enqueued, got %d", depth.Ready)
	}
}

func TestPublishAircraftUpdatedNoInterestedSubscriptionsEnqueuesNothing(t *testing.T) {
	broadcast := &fakeBroadcast{}
	subs := &fakeSubscriptions{subs: []store.WebhookSubscription{
		{ID: uuid.New(), Status: "active", EventTypes: []string{"other.event"}},
	}}
	q := newTestWebhookQueue(t)
	pub := New(broadcast, subs, q, 0)

	state := adsb.AircraftState{ICAO24: "a1b2c3"}
	if err := pub.PublishAircraftUpdated(context.Background(), state); err != nil {
		t.Fatalf("publish: %v", err)
	}

	depth, err := q.Depth(context.Background())
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth.Ready != 0 {
		t.Errorf("expected no webhook messages enqueued, got %d", depth.Ready)
	}
}

func TestPublishAircraftUpdatedSkipsFanOutWhenNoSubscriptionLister(t *testing.T) {
	broadcast := &fakeBroadcast{}
	pub := New(broadcast, nil, nil, 0)

	if err := pub.PublishAircraftUpdated(context.Background(), adsb.AircraftState{ICAO24: "a1b2c3"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(broadcast.published) != 1 {
		t.Fatalf("expected broadcast to still receive the event, got %d", len(broadcast.published))
	}
}
