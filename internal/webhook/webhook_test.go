package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"aircraftdata/internal/events"
	"aircraftdata/internal/queue"
	"aircraftdata/internal/store"
)

type fakeStore struct {
	mu            sync.Mutex
	subscriptions map[uuid.UUID]*store.WebhookSubscription
	outcomes      []string
	breakerFails  int
	breakerOK     int
}

func (f *fakeStore) GetSubscription(ctx context.Context, id uuid.UUID) (*store.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscriptions[id], nil
}

func (f *fakeStore) MarkDeliveryOutcome(ctx context.Context, id uuid.UUID, status string, attempt int, responseStatus *int, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, status)
	return nil
}

func (f *fakeStore) RecordBreakerSuccess(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breakerOK++
	return nil
}

func (f *fakeStore) RecordBreakerFailure(ctx context.Context, id uuid.UUID, threshold int, resetWindow time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breakerFails++
	return nil
}

func newTestQueue(t *testing.T) *queue.Queue {
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

func enqueueDelivery(t *testing.T, q *queue.Queue, subID uuid.UUID) uuid.UUID {
	t.Helper()
	deliveryID := uuid.New()
	env := events.Envelope{ID: uuid.New(), Type: events.AircraftPositionUpdated, Version: "v1", OccurredAt: time.Now(), Payload: json.RawMessage(`{"icao24":"a1b2c3"}`)}
	envJSON, _ := json.Marshal(env)
	msg := struct {
		DeliveryID     uuid.UUID       `json:"delivery_id"`
		SubscriptionID uuid.UUID       `json:"subscription_id"`
		Envelope       json.RawMessage `json:"envelope"`
	}{DeliveryID: deliveryID, SubscriptionID: subID, Envelope: envJSON}
	payload, _ := json.Marshal(msg)
	if err := q.Enqueue(context.Background(), []queue.Message{{ID: deliveryID.String(), Payload: payload}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return deliveryID
}

func TestDeliverySucceedsOn2xxAndVerifiesSignature(t *testing.T) {
	var gotSignature, gotEventHeader string
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Webhook-Signature")
		gotEventHeader = r.Header.Get("X-Webhook-Event")
		b, _ := io.ReadAll(r.Body)
		body = b
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	subID := uuid.New()
	secret := "supersecretsupersecretsupersecret"
	fs := &fakeStore{subscriptions: map[uuid.UUID]*store.WebhookSubscription{
		subID: {ID: subID, Status: "active", CallbackURL: server.URL, SigningSecret: secret, RateLimitPerMinute: 60, DeliveryMaxAttempts: 5, DeliveryBackoffMS: 100},
	}}

	q := newTestQueue(t)
	enqueueDelivery(t, q, subID)

	d := New(q, fs, DefaultConfig())
	msg, err := q.Pop(context.Background(), time.Second)
	if err != nil || msg == nil {
		t.Fatalf("pop: %v %v", msg, err)
	}
	d.process(context.Background(), *msg)

	if gotEventHeader != events.AircraftPositionUpdated {
		t.Errorf("expected event header %s, got %s", events.AircraftPositionUpdated, gotEventHeader)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSignature != expected {
		t.Errorf("signature mismatch: got %s want %s", gotSignature, expected)
	}

	if len(fs.outcomes) != 1 || fs.outcomes[0] != "delivered" {
		t.Errorf("expected delivered outcome, got %v", fs.outcomes)
	}
	if fs.breakerOK != 1 {
		t.Errorf("expected breaker success recorded once, got %d", fs.breakerOK)
	}
}

func TestDeliveryReschedulesOn5xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	subID := uuid.New()
	fs := &fakeStore{subscriptions: map[uuid.UUID]*store.WebhookSubscription{
		subID: {ID: subID, Status: "active", CallbackURL: server.URL, SigningSecret: "secretsecretsecretsecretsecretse", RateLimitPerMinute: 60, DeliveryMaxAttempts: 5, DeliveryBackoffMS: 100},
	}}

	q := newTestQueue(t)
	enqueueDelivery(t, q, subID)

	d := New(q, fs, DefaultConfig())
	msg, _ := q.Pop(context.Background(), time.Second)
	d.process(context.Background(), *msg)

	if fs.breakerFails != 1 {
		t.Errorf("expected breaker failure recorded, got %d", fs.breakerFails)
	}

	depth, err := q.Depth(context.Background())
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth.Delayed != 1 {
		t.Errorf("expected message rescheduled to delayed lane, got depth %+v", depth)
	}
}

func TestDeliveryDeadLettersOnPermanent4xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	subID := uuid.New()
	fs := &fakeStore{subscriptions: map[uuid.UUID]*store.WebhookSubscription{
		subID: {ID: subID, Status: "active", CallbackURL: server.URL, SigningSecret: "secretsecretsecretsecretsecretse", RateLimitPerMinute: 60, DeliveryMaxAttempts: 5, DeliveryBackoffMS: 100},
	}}

	q := newTestQueue(t)
	enqueueDelivery(t, q, subID)

	d := New(q, fs, DefaultConfig())
	msg, _ := q.Pop(context.Background(), time.Second)
	d.process(context.Background(), *msg)

	depth, err := q.Depth(context.Background())
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth.DeadLetter != 1 {
		t.Errorf("expected message dead-lettered, got depth %+v", depth)
	}
}

func TestDeliveryReschedulesWhenBreakerTripped(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	subID := uuid.New()
	trippedUntil := time.Now().Add(time.Minute)
	fs := &fakeStore{subscriptions: map[uuid.UUID]*store.WebhookSubscription{
		subID: {ID: subID, Status: "active", CallbackURL: server.URL, SigningSecret: "secretsecretsecretsecretsecretse", RateLimitPerMinute: 60, DeliveryMaxAttempts: 5, DeliveryBackoffMS: 100, BreakerTrippedUntil: &trippedUntil},
	}}

	q := newTestQueue(t)
	enqueueDelivery(t, q, subID)

	d := New(q, fs, DefaultConfig())
	msg, _ := q.Pop(context.Background(), time.Second)
	d.process(context.Background(), *msg)

	if called {
		t.Error("expected no HTTP call while breaker is tripped")
	}
	depth, err := q.Depth(context.Background())
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth.Delayed != 1 {
		t.Errorf("expected message rescheduled while breaker tripped, got depth %+v", depth)
	}
}

func TestRateLimiterEnforcesWindow(t *testing.T) {
	rl := newRateLimiter()
	subID := uuid.New()
	now := time.Now()

	for i := 0; i < 3; i++ {
		if _, ok := rl.allow(subID, 3, now); !ok {
			t.Fatalf("expected attempt %d to be allowed", i)
		}
	}
	if _, ok := rl.allow(subID, 3, now); ok {
		t.Error("expected 4th attempt within the window to be rejected")
	}
	if _, ok := rl.allow(subID, 3, now.Add(2*time.Minute)); !ok {
		t.Error("expected attempt in a fresh window to be allowed")
	}
}

func TestBackoffWithJitterCapsAtMax(t *testing.T) {
	delay := backoffWithJitter(1000, 20, time.Hour)
	if delay > time.Hour {
		t.Errorf("expected backoff capped at 1h, got %v", delay)
	}
}
