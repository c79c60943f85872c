// Package webhook implements the Webhook Deliverer (C10): per-message it
// checks the subscription's circuit breaker and fixed-window rate
// limit, signs the envelope with HMAC-SHA256, POSTs it to the
// subscriber's callback URL, and reschedules or dead-letters based on
// the response. Grounded on the teacher's internal/db exponential-backoff
// idiom (reconnect.go), generalized to per-subscription breaker state.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"

	"aircraftdata/internal/events"
	"aircraftdata/internal/logging"
	"aircraftdata/internal/metrics"
	"aircraftdata/internal/queue"
	"aircraftdata/internal/store"
)

var logger = logging.New("webhook")

// Store is the subset of the Priority Store the deliverer needs.
type Store interface {
	GetSubscription(ctx context.Context, id uuid.UUID) (*store.WebhookSubscription, error)
	MarkDeliveryOutcome(ctx context.Context, id uuid.UUID, status string, attempt int, responseStatus *int, lastError string) error
	RecordBreakerSuccess(ctx context.Context, id uuid.UUID) error
	RecordBreakerFailure(ctx context.Context, id uuid.UUID, threshold int, resetWindow time.Duration) error
}

// Config tunes breaker and retry behavior not carried per-subscription.
type Config struct {
	BreakerThreshold   int
	BreakerResetWindow time.Duration
	RequestTimeout     time.Duration
	MaxBackoff         time.Duration
}

// DefaultConfig trips the breaker at 5 failures and holds it open for
// 300s. Failures are counted since the last successful delivery, not
// within a time window.
func DefaultConfig() Config {
	return Config{BreakerThreshold: 5, BreakerResetWindow: 300 * time.Second, RequestTimeout: 10 * time.Second, MaxBackoff: time.Hour}
}

type deliveryMessage struct {
	DeliveryID     uuid.UUID       `json:"delivery_id"`
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	Envelope       json.RawMessage `json:"envelope"`
}

// Deliverer drains the webhook queue.
type Deliverer struct {
	queue       *queue.Queue
	store       Store
	httpClient  *http.Client
	limiter     *rateLimiter
	cfg         Config
}

func New(q *queue.Queue, st Store, cfg Config) *Deliverer {
	client := &http.Client{
		Timeout: cfg.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &Deliverer{queue: q, store: st, httpClient: client, limiter: newRateLimiter(), cfg: cfg}
}

// Run drains the webhook queue until ctx is cancelled.
func (d *Deliverer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, err := d.queue.Pop(ctx, time.Second)
		if err != nil {
			logger.Warn("pop failed", logging.F("error", err))
			continue
		}
		if msg == nil {
			continue
		}
		d.process(ctx, *msg)
	}
}

func (d *Deliverer) process(ctx context.Context, msg queue.Message) {
	var dm deliveryMessage
	if err := json.Unmarshal(msg.Payload, &dm); err != nil {
		logger.Warn("dropping message", logging.F("message_id", msg.ID), logging.F("error", err))
		d.queue.DeadLetter(ctx, msg, fmt.Sprintf("unmarshal: %v", err))
		return
	}

	sub, err := d.store.GetSubscription(ctx, dm.SubscriptionID)
	if err != nil {
		logger.Warn("subscription lookup failed", logging.F("subscription_id", dm.SubscriptionID), logging.F("error", err))
		d.queue.Reschedule(ctx, msg, 30*time.Second)
		return
	}
	if sub == nil || !sub.Active() {
		d.queue.DeadLetter(ctx, msg, "subscription missing or inactive")
		return
	}

	now := time.Now()
	if sub.BreakerTrippedUntil != nil && sub.BreakerTrippedUntil.After(now) {
		d.queue.Reschedule(ctx, msg, sub.BreakerTrippedUntil.Sub(now))
		return
	}

	if resetAt, ok := d.limiter.allow(sub.ID, sub.RateLimitPerMinute, now); !ok {
		d.queue.Reschedule(ctx, msg, resetAt.Sub(now))
		return
	}

	var env events.Envelope
	if err := json.Unmarshal(dm.Envelope, &env); err != nil {
		d.queue.DeadLetter(ctx, msg, fmt.Sprintf("unmarshal envelope: %v", err))
		return
	}

	status, responseStatus, deliverErr := d.deliver(ctx, *sub, dm.DeliveryID, env)
	metrics.WebhookDeliveries.WithLabelValues(status).Inc()
	switch status {
	case "delivered":
		d.store.MarkDeliveryOutcome(ctx, dm.DeliveryID, "delivered", msg.Retries+1, responseStatus, "")
		d.store.RecordBreakerSuccess(ctx, sub.ID)
	case "retryable":
		attempt := msg.Retries + 1
		d.store.MarkDeliveryOutcome(ctx, dm.DeliveryID, "pending", attempt, responseStatus, errString(deliverErr))
		d.store.RecordBreakerFailure(ctx, sub.ID, d.cfg.BreakerThreshold, d.cfg.BreakerResetWindow)
		if attempt >= sub.DeliveryMaxAttempts {
			d.store.MarkDeliveryOutcome(ctx, dm.DeliveryID, "failed", attempt, responseStatus, errString(deliverErr))
			d.queue.DeadLetter(ctx, msg, errString(deliverErr))
			return
		}
		delay := backoffWithJitter(sub.DeliveryBackoffMS, attempt, d.cfg.MaxBackoff)
		d.queue.Reschedule(ctx, msg, delay)
	case "permanent":
		d.store.MarkDeliveryOutcome(ctx, dm.DeliveryID, "failed", msg.Retries, responseStatus, errString(deliverErr))
		d.queue.DeadLetter(ctx, msg, errString(deliverErr))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// deliver POSTs the signed envelope and classifies the outcome.
func (d *Deliverer) deliver(ctx context.Context, sub store.WebhookSubscription, deliveryID uuid.UUID, env events.Envelope) (status string, responseStatus *int, err error) {
	envelopeJSON, err := json.Marshal(env)
	if err != nil {
		return "permanent", nil, fmt.Errorf("marshal envelope: %w", err)
	}

	signature := sign(sub.SigningSecret, envelopeJSON)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.CallbackURL, bytes.NewReader(envelopeJSON))
	if err != nil {
		return "permanent", nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Id", deliveryID.String())
	req.Header.Set("X-Webhook-Event", env.Type)
	req.Header.Set("X-Webhook-Signature", "sha256="+signature)
	req.Header.Set("X-Webhook-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "retryable", nil, fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return "delivered", &code, nil
	case code == 429 || code >= 500:
		return "retryable", &code, fmt.Errorf("subscriber returned %d", code)
	default:
		return "permanent", &code, fmt.Errorf("subscriber returned %d", code)
	}
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// backoffWithJitter computes backoff_ms * 2^(attempt-1) with jitter +-20%,
// capped at maxBackoff.
func backoffWithJitter(backoffMS, attempt int, maxBackoff time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := time.Duration(backoffMS) * time.Millisecond
	for i := 1; i < attempt; i++ {
		base *= 2
		if base > maxBackoff {
			base = maxBackoff
			break
		}
	}
	jitterFrac := 1 + (rand.Float64()*0.4 - 0.2) // +-20%
	delay := time.Duration(float64(base) * jitterFrac)
	if delay > maxBackoff {
		delay = maxBackoff
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}
