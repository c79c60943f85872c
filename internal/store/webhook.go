package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"aircraftdata/internal/errs"
)

// WebhookSubscription mirrors the webhook_subscriptions table.
type WebhookSubscription struct {
	ID                  uuid.UUID
	SubscriberID        string
	CallbackURL         string
	SigningSecret       string
	EventTypes          []string
	BBoxLatMin          *float64
	BBoxLonMin          *float64
	BBoxLatMax          *float64
	BBoxLonMax          *float64
	RateLimitPerMinute  int
	DeliveryMaxAttempts int
	DeliveryBackoffMS   int
	Status              string
	BreakerTrippedUntil *time.Time
	BreakerFailureCount int
}

// Active reports whether the subscription accepts new deliveries.
func (s WebhookSubscription) Active() bool { return s.Status == "active" }

// WantsEventType reports whether eventType is in the subscription's list.
func (s WebhookSubscription) WantsEventType(eventType string) bool {
	for _, t := range s.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

const webhookSubscriptionColumns = `
	id, subscriber_id, callback_url, signing_secret, event_types,
	bbox_lat_min, bbox_lon_min, bbox_lat_max, bbox_lon_max,
	rate_limit_per_minute, delivery_max_attempts, delivery_backoff_ms,
	status, breaker_tripped_until, breaker_failure_count`

// ListActiveSubscriptionsForEventType returns active subscriptions whose
// event_types include eventType, used by the Event Publisher (C9) fan-out.
func (s *Store) ListActiveSubscriptionsForEventType(ctx context.Context, eventType string) ([]WebhookSubscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+webhookSubscriptionColumns+`
		FROM webhook_subscriptions
		WHERE status = 'active' AND $1 = ANY(event_types)`,
		eventType,
	)
	if err != nil {
		return nil, errs.New(errs.StoreTransient, true, fmt.Errorf("list subscriptions: %w", err))
	}
	defer rows.Close()

	var out []WebhookSubscription
	for rows.Next() {
		sub, err := scanWebhookSubscription(rows)
		if err != nil {
			return nil, errs.New(errs.StoreTransient, true, fmt.Errorf("scan subscription: %w", err))
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// GetSubscription returns one subscription by id.
func (s *Store) GetSubscription(ctx context.Context, id uuid.UUID) (*WebhookSubscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+webhookSubscriptionColumns+` FROM webhook_subscriptions WHERE id = $1`, id)
	sub, err := scanWebhookSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.StoreTransient, true, err)
	}
	return &sub, nil
}

// CreateSubscription inserts a new webhook subscription.
func (s *Store) CreateSubscription(ctx context.Context, sub WebhookSubscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_subscriptions (
			id, subscriber_id, callback_url, signing_secret, event_types,
			bbox_lat_min, bbox_lon_min, bbox_lat_max, bbox_lon_max,
			rate_limit_per_minute, delivery_max_attempts, delivery_backoff_ms, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		sub.ID, sub.SubscriberID, sub.CallbackURL, sub.SigningSecret, pq.Array(sub.EventTypes),
		sub.BBoxLatMin, sub.BBoxLonMin, sub.BBoxLatMax, sub.BBoxLonMax,
		sub.RateLimitPerMinute, sub.DeliveryMaxAttempts, sub.DeliveryBackoffMS, sub.Status,
	)
	if err != nil {
		return errs.New(errs.StoreTransient, true, fmt.Errorf("create subscription: %w", err))
	}
	return nil
}

// RecordBreakerSuccess clears the subscription's failure counter.
func (s *Store) RecordBreakerSuccess(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE webhook_subscriptions SET breaker_failure_count = 0, breaker_tripped_until = NULL WHERE id = $1`, id)
	if err != nil {
		return errs.New(errs.StoreTransient, true, fmt.Errorf("record breaker success: %w", err))
	}
	return nil
}

// RecordBreakerFailure increments the failure counter and, if it reaches
// threshold, trips the breaker until now+resetWindow.
func (s *Store) RecordBreakerFailure(ctx context.Context, id uuid.UUID, threshold int, resetWindow time.Duration) error {
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE webhook_subscriptions SET breaker_failure_count = breaker_failure_count + 1
		WHERE id = $1 RETURNING breaker_failure_count`, id).Scan(&count)
	if err != nil {
		return errs.New(errs.StoreTransient, true, fmt.Errorf("record breaker failure: %w", err))
	}
	if count >= threshold {
		trippedUntil := time.Now().Add(resetWindow)
		if _, err := s.db.ExecContext(ctx, `UPDATE webhook_subscriptions SET breaker_tripped_until = $2 WHERE id = $1`, id, trippedUntil); err != nil {
			return errs.New(errs.StoreTransient, true, fmt.Errorf("trip breaker: %w", err))
		}
	}
	return nil
}

func scanWebhookSubscription(row rowScanner) (WebhookSubscription, error) {
	var sub WebhookSubscription
	var eventTypes pq.StringArray
	err := row.Scan(
		&sub.ID, &sub.SubscriberID, &sub.CallbackURL, &sub.SigningSecret, &eventTypes,
		&sub.BBoxLatMin, &sub.BBoxLonMin, &sub.BBoxLatMax, &sub.BBoxLonMax,
		&sub.RateLimitPerMinute, &sub.DeliveryMaxAttempts, &sub.DeliveryBackoffMS,
		&sub.Status, &sub.BreakerTrippedUntil, &sub.BreakerFailureCount,
	)
	if err != nil {
		return WebhookSubscription{}, err
	}
	sub.EventTypes = []string(eventTypes)
	return sub, nil
}

// WebhookDelivery mirrors the webhook_deliveries table.
type WebhookDelivery struct {
	ID             uuid.UUID
	EventID        uuid.UUID
	SubscriptionID uuid.UUID
	Payload        []byte
	Status         string
	Attempt        int
	NextAttemptAt  *time.Time
	ResponseStatus *int
	LastError      string
}

// CreateDelivery inserts a pending delivery row.
func (s *Store) CreateDelivery(ctx context.Context, d WebhookDelivery) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, event_id, subscription_id, payload, status, attempt)
		VALUES ($1,$2,$3,$4,'pending',0)`,
		d.ID, d.EventID, d.SubscriptionID, d.Payload,
	)
	if err != nil {
		return errs.New(errs.StoreTransient, true, fmt.Errorf("create delivery: %w", err))
	}
	return nil
}

// MarkDeliveryOutcome updates a delivery's terminal or interim state after
// an attempt.
func (s *Store) MarkDeliveryOutcome(ctx context.Context, id uuid.UUID, status string, attempt int, responseStatus *int, lastError string) error {
	var delivered *time.Time
	if status == "delivered" {
		now := time.Now()
		delivered = &now
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET status = $2, attempt = $3, response_status = $4, last_error = $5, delivered_at = $6
		WHERE id = $1`,
		id, status, attempt, responseStatus, lastError, delivered,
	)
	if err != nil {
		return errs.New(errs.StoreTransient, true, fmt.Errorf("mark delivery outcome: %w", err))
	}
	return nil
}
