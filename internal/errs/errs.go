// Package errs defines the error kinds the ingestion and query paths
// distinguish, so that callers can decide whether to retry, shed load, or
// swallow a failure without inspecting error strings.
package errs

import "fmt"

// Kind classifies a failure for retry/backoff/DLQ decisions.
type Kind int

const (
	// Validation covers malformed icao24, out-of-range category, NaN
	// coordinates. Recovered locally by dropping the record.
	Validation Kind = iota
	// ProviderRateLimited is a 429 from an upstream provider.
	ProviderRateLimited
	// ProviderTransient is a network timeout or 5xx from a provider.
	ProviderTransient
	// StoreTransient is a DB deadlock or connection reset.
	StoreTransient
	// StorePermanent is a non-retryable store failure, such as a failed
	// history append. A duplicate history snapshot does not produce it;
	// the insert skips duplicates with ON CONFLICT DO NOTHING.
	StorePermanent
	// QueuePermanent means the durable queue is unreachable.
	QueuePermanent
	// WebhookRetryable is a 429 or 5xx from a webhook subscriber.
	WebhookRetryable
	// WebhookPermanent is a non-429 4xx or a URL parse failure.
	WebhookPermanent
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case ProviderRateLimited:
		return "provider_rate_limited"
	case ProviderTransient:
		return "provider_transient"
	case StoreTransient:
		return "store_transient"
	case StorePermanent:
		return "store_permanent"
	case QueuePermanent:
		return "queue_permanent"
	case WebhookRetryable:
		return "webhook_retryable"
	case WebhookPermanent:
		return "webhook_permanent"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind so callers can branch on
// classification without string matching.
type Error struct {
	Kind      Kind
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given kind and retryability.
func New(kind Kind, retryable bool, err error) *Error {
	return &Error{Kind: kind, Retryable: retryable, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}

// Retryable reports whether err is an *Error marked retryable.
func Retryable(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Retryable
}
