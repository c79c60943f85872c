// Package governor implements the retry envelope shared by provider
// adapters: exponential backoff with jitter that understands HTTP 429
// Retry-After semantics. It holds no token bucket and no per-provider
// state; each adapter paces its own requests. It generalizes what used
// to be a single client's hand-rolled retry loop into a reusable piece.
package governor

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RateLimitError represents an HTTP 429 rate limit response, carrying
// whatever Retry-After and quota headers the provider returned.
type RateLimitError struct {
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Headers    RateLimitHeaders
}

// RateLimitHeaders holds the quota bookkeeping a provider reports.
type RateLimitHeaders struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimitError reports whether err is a *RateLimitError.
func IsRateLimitError(err error) (*RateLimitError, bool) {
	rle, ok := err.(*RateLimitError)
	return rle, ok
}

// ParseRetryAfter extracts the Retry-After header, supporting both
// delay-seconds and HTTP-date forms. Returns 0 if absent or unparsable.
func ParseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if retryTime, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(retryTime); d > 0 {
			return d
		}
	}
	return 0
}

// ExtractRateLimitHeaders reads the common X-Rate-Limit-* / X-RateLimit-*
// header spellings a provider may use.
func ExtractRateLimitHeaders(headers http.Header) RateLimitHeaders {
	rlh := RateLimitHeaders{Limit: -1, Remaining: -1}

	if v := firstNonEmpty(headers, "X-Rate-Limit-Limit", "X-RateLimit-Limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			rlh.Limit = n
		}
	}
	if v := firstNonEmpty(headers, "X-Rate-Limit-Remaining", "X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			rlh.Remaining = n
		}
	}
	if v := firstNonEmpty(headers, "X-Rate-Limit-Reset", "X-RateLimit-Reset"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			rlh.Reset = time.Unix(n, 0)
		}
	}
	return rlh
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// BackoffConfig configures exponential backoff with a cap, used both by
// provider adapters (HTTP retry) and by the ingestion worker (DB retry).
type BackoffConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	Multiplier        float64
	RespectRetryAfter bool
	// Jitter, in [0,1], randomizes each computed delay by up to this
	// fraction to avoid synchronized retry storms across workers.
	Jitter float64
}

// DefaultBackoffConfig matches a provider HTTP client's retry posture.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          60 * time.Second,
		Multiplier:        2.0,
		RespectRetryAfter: true,
		Jitter:            0.2,
	}
}

// IngestionBackoffConfig matches the ingestion worker's reschedule
// policy: base 500ms doubling to a 30s cap over 3 retries.
func IngestionBackoffConfig() BackoffConfig {
	return BackoffConfig{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay computes the backoff delay for the given attempt (0-indexed),
// applying the multiplier, the cap, and jitter.
func (c BackoffConfig) Delay(attempt int) time.Duration {
	d := time.Duration(float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt)))
	if d > c.MaxDelay {
		d = c.MaxDelay
	}
	if c.Jitter > 0 {
		jitter := 1 + (rand.Float64()*2-1)*c.Jitter
		d = time.Duration(float64(d) * jitter)
	}
	return d
}

// Func is a retryable operation.
type Func func() error

// WithBackoff executes fn, retrying on error per cfg. A *RateLimitError
// whose RetryAfter is set overrides the computed delay when
// RespectRetryAfter is true.
func WithBackoff(ctx context.Context, cfg BackoffConfig, fn Func) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := cfg.Delay(attempt - 1)
			if rle, ok := IsRateLimitError(lastErr); ok && cfg.RespectRetryAfter && rle.RetryAfter > 0 {
				delay = rle.RetryAfter
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == cfg.MaxRetries {
			break
		}
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
}

// WithBackoffResult is WithBackoff for operations that also return a
// value, used by adapters whose fetch calls return data.
func WithBackoffResult[T any](ctx context.Context, cfg BackoffConfig, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := cfg.Delay(attempt - 1)
			if rle, ok := IsRateLimitError(lastErr); ok && cfg.RespectRetryAfter && rle.RetryAfter > 0 {
				delay = rle.RetryAfter
			}
			select {
			case <-ctx.Done():
				return result, fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		res, err := fn()
		if err == nil {
			return res, nil
		}
		result = res
		lastErr = err

		if attempt == cfg.MaxRetries {
			break
		}
	}
	return result, fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
}
