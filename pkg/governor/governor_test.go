package governor

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestWithBackoff(t *testing.T) {
	t.Run("Success on first attempt", func(t *testing.T) {
		attempts := 0
		operation := func() error {
			attempts++
			return nil
		}

		err := WithBackoff(context.Background(), DefaultBackoffConfig(), operation)

		if err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
		if attempts != 1 {
			t.Errorf("Expected 1 attempt, got %d", attempts)
		}
	})

	t.Run("Success after retries", func(t *testing.T) {
		attempts := 0
		operation := func() error {
			attempts++
			if attempts < 3 {
				return errors.New("temporary error")
			}
			return nil
		}

		cfg := BackoffConfig{MaxRetries: 3, InitialDelay: 5 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2.0}
		err := WithBackoff(context.Background(), cfg, operation)

		if err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
		if attempts != 3 {
			t.Errorf("Expected 3 attempts, got %d", attempts)
		}
	})

	t.Run("Max retries exceeded", func(t *testing.T) {
		attempts := 0
		operation := func() error {
			attempts++
			return errors.New("persistent error")
		}

		cfg := BackoffConfig{MaxRetries: 3, InitialDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Multiplier: 2.0}
		err := WithBackoff(context.Background(), cfg, operation)

		if err == nil {
			t.Error("Expected error after max retries")
		}
		if attempts != 4 {
			t.Errorf("Expected 4 attempts (initial + 3 retries), got %d", attempts)
		}
	})

	t.Run("Context cancellation", func(t *testing.T) {
		attempts := 0
		operation := func() error {
			attempts++
			return errors.New("error")
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := WithBackoff(ctx, DefaultBackoffConfig(), operation)

		if err == nil {
			t.Error("Expected context cancellation error")
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled error, got: %v", err)
		}
		if attempts > 1 {
			t.Errorf("Expected 1 attempt, got %d", attempts)
		}
	})

	t.Run("Max delay cap bounds total elapsed time", func(t *testing.T) {
		attempts := 0
		operation := func() error {
			attempts++
			if attempts < 5 {
				return errors.New("error")
			}
			return nil
		}

		cfg := BackoffConfig{MaxRetries: 10, InitialDelay: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond, Multiplier: 2.0}

		start := time.Now()
		err := WithBackoff(context.Background(), cfg, operation)
		elapsed := time.Since(start)

		if err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
		if elapsed > 150*time.Millisecond {
			t.Errorf("Expected max delay cap to limit total time, took %v", elapsed)
		}
	})

	t.Run("Rate limit error honors Retry-After over computed delay", func(t *testing.T) {
		attempts := 0
		operation := func() error {
			attempts++
			if attempts == 1 {
				return &RateLimitError{StatusCode: 429, RetryAfter: 15 * time.Millisecond, Message: "slow down"}
			}
			return nil
		}

		cfg := BackoffConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0, RespectRetryAfter: true}

		start := time.Now()
		err := WithBackoff(context.Background(), cfg, operation)
		elapsed := time.Since(start)

		if err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
		if elapsed < 14*time.Millisecond {
			t.Errorf("Expected delay to honor Retry-After (~15ms), took %v", elapsed)
		}
	})
}

func TestWithBackoffResult(t *testing.T) {
	t.Run("Success with result", func(t *testing.T) {
		attempts := 0
		operation := func() (string, error) {
			attempts++
			if attempts < 2 {
				return "", errors.New("temporary error")
			}
			return "success", nil
		}

		cfg := BackoffConfig{MaxRetries: 3, InitialDelay: 5 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2.0}
		result, err := WithBackoffResult(context.Background(), cfg, operation)

		if err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
		if result != "success" {
			t.Errorf("Expected result 'success', got %s", result)
		}
	})

	t.Run("Failure returns zero value", func(t *testing.T) {
		operation := func() (int, error) {
			return 0, errors.New("persistent error")
		}

		cfg := BackoffConfig{MaxRetries: 1, InitialDelay: 5 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2.0}
		result, err := WithBackoffResult(context.Background(), cfg, operation)

		if err == nil {
			t.Error("Expected error")
		}
		if result != 0 {
			t.Errorf("Expected zero value (0), got %d", result)
		}
	})
}

func TestDefaultBackoffConfig(t *testing.T) {
	cfg := DefaultBackoffConfig()

	if cfg.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries 3, got %d", cfg.MaxRetries)
	}
	if cfg.InitialDelay != time.Second {
		t.Errorf("Expected InitialDelay 1s, got %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 60*time.Second {
		t.Errorf("Expected MaxDelay 60s, got %v", cfg.MaxDelay)
	}
}

func TestIngestionBackoffConfig(t *testing.T) {
	cfg := IngestionBackoffConfig()

	if cfg.InitialDelay != 500*time.Millisecond {
		t.Errorf("Expected base delay 500ms, got %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 30*time.Second {
		t.Errorf("Expected cap 30s, got %v", cfg.MaxDelay)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("Expected 3 retries, got %d", cfg.MaxRetries)
	}
}

func TestParseRetryAfterDelaySeconds(t *testing.T) {
	h := make(http.Header)
	h.Set("Retry-After", "30")
	d := ParseRetryAfter(h)
	if d != 30*time.Second {
		t.Errorf("Expected 30s, got %v", d)
	}
}
