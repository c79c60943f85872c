package webhook

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// rateLimiter enforces a per-subscription budget of at most N deliveries
// per fixed one-minute window, tracked in-process as described by the
// RateLimitWindow model. A window starts at the first attempt after the
// previous one has ended. It is not a rolling window: up to 2N deliveries
// can fall within one 60-second span that crosses a window boundary.
type rateLimiter struct {
	mu      sync.Mutex
	windows map[uuid.UUID]*window
}

type window struct {
	count      int
	windowStart time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{windows: make(map[uuid.UUID]*window)}
}

// allow reports whether a delivery attempt for subscriptionID may proceed
// now, given a budget of limitPerMinute. If not allowed, it also returns
// the time the current window resets.
func (r *rateLimiter) allow(subscriptionID uuid.UUID, limitPerMinute int, now time.Time) (resetAt time.Time, ok bool) {
	if limitPerMinute <= 0 {
		limitPerMinute = 60
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	w, exists := r.windows[subscriptionID]
	if !exists || now.Sub(w.windowStart) >= time.Minute {
		w = &window{count: 0, windowStart: now}
		r.windows[subscriptionID] = w
	}

	if w.count >= limitPerMinute {
		return w.windowStart.Add(time.Minute), false
	}
	w.count++
	return time.Time{}, true
}
