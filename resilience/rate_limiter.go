package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a key has used up its window.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limit is a fixed-window quota: at most MaxRequests per Window.
type Limit struct {
	MaxRequests int           `json:"max_requests" mapstructure:"max_requests" validate:"min=1"`
	Window      time.Duration `json:"window" mapstructure:"window" validate:"gt=0"`
}

// RateLimiterConfig configures a rate limiter.
type RateLimiterConfig struct {
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
	// OnLimit is called when a request for key is rejected.
	OnLimit func(key string)
}

// LimitStatus describes the remaining quota of a key.
type LimitStatus struct {
	Limited   bool          `json:"limited"`
	Limit     int           `json:"limit"`
	Remaining int           `json:"remaining"`
	Window    time.Duration `json:"window"`
	ResetAt   time.Time     `json:"reset_at,omitempty"`
}

type window struct {
	count int
	start time.Time
}

// RateLimiter is a fixed-window request counter keyed by endpoint.
// It never blocks: a rejected caller gets false immediately.
type RateLimiter struct {
	config RateLimiterConfig

	mu      sync.Mutex
	windows map[string]*window
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &RateLimiter{config: config, windows: make(map[string]*window)}
}

// TryAcquire takes one slot from key's current window. A nil limit means
// unlimited. A rejection leaves the window untouched.
func (rl *RateLimiter) TryAcquire(key string, limit *Limit) bool {
	if limit == nil {
		return true
	}

	rl.mu.Lock()
	now := rl.config.Clock()
	w := rl.current(key, limit, now)
	if w.count < limit.MaxRequests {
		w.count++
		rl.mu.Unlock()
		return true
	}
	rl.mu.Unlock()

	if rl.config.OnLimit != nil {
		rl.config.OnLimit(key)
	}
	return false
}

// Acquire is TryAcquire returning ErrRateLimited on rejection.
func (rl *RateLimiter) Acquire(key string, limit *Limit) error {
	if !rl.TryAcquire(key, limit) {
		return ErrRateLimited
	}
	return nil
}

// Status reports the remaining quota for key without consuming it.
func (rl *RateLimiter) Status(key string, limit *Limit) LimitStatus {
	if limit == nil {
		return LimitStatus{Limit: -1, Remaining: -1}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	st := LimitStatus{Limit: limit.MaxRequests, Remaining: limit.MaxRequests, Window: limit.Window}
	w, ok := rl.windows[key]
	if !ok || rl.config.Clock().Sub(w.start) >= limit.Window {
		return st
	}
	st.Remaining = limit.MaxRequests - w.count
	if st.Remaining < 0 {
		st.Remaining = 0
	}
	st.Limited = st.Remaining == 0
	st.ResetAt = w.start.Add(limit.Window)
	return st
}

// Reset forgets key's window.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.windows, key)
}

// ResetAll forgets every window.
func (rl *RateLimiter) ResetAll() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.windows = make(map[string]*window)
}

// current returns key's window, starting a new one when none exists or the
// old one has elapsed. Caller holds rl.mu.
func (rl *RateLimiter) current(key string, limit *Limit, now time.Time) *window {
	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= limit.Window {
		w = &window{start: now}
		rl.windows[key] = w
	}
	return w
}
