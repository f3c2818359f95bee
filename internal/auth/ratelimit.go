package auth

import (
	"math"
	"sync"
	"time"
)

const (
	// cleanupEvery is how many admission checks pass between full-map sweeps
	// of keys whose windows have entirely expired.
	cleanupEvery = 100

	// DefaultWindow is the sliding window length.
	DefaultWindow = time.Minute
)

// Decision is the outcome of a rate limit admission check.
type Decision struct {
	Allowed bool
	// RetryAfter is how long the client should wait before retrying.
	// Only meaningful when Allowed is false; always at least one second.
	RetryAfter time.Duration
}

// SlidingWindowLimiter admits requests per key based on a trailing time
// window of accepted-request timestamps. It is pure accounting: it knows
// nothing about HTTP, only key identities and the clock value passed in.
type SlidingWindowLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	windows map[string][]time.Time
	checks  int
}

// NewSlidingWindowLimiter creates a limiter allowing limit requests per key
// within each trailing window.
func NewSlidingWindowLimiter(limit int, window time.Duration) *SlidingWindowLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &SlidingWindowLimiter{
		limit:   limit,
		window:  window,
		windows: make(map[string][]time.Time),
	}
}

// Admit checks whether a request for key at time now may proceed, recording
// the timestamp if it may. Safe for concurrent use; the mutex guarantees two
// simultaneous admissions for one key never both observe a stale count.
func (l *SlidingWindowLimiter) Admit(key string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)

	window := l.windows[key]
	for len(window) > 0 && window[0].Before(cutoff) {
		window = window[1:]
	}

	if len(window) >= l.limit {
		retry := l.window - now.Sub(window[0])
		// Round up to whole seconds, minimum one.
		secs := int(math.Ceil(retry.Seconds()))
		if secs < 1 {
			secs = 1
		}
		l.windows[key] = window
		return Decision{Allowed: false, RetryAfter: time.Duration(secs) * time.Second}
	}

	l.windows[key] = append(window, now)

	l.checks++
	if l.checks%cleanupEvery == 0 {
		l.sweep(cutoff)
	}

	return Decision{Allowed: true}
}

// sweep drops keys whose newest timestamp is older than the cutoff, bounding
// memory for keys that stopped sending traffic. Caller holds the lock.
func (l *SlidingWindowLimiter) sweep(cutoff time.Time) {
	for key, window := range l.windows {
		if len(window) == 0 || window[len(window)-1].Before(cutoff) {
			delete(l.windows, key)
		}
	}
}

// tracked returns the number of keys currently held. Test hook.
func (l *SlidingWindowLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
