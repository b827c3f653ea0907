package anomaly

import (
	"sync"
	"time"
)

// RateTracker tracks request and token throughput over a sliding time
// window, reported as per-hour rates. Safe for concurrent use.
type RateTracker struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries []rateEntry
}

type rateEntry struct {
	at     time.Time
	tokens int
}

// NewRateTracker creates a tracker over the given window. A zero or
// negative window defaults to one hour.
func NewRateTracker(window time.Duration) *RateTracker {
	if window <= 0 {
		window = time.Hour
	}
	return &RateTracker{window: window, now: time.Now}
}

// RecordRequest records one request and its token count.
func (r *RateTracker) RecordRequest(tokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, rateEntry{at: r.now(), tokens: tokens})
	r.prune()
}

// RequestRate returns requests per hour over the window.
func (r *RateTracker) RequestRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune()
	if len(r.entries) == 0 {
		return 0.0
	}
	return float64(len(r.entries)) * r.scale()
}

// TokenRate returns tokens per hour over the window.
func (r *RateTracker) TokenRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune()
	total := 0
	for _, e := range r.entries {
		total += e.tokens
	}
	if total == 0 {
		return 0.0
	}
	return float64(total) * r.scale()
}

func (r *RateTracker) scale() float64 {
	return float64(time.Hour) / float64(r.window)
}

// prune drops entries older than the window. Caller holds the lock.
func (r *RateTracker) prune() {
	cutoff := r.now().Add(-r.window)
	i := 0
	for i < len(r.entries) && r.entries[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		r.entries = append(r.entries[:0], r.entries[i:]...)
	}
}
