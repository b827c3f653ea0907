package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"
)

// ClientLimiter throttles telemetry producers with a token bucket per
// client. Clients are keyed by IP; a misbehaving SDK or a runaway retry
// loop is slowed down without affecting other producers.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*tokenBucket
	rate    float64 // tokens added per second
	burst   float64 // bucket capacity
}

type tokenBucket struct {
	tokens   float64
	lastFill time.Time
}

// NewClientLimiter creates a limiter refilling rate tokens/sec with the
// given burst capacity per client.
func NewClientLimiter(rate float64, burst int) *ClientLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &ClientLimiter{
		clients: make(map[string]*tokenBucket),
		rate:    rate,
		burst:   float64(burst),
	}
	go l.evictIdle()
	return l
}

// Allow reports whether the client may send another batch right now.
func (l *ClientLimiter) Allow(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.clients[clientID]
	if !ok {
		b = &tokenBucket{tokens: l.burst, lastFill: now}
		l.clients[clientID] = b
	}

	b.tokens = math.Min(l.burst, b.tokens+now.Sub(b.lastFill).Seconds()*l.rate)
	b.lastFill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// retryAfter is the wait that guarantees at least one token.
func (l *ClientLimiter) retryAfter() time.Duration {
	if l.rate <= 0 {
		return time.Second
	}
	return time.Duration(math.Ceil(1/l.rate)) * time.Second
}

// Producers that stop sending fall out of the map so a churning client
// population cannot grow it without bound.
func (l *ClientLimiter) evictIdle() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		cutoff := time.Now().Add(-10 * time.Minute)
		for id, b := range l.clients {
			if b.lastFill.Before(cutoff) {
				delete(l.clients, id)
			}
		}
		l.mu.Unlock()
	}
}

// clientKey identifies the producer. chi's RealIP middleware has already
// resolved proxy headers into X-Real-Ip; fall back to the peer address.
func clientKey(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimit returns a middleware rejecting clients above the configured
// ingest rate with 429 and a Retry-After hint, so SDK transmitters back off
// instead of hammering the batch endpoint.
func RateLimit(rate float64, burst int) func(http.Handler) http.Handler {
	limiter := NewClientLimiter(rate, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientKey(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(limiter.retryAfter().Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
