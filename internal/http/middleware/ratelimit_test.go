package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientLimiterAllowsWithinBurst(t *testing.T) {
	l := NewClientLimiter(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d should pass", i)
	}
	assert.False(t, l.Allow("10.0.0.1"), "burst exhausted")
}

func TestClientLimiterIsolatesProducers(t *testing.T) {
	l := NewClientLimiter(1, 1)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "a second producer has its own bucket")
}

func TestClientKeyStripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/telemetry/batch", nil)
	req.RemoteAddr = "10.0.0.7:52814"
	assert.Equal(t, "10.0.0.7", clientKey(req))

	req.Header.Set("X-Real-Ip", "203.0.113.4")
	assert.Equal(t, "203.0.113.4", clientKey(req))
}

func TestRateLimitMiddlewareRejectsWith429(t *testing.T) {
	handler := RateLimit(0.5, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/telemetry/batch", nil)
	req.Header.Set("X-Real-Ip", "10.0.0.9")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}
