// Package webhooks turns inbound alerting-platform callbacks into incidents
// and triggers the automatic remediations tied to each threat type.
package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "remediation:rate_limit:"

// RateLimit is one user-scoped throttle written by auto-remediation.
type RateLimit struct {
	UserID        string    `json:"user_id"`
	Limit         int       `json:"limit"`
	WindowSeconds int       `json:"window_seconds"`
	Reason        string    `json:"reason"`
	AppliedAt     time.Time `json:"applied_at"`
}

// RateLimitStore persists remediation rate limits in Redis. Entries expire
// with their window so a stale limit never outlives the incident response.
type RateLimitStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRateLimitStore creates a store around an existing Redis client.
func NewRateLimitStore(client *redis.Client, ttl time.Duration) *RateLimitStore {
	if client == nil {
		panic("webhooks: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RateLimitStore{client: client, ttl: ttl}
}

// Apply writes a rate limit for the user.
func (s *RateLimitStore) Apply(ctx context.Context, limit RateLimit) error {
	if limit.AppliedAt.IsZero() {
		limit.AppliedAt = time.Now().UTC()
	}
	data, err := json.Marshal(limit)
	if err != nil {
		return fmt.Errorf("webhooks: failed to marshal rate limit: %w", err)
	}
	if err := s.client.Set(ctx, rateLimitKeyPrefix+limit.UserID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("webhooks: failed to store rate limit: %w", err)
	}
	return nil
}

// Get returns the active rate limit for a user, if any.
func (s *RateLimitStore) Get(ctx context.Context, userID string) (*RateLimit, error) {
	data, err := s.client.Get(ctx, rateLimitKeyPrefix+userID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("webhooks: failed to load rate limit: %w", err)
	}
	var limit RateLimit
	if err := json.Unmarshal(data, &limit); err != nil {
		return nil, fmt.Errorf("webhooks: failed to unmarshal rate limit: %w", err)
	}
	return &limit, nil
}
