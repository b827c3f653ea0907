package anomaly

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const baselineKeyPrefix = "anomaly:baseline:"

// BaselineStore persists baselines in Redis so a restarted worker starts
// with warm statistics instead of re-learning from scratch.
type BaselineStore struct {
	redis *redis.Client
}

// NewBaselineStore creates a store backed by the given client.
func NewBaselineStore(redisClient *redis.Client) *BaselineStore {
	return &BaselineStore{redis: redisClient}
}

func (s *BaselineStore) key(metricName string) string {
	return baselineKeyPrefix + metricName
}

// Save persists one baseline.
func (s *BaselineStore) Save(ctx context.Context, b Baseline) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("anomaly: marshal baseline: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(b.MetricName), data, 0).Err(); err != nil {
		return fmt.Errorf("anomaly: save baseline %s: %w", b.MetricName, err)
	}
	return nil
}

// SaveAll persists every baseline in the map.
func (s *BaselineStore) SaveAll(ctx context.Context, baselines map[string]Baseline) error {
	for _, b := range baselines {
		if err := s.Save(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// Load fetches one baseline. The second return is false when none is stored.
func (s *BaselineStore) Load(ctx context.Context, metricName string) (Baseline, bool, error) {
	data, err := s.redis.Get(ctx, s.key(metricName)).Bytes()
	if err == redis.Nil {
		return Baseline{}, false, nil
	}
	if err != nil {
		return Baseline{}, false, fmt.Errorf("anomaly: load baseline %s: %w", metricName, err)
	}

	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return Baseline{}, false, fmt.Errorf("anomaly: unmarshal baseline %s: %w", metricName, err)
	}
	return b, true, nil
}

// LoadAll fetches every stored baseline, keyed by metric name.
func (s *BaselineStore) LoadAll(ctx context.Context) (map[string]Baseline, error) {
	keys, err := s.redis.Keys(ctx, baselineKeyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("anomaly: list baselines: %w", err)
	}

	baselines := make(map[string]Baseline, len(keys))
	for _, key := range keys {
		metricName := key[len(baselineKeyPrefix):]
		b, ok, err := s.Load(ctx, metricName)
		if err != nil {
			return nil, err
		}
		if ok {
			baselines[metricName] = b
		}
	}
	return baselines, nil
}

// Seed installs every stored baseline into the detector.
func (s *BaselineStore) Seed(ctx context.Context, detector *Detector) error {
	baselines, err := s.LoadAll(ctx)
	if err != nil {
		return err
	}
	for _, b := range baselines {
		detector.SetBaseline(b)
	}
	return nil
}
