package anomaly

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BaselineStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewBaselineStore(client)
}

func TestBaselineStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := Baseline{
		MetricName:  "latency_ms",
		Mean:        200.5,
		StdDev:      12.25,
		MinValue:    150,
		MaxValue:    900,
		SampleCount: 1000,
		LastUpdated: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Save(ctx, b))

	got, ok, err := store.Load(ctx, "latency_ms")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b, got)
}

func TestBaselineStoreLoadMissing(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.Load(context.Background(), "cost_usd")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBaselineStoreLoadAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	baselines := map[string]Baseline{
		"cost_usd":   {MetricName: "cost_usd", Mean: 0.05, SampleCount: 40},
		"latency_ms": {MetricName: "latency_ms", Mean: 180, SampleCount: 40},
	}
	require.NoError(t, store.SaveAll(ctx, baselines))

	got, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0.05, got["cost_usd"].Mean)
	assert.Equal(t, 180.0, got["latency_ms"].Mean)
}

func TestBaselineStoreSeedsDetector(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, Baseline{
		MetricName:  "latency_ms",
		Mean:        200,
		StdDev:      10,
		SampleCount: 500,
	}))

	detector := NewDetector()
	require.NoError(t, store.Seed(ctx, detector))

	// The seeded baseline is live without any local warmup samples.
	anomalies := detector.CheckValue("latency_ms", 300.0, "")
	require.Len(t, anomalies, 1)
	assert.InDelta(t, 10.0, anomalies[0].Deviation, 1e-9)
}
