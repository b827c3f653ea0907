package transmit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardianai/llmguard/internal/telemetry"
	"github.com/guardianai/llmguard/pkg/logging"
)

type recordingSender struct {
	mu      sync.Mutex
	batches [][]telemetry.Record
	failTo  int // fail attempts up to this call count
	calls   int
}

func (s *recordingSender) SendBatch(_ context.Context, records []telemetry.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failTo {
		return errors.New("collector unavailable")
	}
	batch := append([]telemetry.Record(nil), records...)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *recordingSender) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make([]int, len(s.batches))
	for i, b := range s.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func (s *recordingSender) allRecords() []telemetry.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []telemetry.Record
	for _, b := range s.batches {
		all = append(all, b...)
	}
	return all
}

func TestTransmitterBatchingPreservesOrder(t *testing.T) {
	sender := &recordingSender{}
	tx := NewTransmitter(sender, logging.Default())

	for i := 0; i < 25; i++ {
		require.True(t, tx.Enqueue(telemetry.Record{TraceID: fmt.Sprintf("trace-%02d", i)}))
	}
	tx.Flush(context.Background())

	assert.Equal(t, []int{10, 10, 5}, sender.batchSizes())

	all := sender.allRecords()
	require.Len(t, all, 25)
	for i, record := range all {
		assert.Equal(t, fmt.Sprintf("trace-%02d", i), record.TraceID)
	}

	stats := tx.Stats()
	assert.Equal(t, int64(25), stats.Enqueued)
	assert.Equal(t, int64(25), stats.Sent)
	assert.Zero(t, stats.Failed)
	assert.Zero(t, stats.Dropped)
}

func TestTransmitterBatchSizeClamped(t *testing.T) {
	sender := &recordingSender{}
	tx := NewTransmitter(sender, logging.Default(), WithBatchSize(50))

	for i := 0; i < 12; i++ {
		tx.Enqueue(telemetry.Record{TraceID: telemetry.NewTraceID()})
	}
	tx.Flush(context.Background())

	assert.Equal(t, []int{10, 2}, sender.batchSizes())
}

func TestTransmitterDropsOnOverflow(t *testing.T) {
	sender := &recordingSender{}
	tx := NewTransmitter(sender, logging.Default(), WithQueueCapacity(2))

	assert.True(t, tx.Enqueue(telemetry.Record{TraceID: "a"}))
	assert.True(t, tx.Enqueue(telemetry.Record{TraceID: "b"}))
	assert.False(t, tx.Enqueue(telemetry.Record{TraceID: "c"}), "full queue must drop, not block")

	stats := tx.Stats()
	assert.Equal(t, int64(2), stats.Enqueued)
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Equal(t, 2, tx.QueueDepth())
}

func TestTransmitterRetriesThenSucceeds(t *testing.T) {
	sender := &recordingSender{failTo: 2}
	tx := NewTransmitter(sender, logging.Default(), WithRetryDelay(0))

	tx.Enqueue(telemetry.Record{TraceID: "retry-me"})
	tx.Flush(context.Background())

	assert.Equal(t, []int{1}, sender.batchSizes())
	stats := tx.Stats()
	assert.Equal(t, int64(1), stats.Sent)
	assert.Zero(t, stats.Failed)
}

func TestTransmitterAbandonsAfterRetries(t *testing.T) {
	sender := &recordingSender{failTo: 1 << 30}
	tx := NewTransmitter(sender, logging.Default(), WithRetryDelay(0))

	tx.Enqueue(telemetry.Record{TraceID: "doomed-1"})
	tx.Enqueue(telemetry.Record{TraceID: "doomed-2"})
	tx.Flush(context.Background())

	stats := tx.Stats()
	assert.Zero(t, stats.Sent)
	assert.Equal(t, int64(2), stats.Failed)
	assert.Zero(t, tx.QueueDepth(), "failed records are never re-queued")
}

func TestTransmitterStopFlushesRemaining(t *testing.T) {
	sender := &recordingSender{}
	tx := NewTransmitter(sender, logging.Default(), WithFlushInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tx.Start(ctx)

	for i := 0; i < 7; i++ {
		tx.Enqueue(telemetry.Record{TraceID: telemetry.NewTraceID()})
	}
	tx.Stop(true)

	assert.Equal(t, int64(7), tx.Stats().Sent)
	assert.Zero(t, tx.QueueDepth())
}

func TestTransmitterBackgroundFlush(t *testing.T) {
	sender := &recordingSender{}
	tx := NewTransmitter(sender, logging.Default(), WithFlushInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tx.Start(ctx)
	defer tx.Stop(false)

	tx.Enqueue(telemetry.Record{TraceID: "background"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tx.Stats().Sent == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("background flush never delivered the record")
}
