package transmit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guardianai/llmguard/internal/observability/metrics"
	"github.com/guardianai/llmguard/internal/telemetry"
	"github.com/guardianai/llmguard/pkg/logging"
)

const (
	defaultQueueCapacity = 1000
	defaultFlushInterval = 5 * time.Second
	defaultBatchSize     = 10
	// maxBatchSize is the collector's hard ceiling; larger configured sizes
	// are clamped silently.
	maxBatchSize = 10
	// maxItemAge is the delivery-latency contract. Older items are logged
	// as a violation but still sent.
	maxItemAge = time.Second

	defaultSendAttempts = 3
	defaultRetryDelay   = time.Second
)

type queuedItem struct {
	record     telemetry.Record
	enqueuedAt time.Time
}

// Stats is a point-in-time snapshot of transmitter counters.
type Stats struct {
	Enqueued int64 `json:"enqueued"`
	Sent     int64 `json:"sent"`
	Failed   int64 `json:"failed"`
	Dropped  int64 `json:"dropped"`
}

// Transmitter queues records from instrumented callers and ships them to
// the collector in batches. Enqueue is non-blocking; a full queue drops the
// record. Delivery is at-most-once: retry-exhausted batches are counted as
// failed and never re-queued.
type Transmitter struct {
	sender        BatchSender
	queue         chan queuedItem
	flushInterval time.Duration
	batchSize     int
	sendAttempts  int
	retryDelay    time.Duration
	metrics       *metrics.TransmitMetrics
	logger        *logging.Logger

	enqueued atomic.Int64
	sent     atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64

	stop chan struct{}
	wg   sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// TransmitterOption customizes transmitter behavior.
type TransmitterOption func(*Transmitter)

// WithQueueCapacity sets the bounded queue size.
func WithQueueCapacity(n int) TransmitterOption {
	return func(t *Transmitter) {
		if n > 0 {
			t.queue = make(chan queuedItem, n)
		}
	}
}

// WithFlushInterval sets the background flush cadence.
func WithFlushInterval(d time.Duration) TransmitterOption {
	return func(t *Transmitter) {
		if d > 0 {
			t.flushInterval = d
		}
	}
}

// WithBatchSize sets the per-request batch size, clamped to the collector
// ceiling.
func WithBatchSize(n int) TransmitterOption {
	return func(t *Transmitter) {
		if n <= 0 {
			return
		}
		if n > maxBatchSize {
			n = maxBatchSize
		}
		t.batchSize = n
	}
}

// WithSendAttempts sets how many times a batch is attempted before its
// records are dropped.
func WithSendAttempts(n int) TransmitterOption {
	return func(t *Transmitter) {
		if n > 0 {
			t.sendAttempts = n
		}
	}
}

// WithRetryDelay sets the inter-attempt delay for failed batches.
func WithRetryDelay(d time.Duration) TransmitterOption {
	return func(t *Transmitter) {
		if d >= 0 {
			t.retryDelay = d
		}
	}
}

// WithTransmitMetrics sets the Prometheus metrics sink.
func WithTransmitMetrics(m *metrics.TransmitMetrics) TransmitterOption {
	return func(t *Transmitter) {
		t.metrics = m
	}
}

// NewTransmitter creates a transmitter around a batch sender. Call Start to
// launch the background flush loop.
func NewTransmitter(sender BatchSender, logger *logging.Logger, opts ...TransmitterOption) *Transmitter {
	if sender == nil {
		panic("transmit: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	t := &Transmitter{
		sender:        sender,
		queue:         make(chan queuedItem, defaultQueueCapacity),
		flushInterval: defaultFlushInterval,
		batchSize:     defaultBatchSize,
		sendAttempts:  defaultSendAttempts,
		retryDelay:    defaultRetryDelay,
		logger:        logger,
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Enqueue attempts a non-blocking push. It reports false when the queue is
// full and the record was dropped; it never blocks the instrumented caller.
func (t *Transmitter) Enqueue(record telemetry.Record) bool {
	item := queuedItem{record: record, enqueuedAt: time.Now()}
	select {
	case t.queue <- item:
		t.enqueued.Add(1)
		t.metrics.ObserveEnqueued()
		t.metrics.SetQueueDepth(len(t.queue))
		return true
	default:
		t.dropped.Add(1)
		t.metrics.ObserveDropped()
		t.logger.Warn("transmit queue full, record dropped", "trace_id", record.TraceID)
		return false
	}
}

// Start launches the background flush loop.
func (t *Transmitter) Start(ctx context.Context) {
	t.startOnce.Do(func() {
		t.wg.Add(1)
		go t.run(ctx)
	})
}

// Stop halts the background loop. When flush is true it performs one final
// synchronous drain so nothing already queued is silently lost.
func (t *Transmitter) Stop(flush bool) {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
	t.wg.Wait()
	if flush {
		t.Flush(context.Background())
	}
}

// Flush synchronously drains everything currently queued.
func (t *Transmitter) Flush(ctx context.Context) {
	for {
		batch := t.collectBatch()
		if len(batch) == 0 {
			return
		}
		t.sendBatch(ctx, batch)
	}
}

// Stats returns a snapshot of the transmitter counters.
func (t *Transmitter) Stats() Stats {
	return Stats{
		Enqueued: t.enqueued.Load(),
		Sent:     t.sent.Load(),
		Failed:   t.failed.Load(),
		Dropped:  t.dropped.Load(),
	}
}

// QueueDepth returns the number of records currently queued.
func (t *Transmitter) QueueDepth() int {
	return len(t.queue)
}

func (t *Transmitter) run(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Flush(ctx)
		}
	}
}

func (t *Transmitter) collectBatch() []queuedItem {
	batch := make([]queuedItem, 0, t.batchSize)
	for len(batch) < t.batchSize {
		select {
		case item := <-t.queue:
			batch = append(batch, item)
		default:
			return batch
		}
	}
	return batch
}

func (t *Transmitter) sendBatch(ctx context.Context, batch []queuedItem) {
	records := make([]telemetry.Record, len(batch))
	now := time.Now()
	for i, item := range batch {
		records[i] = item.record
		if age := now.Sub(item.enqueuedAt); age > maxItemAge {
			t.logger.Warn("transmit latency contract violated",
				"trace_id", item.record.TraceID,
				"age_ms", age.Milliseconds(),
			)
		}
	}

	var err error
	for attempt := 1; attempt <= t.sendAttempts; attempt++ {
		err = t.sender.SendBatch(ctx, records)
		if err == nil {
			t.sent.Add(int64(len(records)))
			t.metrics.ObserveSent(len(records))
			t.metrics.SetQueueDepth(len(t.queue))
			return
		}
		t.logger.Warn("telemetry batch delivery failed",
			"attempt", attempt,
			"records", len(records),
			"error", err,
		)
		if attempt < t.sendAttempts {
			time.Sleep(t.retryDelay)
		}
	}

	// At-most-once: exhausted batches are counted, never re-queued.
	t.failed.Add(int64(len(records)))
	t.metrics.ObserveFailed(len(records))
	t.metrics.SetQueueDepth(len(t.queue))
	t.logger.Error("telemetry batch abandoned after retries",
		"records", len(records),
		"attempts", t.sendAttempts,
		"error", err,
	)
}
