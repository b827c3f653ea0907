package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/guardianai/llmguard/internal/telemetry"
	"github.com/guardianai/llmguard/pkg/logging"
)

// Publisher enqueues telemetry records for asynchronous processing.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("pipeline: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// Enqueue publishes one record.
func (p *Publisher) Enqueue(ctx context.Context, record telemetry.Record) error {
	if ctx == nil {
		ctx = context.Background()
	}

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("pipeline: failed to encode record: %w", err)
	}

	if err := p.queue.Send(ctx, string(body)); err != nil {
		return fmt.Errorf("pipeline: failed to enqueue record: %w", err)
	}

	p.logger.Debug("telemetry record enqueued", "trace_id", record.TraceID, "model", record.Model)
	return nil
}

// EnqueueBatch publishes up to a collector batch of records, stopping at
// the first send failure.
func (p *Publisher) EnqueueBatch(ctx context.Context, records []telemetry.Record) error {
	for i, record := range records {
		if err := p.Enqueue(ctx, record); err != nil {
			return fmt.Errorf("pipeline: batch enqueue stopped at record %d: %w", i, err)
		}
	}
	return nil
}
