// Package pipeline runs the server-side telemetry analysis: queue ingest,
// per-record orchestration of the detectors, and alert generation.
package pipeline

import "context"

// queueClient abstracts the transport between the ingest edge and the
// processing workers. SQS in deployment, an in-memory channel in tests and
// single-process mode.
type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}
