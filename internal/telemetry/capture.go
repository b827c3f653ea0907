package telemetry

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/guardianai/llmguard/pkg/logging"
)

// Enqueuer accepts finished records for delivery. The transmitter implements
// it; tests substitute a recorder.
type Enqueuer interface {
	Enqueue(record Record) bool
}

// Capture builds telemetry records around instrumented LLM calls. It replaces
// implicit call interception with explicit before/after hooks: Start before
// the call, RecordResponse/RecordError after, Finish on every exit path.
type Capture struct {
	serviceName  string
	environment  string
	defaultModel string
	sink         Enqueuer
	logger       *logging.Logger
}

// NewCapture creates a capture front-end for one instrumented service.
func NewCapture(serviceName, environment, defaultModel string, sink Enqueuer, logger *logging.Logger) *Capture {
	if serviceName == "" {
		serviceName = "llmguard-monitored-app"
	}
	if environment == "" {
		environment = "development"
	}
	if defaultModel == "" {
		defaultModel = "gemini-pro"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Capture{
		serviceName:  serviceName,
		environment:  environment,
		defaultModel: defaultModel,
		sink:         sink,
		logger:       logger,
	}
}

// CallOptions describe the request side of one LLM call.
type CallOptions struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
	UserID      string
	SessionID   string
	Tags        map[string]string
}

// Span tracks one in-flight call from Start to Finish.
type Span struct {
	capture  *Capture
	record   Record
	started  time.Time
	finished bool
}

// Start opens a span for an LLM call. Call it immediately before invoking the
// model.
func (c *Capture) Start(opts CallOptions) *Span {
	model := opts.Model
	if model == "" {
		model = c.defaultModel
	}
	return &Span{
		capture: c,
		started: time.Now(),
		record: Record{
			TraceID:     NewTraceID(),
			SpanID:      NewSpanID(),
			Timestamp:   time.Now().UTC(),
			Prompt:      opts.Prompt,
			Model:       model,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
			UserID:      opts.UserID,
			SessionID:   opts.SessionID,
			ServiceName: c.serviceName,
			Environment: c.environment,
			Status:      "success",
			Tags:        opts.Tags,
		},
	}
}

// TraceID returns the span's trace identifier for caller-side correlation.
func (s *Span) TraceID() string { return s.record.TraceID }

// RecordResponse attaches the model response. Accepts any Response variant;
// the adapter normalizes it so downstream code sees one canonical shape.
func (s *Span) RecordResponse(resp Response) {
	text, inputTokens, outputTokens, finishReason := normalize(resp, s.record.Prompt)
	s.record.ResponseText = text
	s.record.InputTokens = inputTokens
	s.record.OutputTokens = outputTokens
	s.record.FinishReason = finishReason

	cost, err := CalculateCost(inputTokens, outputTokens, s.record.Model)
	if err != nil {
		s.capture.logger.Warn("capture: cost calculation rejected", "trace_id", s.record.TraceID, "error", err)
		cost = 0
	}
	s.record.CostUSD = cost
}

// RecordError marks the call failed. The record keeps request data so
// error-rate anomalies can still be tracked.
func (s *Span) RecordError(err error) {
	s.record.Status = "error"
	if err != nil {
		s.record.Error = err.Error()
	}
}

// Finish closes the span, stamps latency, and hands the record to the sink.
// Safe to defer: it runs once and never blocks or fails the caller.
func (s *Span) Finish() Record {
	if s.finished {
		return s.record
	}
	s.finished = true
	s.record.LatencyMS = float64(time.Since(s.started)) / float64(time.Millisecond)

	if s.capture.sink != nil {
		if !s.capture.sink.Enqueue(s.record) {
			s.capture.logger.Warn("capture: telemetry dropped", "trace_id", s.record.TraceID)
		}
	}
	return s.record
}

// NewTraceID returns a fresh trace identifier.
func NewTraceID() string {
	return "trace_" + uuidHex(16)
}

// NewSpanID returns a fresh span identifier.
func NewSpanID() string {
	return "span_" + uuidHex(8)
}

func uuidHex(n int) string {
	hex := fmt.Sprintf("%x", [16]byte(uuid.New()))
	return hex[:n]
}
