package telemetry

import (
	"time"
)

// Severity ranks a finding. The scale is shared by threat detection, anomaly
// detection, and alerting.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Record is one captured LLM call: request parameters, response usage, and
// derived cost. Records are immutable once built by the capture layer.
type Record struct {
	TraceID      string            `json:"trace_id"`
	SpanID       string            `json:"span_id"`
	Timestamp    time.Time         `json:"timestamp"`
	Prompt       string            `json:"prompt"`
	Model        string            `json:"model"`
	Temperature  float64           `json:"temperature"`
	MaxTokens    int               `json:"max_tokens,omitempty"`
	UserID       string            `json:"user_id,omitempty"`
	SessionID    string            `json:"session_id,omitempty"`
	ServiceName  string            `json:"service_name"`
	Environment  string            `json:"environment"`
	ResponseText string            `json:"response_text,omitempty"`
	InputTokens  int               `json:"input_tokens"`
	OutputTokens int               `json:"output_tokens"`
	LatencyMS    float64           `json:"latency_ms"`
	CostUSD      float64           `json:"cost_usd"`
	FinishReason string            `json:"finish_reason,omitempty"`
	Status       string            `json:"status"`
	Error        string            `json:"error,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// HasResponse reports whether the record carries a model response. Records
// captured for failed or capture-only calls have none, and quality analysis
// must be skipped for them rather than scored zero.
func (r *Record) HasResponse() bool {
	return r.ResponseText != ""
}

// TotalTokens returns combined input and output token usage.
func (r *Record) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Response is the closed set of shapes an instrumented call site may hand to
// the capture layer. The adapter in capture.go normalizes every variant into
// the one canonical Record shape before anything downstream sees it.
type Response interface {
	isResponse()
}

// PlainText is a bare response string with no usage metadata. Token counts
// are estimated from text length.
type PlainText string

func (PlainText) isResponse() {}

// StructuredUsage is a response carrying exact token usage from the provider.
type StructuredUsage struct {
	Text         string
	InputTokens  int
	OutputTokens int
	FinishReason string
}

func (StructuredUsage) isResponse() {}

// estimatedCharsPerToken approximates token counts when the provider does not
// report usage.
const estimatedCharsPerToken = 4

// normalize collapses a Response variant into text plus token counts.
func normalize(resp Response, prompt string) (text string, inputTokens, outputTokens int, finishReason string) {
	switch v := resp.(type) {
	case PlainText:
		text = string(v)
		inputTokens = len(prompt) / estimatedCharsPerToken
		outputTokens = len(text) / estimatedCharsPerToken
	case StructuredUsage:
		text = v.Text
		inputTokens = v.InputTokens
		outputTokens = v.OutputTokens
		finishReason = v.FinishReason
	}
	return text, inputTokens, outputTokens, finishReason
}
