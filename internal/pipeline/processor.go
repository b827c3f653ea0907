package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/guardianai/llmguard/internal/alerts"
	"github.com/guardianai/llmguard/internal/analysis"
	"github.com/guardianai/llmguard/internal/anomaly"
	"github.com/guardianai/llmguard/internal/detect"
	"github.com/guardianai/llmguard/internal/observability/metrics"
	"github.com/guardianai/llmguard/internal/quality"
	"github.com/guardianai/llmguard/internal/telemetry"
	"github.com/guardianai/llmguard/pkg/logging"
)

var pipelineTracer = otel.Tracer("llmguard.internal.pipeline")

// collaboratorThreatConfidence is the minimum confidence a generated threat
// judgement needs before it is flagged.
const collaboratorThreatConfidence = 0.75

// AnalysisCollaborator supplies generated second-opinion judgements. A
// judgement whose second return is true supersedes the heuristic result for
// that record; otherwise the heuristic path stays authoritative.
type AnalysisCollaborator interface {
	AnalyzeQuality(ctx context.Context, prompt, response string) (analysis.QualityScore, bool)
	ClassifyThreat(ctx context.Context, text, textType string) (analysis.ThreatAnalysis, bool)
	DetectHallucination(ctx context.Context, prompt, response string) (analysis.HallucinationAnalysis, bool)
}

// ProcessingResult summarizes every analysis stage for one record. Quality
// is nil when the record carried no response text.
type ProcessingResult struct {
	TraceID         string            `json:"trace_id"`
	Threats         []detect.Threat   `json:"threats"`
	Anomalies       []anomaly.Anomaly `json:"anomalies"`
	Quality         *quality.Analysis `json:"quality,omitempty"`
	AlertsGenerated int               `json:"alerts_generated"`
	Duration        time.Duration     `json:"duration"`
	Timestamp       time.Time         `json:"timestamp"`
}

// Processor runs the full analysis pipeline over telemetry records: threat
// detection, anomaly checks, quality scoring, and alerting. Alert delivery
// failures are logged, never fatal; the record is always fully analyzed.
type Processor struct {
	threats    *detect.Detector
	anomalies  *anomaly.Detector
	quality    *quality.Analyzer
	alerts     *alerts.Manager
	dispatcher alerts.Dispatcher
	emailer    *alerts.EmailNotifier
	rates      *anomaly.RateTracker
	collab     AnalysisCollaborator
	metrics    *metrics.PipelineMetrics
	store      *RecordStore
	logger     *logging.Logger
}

// ProcessorOption customizes optional processor collaborators.
type ProcessorOption func(*Processor)

// WithDispatcher sets the outbound alert dispatcher.
func WithDispatcher(d alerts.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.dispatcher = d
	}
}

// WithEmailNotifier sets the email escalation channel for P1/P2 alerts.
func WithEmailNotifier(n *alerts.EmailNotifier) ProcessorOption {
	return func(p *Processor) {
		p.emailer = n
	}
}

// WithRateTracker sets the hourly request/token rate tracker.
func WithRateTracker(r *anomaly.RateTracker) ProcessorOption {
	return func(p *Processor) {
		p.rates = r
	}
}

// WithAnalysisCollaborator sets the generated second-opinion judge for
// quality and threat results.
func WithAnalysisCollaborator(c AnalysisCollaborator) ProcessorOption {
	return func(p *Processor) {
		p.collab = c
	}
}

// WithRecordStore persists processed records for the dashboard and webhook
// context lookups.
func WithRecordStore(s *RecordStore) ProcessorOption {
	return func(p *Processor) {
		p.store = s
	}
}

// WithPipelineMetrics sets the Prometheus metrics sink.
func WithPipelineMetrics(m *metrics.PipelineMetrics) ProcessorOption {
	return func(p *Processor) {
		p.metrics = m
	}
}

// NewProcessor wires the analysis stages together. Detectors, the quality
// analyzer, and the alert manager are required; the rest default to no-ops.
func NewProcessor(threatDetector *detect.Detector, anomalyDetector *anomaly.Detector, qualityAnalyzer *quality.Analyzer, alertManager *alerts.Manager, logger *logging.Logger, opts ...ProcessorOption) *Processor {
	if threatDetector == nil {
		panic("pipeline: threat detector cannot be nil")
	}
	if anomalyDetector == nil {
		panic("pipeline: anomaly detector cannot be nil")
	}
	if qualityAnalyzer == nil {
		panic("pipeline: quality analyzer cannot be nil")
	}
	if alertManager == nil {
		panic("pipeline: alert manager cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Processor{
		threats:   threatDetector,
		anomalies: anomalyDetector,
		quality:   qualityAnalyzer,
		alerts:    alertManager,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.dispatcher == nil {
		p.dispatcher = alerts.NewNopDispatcher(logger)
	}
	return p
}

// Process runs one record through every stage and returns the combined
// result. Stages run in a fixed order so anomaly baselines already include
// the current record by the time quality feeds its score back in.
func (p *Processor) Process(ctx context.Context, record telemetry.Record) ProcessingResult {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("llmguard.trace_id", record.TraceID),
		attribute.String("llmguard.model", record.Model),
	)

	started := time.Now()
	result := ProcessingResult{
		TraceID:   record.TraceID,
		Timestamp: started.UTC(),
	}

	result.Threats = p.checkThreats(ctx, record, &result)
	result.Anomalies = p.checkAnomalies(ctx, record, &result)

	if record.HasResponse() {
		p.checkQuality(ctx, record, &result)
	}

	result.Duration = time.Since(started)
	if p.store != nil {
		if err := p.store.Save(ctx, record, result); err != nil {
			p.logger.Error("pipeline: record persist failed", "trace_id", record.TraceID, "error", err)
		}
	}
	p.metrics.ObserveRecord(record.Model, record.Status)
	p.metrics.ObserveProcessingDuration(result.Duration.Seconds())

	span.SetAttributes(
		attribute.Int("llmguard.threats", len(result.Threats)),
		attribute.Int("llmguard.anomalies", len(result.Anomalies)),
		attribute.Int("llmguard.alerts", result.AlertsGenerated),
	)
	p.logger.Info("pipeline: record processed",
		"trace_id", record.TraceID,
		"model", record.Model,
		"threats", len(result.Threats),
		"anomalies", len(result.Anomalies),
		"alerts", result.AlertsGenerated,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result
}

func (p *Processor) checkThreats(ctx context.Context, record telemetry.Record, result *ProcessingResult) []detect.Threat {
	threats := p.threats.Analyze(record.Prompt, record.ResponseText, detect.Correlation{
		TraceID: record.TraceID,
		UserID:  record.UserID,
	})
	if p.collab != nil {
		if judged, ok := p.judgeThreats(ctx, record); ok {
			threats = judged
		}
	}
	for _, t := range threats {
		p.metrics.ObserveThreat(string(t.Type), string(t.Severity))
		if t.Severity == telemetry.SeverityHigh || t.Severity == telemetry.SeverityCritical {
			p.raise(ctx, p.alerts.CreateThreatAlert(t), result)
		}
	}
	return threats
}

func (p *Processor) checkAnomalies(ctx context.Context, record telemetry.Record, result *ProcessingResult) []anomaly.Anomaly {
	samples := []struct {
		name  string
		value float64
	}{
		{"latency_ms", record.LatencyMS},
		{"input_tokens", float64(record.InputTokens)},
		{"output_tokens", float64(record.OutputTokens)},
		{"cost_usd", record.CostUSD},
	}

	var found []anomaly.Anomaly
	for _, s := range samples {
		p.anomalies.AddSample(s.name, s.value)
		found = append(found, p.anomalies.CheckValue(s.name, s.value, record.TraceID)...)
	}

	if p.rates != nil {
		p.rates.RecordRequest(record.TotalTokens())
		if a := p.anomalies.CheckHourlyTokenRate(p.rates.TokenRate(), record.TraceID); a != nil {
			found = append(found, *a)
		}
	}

	for _, a := range found {
		p.metrics.ObserveAnomaly(string(a.Type), string(a.Severity))
		if a.Severity == telemetry.SeverityHigh || a.Severity == telemetry.SeverityCritical {
			p.raise(ctx, p.alerts.CreateAnomalyAlert(a), result)
		}
	}
	return found
}

// checkQuality scores the response heuristically, lets the collaborator
// supersede the scores when its judgement parses, and alerts on failure.
func (p *Processor) checkQuality(ctx context.Context, record telemetry.Record, result *ProcessingResult) {
	qa := p.quality.Analyze(record.Prompt, record.ResponseText, record.TraceID)

	if p.collab != nil {
		if judged, ok := p.collab.AnalyzeQuality(ctx, record.Prompt, record.ResponseText); ok {
			qa.Metrics.CoherenceScore = judged.Coherence
			qa.Metrics.RelevanceScore = judged.Relevance
			qa.Metrics.CompletenessScore = judged.Completeness
			qa.Metrics.OverallScore = judged.OverallScore
			qa.Passed = judged.OverallScore >= qa.Threshold
			if !qa.Passed && judged.Explanation != "" {
				qa.Issues = append(qa.Issues, judged.Explanation)
			}
		}
		if h, ok := p.collab.DetectHallucination(ctx, record.Prompt, record.ResponseText); ok && h.ContainsHallucination {
			qa.Issues = append(qa.Issues, "Possible hallucination: "+h.Explanation)
		}
	}

	result.Quality = &qa
	p.metrics.ObserveQualityScore(qa.Metrics.OverallScore)

	// The overall score feeds the rolling baseline only. Failed checks
	// alert below; running the threshold check here too would
	// double-report every failing record.
	p.anomalies.AddSample("quality_score", qa.Metrics.OverallScore)

	if !qa.Passed {
		alert := p.alerts.CreateQualityAlert(qa.Metrics.OverallScore, qa.Threshold, qa.Issues, record.TraceID)
		p.raise(ctx, alert, result)
	}
}

// judgeThreats asks the collaborator for prompt and response verdicts. It
// reports false, keeping the heuristic findings, when any attempted
// classification fails to parse.
func (p *Processor) judgeThreats(ctx context.Context, record telemetry.Record) ([]detect.Threat, bool) {
	var threats []detect.Threat

	texts := []struct {
		source string
		text   string
	}{
		{"prompt", record.Prompt},
		{"response", record.ResponseText},
	}
	for _, t := range texts {
		if t.text == "" {
			continue
		}
		verdict, ok := p.collab.ClassifyThreat(ctx, t.text, t.source)
		if !ok {
			return nil, false
		}
		if !verdict.IsThreat || verdict.Confidence < collaboratorThreatConfidence {
			continue
		}
		threats = append(threats, detect.Threat{
			Type:        detect.ThreatType(verdict.ThreatType),
			Severity:    telemetry.Severity(verdict.Severity),
			Confidence:  verdict.Confidence,
			Description: verdict.Explanation,
			Evidence:    t.source,
			Timestamp:   time.Now().UTC(),
			TraceID:     record.TraceID,
			UserID:      record.UserID,
		})
	}
	return threats, true
}

// raise counts the alert and pushes it to the external channels. Delivery
// failures only log; the stored alert already exists for the API to serve.
func (p *Processor) raise(ctx context.Context, alert alerts.Alert, result *ProcessingResult) {
	result.AlertsGenerated++
	p.metrics.ObserveAlert(string(alert.Priority))

	if err := p.dispatcher.Dispatch(ctx, alert); err != nil {
		p.logger.Error("pipeline: alert dispatch failed", "alert_id", alert.AlertID, "error", err)
	}
	if err := p.emailer.Notify(ctx, alert); err != nil {
		p.logger.Error("pipeline: alert email failed", "alert_id", alert.AlertID, "error", err)
	}
}
