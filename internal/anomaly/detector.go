// Package anomaly detects statistical and absolute-threshold anomalies in
// model usage metrics using rolling per-metric baselines.
package anomaly

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/guardianai/llmguard/internal/telemetry"
)

// AnomalyType labels what kind of deviation was observed.
type AnomalyType string

const (
	CostSpike          AnomalyType = "cost_spike"
	LatencySpike       AnomalyType = "latency_spike"
	TokenSpike         AnomalyType = "token_spike"
	ErrorRateSpike     AnomalyType = "error_rate_spike"
	RequestRateSpike   AnomalyType = "request_rate_spike"
	QualityDegradation AnomalyType = "quality_degradation"
)

// Absolute detection thresholds. These apply regardless of baseline state.
const (
	HourlyTokenThreshold  = 400000
	QualityThreshold      = 0.7
	LatencyThresholdMS    = 5000
	ErrorRateThresholdPct = 5.0
)

// Baseline holds the rolling statistics for one metric.
type Baseline struct {
	MetricName  string    `json:"metric_name"`
	Mean        float64   `json:"mean"`
	StdDev      float64   `json:"std_dev"`
	MinValue    float64   `json:"min_value"`
	MaxValue    float64   `json:"max_value"`
	SampleCount int       `json:"sample_count"`
	LastUpdated time.Time `json:"last_updated"`
}

// Anomaly is one detected deviation.
type Anomaly struct {
	Type          AnomalyType        `json:"anomaly_type"`
	Severity      telemetry.Severity `json:"severity"`
	CurrentValue  float64            `json:"current_value"`
	ExpectedValue float64            `json:"expected_value"`
	Deviation     float64            `json:"deviation"`
	Description   string             `json:"description"`
	Timestamp     time.Time          `json:"timestamp"`
	TraceID       string             `json:"trace_id,omitempty"`
}

// Detector maintains rolling windows per metric and checks new values
// against both z-score baselines and absolute thresholds. Safe for
// concurrent use.
type Detector struct {
	windowSize      int
	zScoreThreshold float64
	minSamples      int

	mu        sync.Mutex
	windows   map[string]*window
	baselines map[string]Baseline
}

// Option configures a Detector.
type Option func(*Detector)

// WithWindowSize sets the rolling window capacity per metric.
func WithWindowSize(n int) Option {
	return func(d *Detector) { d.windowSize = n }
}

// WithZScoreThreshold sets the z-score above which a value is anomalous.
func WithZScoreThreshold(z float64) Option {
	return func(d *Detector) { d.zScoreThreshold = z }
}

// WithMinSamples sets how many samples a metric needs before statistical
// detection activates.
func WithMinSamples(n int) Option {
	return func(d *Detector) { d.minSamples = n }
}

// NewDetector creates a detector with a 1000-sample window, z-score
// threshold 3.0, and a 30-sample warmup.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		windowSize:      1000,
		zScoreThreshold: 3.0,
		minSamples:      30,
		windows:         make(map[string]*window),
		baselines:       make(map[string]Baseline),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AddSample appends a value to the metric's rolling window and refreshes
// its baseline once the warmup count is reached.
func (d *Detector) AddSample(metricName string, value float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, ok := d.windows[metricName]
	if !ok {
		w = newWindow(d.windowSize)
		d.windows[metricName] = w
	}
	w.push(value)

	if w.len() < d.minSamples {
		return
	}
	d.baselines[metricName] = w.baseline(metricName)
}

// CheckValue tests a value against the metric's baseline (z-score) and the
// absolute thresholds. A single value can produce both kinds of anomaly.
func (d *Detector) CheckValue(metricName string, value float64, traceID string) []Anomaly {
	d.mu.Lock()
	baseline, hasBaseline := d.baselines[metricName]
	zThreshold := d.zScoreThreshold
	d.mu.Unlock()

	var anomalies []Anomaly

	if hasBaseline && baseline.StdDev > 0 {
		zScore := math.Abs(value-baseline.Mean) / baseline.StdDev
		if zScore > zThreshold {
			anomalies = append(anomalies, Anomaly{
				Type:          anomalyTypeFor(metricName),
				Severity:      severityFromZScore(zScore),
				CurrentValue:  value,
				ExpectedValue: baseline.Mean,
				Deviation:     zScore,
				Description:   fmt.Sprintf("%s is %.1f standard deviations from mean", metricName, zScore),
				Timestamp:     time.Now().UTC(),
				TraceID:       traceID,
			})
		}
	}

	anomalies = append(anomalies, checkAbsoluteThresholds(metricName, value, traceID)...)
	return anomalies
}

// CheckHourlyTokenRate reports a critical token spike when the hourly token
// rate exceeds the fixed budget, nil otherwise.
func (d *Detector) CheckHourlyTokenRate(tokensPerHour float64, traceID string) *Anomaly {
	if tokensPerHour <= HourlyTokenThreshold {
		return nil
	}
	return &Anomaly{
		Type:          TokenSpike,
		Severity:      telemetry.SeverityCritical,
		CurrentValue:  tokensPerHour,
		ExpectedValue: HourlyTokenThreshold,
		Deviation:     tokensPerHour / HourlyTokenThreshold,
		Description:   fmt.Sprintf("Token rate %.0f/hr exceeds threshold %d/hr", tokensPerHour, HourlyTokenThreshold),
		Timestamp:     time.Now().UTC(),
		TraceID:       traceID,
	}
}

// GetBaseline returns the current baseline for a metric, if one exists.
func (d *Detector) GetBaseline(metricName string) (Baseline, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.baselines[metricName]
	return b, ok
}

// Baselines returns a copy of every current baseline, keyed by metric name.
func (d *Detector) Baselines() map[string]Baseline {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]Baseline, len(d.baselines))
	for name, b := range d.baselines {
		out[name] = b
	}
	return out
}

// SetBaseline installs a baseline directly, e.g. one loaded from storage.
// Subsequent samples recompute it from the local window.
func (d *Detector) SetBaseline(b Baseline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.baselines[b.MetricName] = b
}

// Clear drops all windows and baselines.
func (d *Detector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.windows = make(map[string]*window)
	d.baselines = make(map[string]Baseline)
}

func severityFromZScore(z float64) telemetry.Severity {
	switch {
	case z >= 5.0:
		return telemetry.SeverityCritical
	case z >= 4.0:
		return telemetry.SeverityHigh
	case z >= 3.5:
		return telemetry.SeverityMedium
	default:
		return telemetry.SeverityLow
	}
}

var metricAnomalyTypes = map[string]AnomalyType{
	"cost_usd":      CostSpike,
	"latency_ms":    LatencySpike,
	"input_tokens":  TokenSpike,
	"output_tokens": TokenSpike,
	"total_tokens":  TokenSpike,
	"error_rate":    ErrorRateSpike,
	"request_rate":  RequestRateSpike,
	"quality_score": QualityDegradation,
}

func anomalyTypeFor(metricName string) AnomalyType {
	if t, ok := metricAnomalyTypes[metricName]; ok {
		return t
	}
	return CostSpike
}

func checkAbsoluteThresholds(metricName string, value float64, traceID string) []Anomaly {
	var anomalies []Anomaly
	now := time.Now().UTC()

	if metricName == "latency_ms" && value > LatencyThresholdMS {
		anomalies = append(anomalies, Anomaly{
			Type:          LatencySpike,
			Severity:      telemetry.SeverityHigh,
			CurrentValue:  value,
			ExpectedValue: LatencyThresholdMS,
			Deviation:     value / LatencyThresholdMS,
			Description:   fmt.Sprintf("Latency %.0fms exceeds threshold %dms", value, LatencyThresholdMS),
			Timestamp:     now,
			TraceID:       traceID,
		})
	}

	if metricName == "quality_score" && value < QualityThreshold {
		anomalies = append(anomalies, Anomaly{
			Type:          QualityDegradation,
			Severity:      telemetry.SeverityHigh,
			CurrentValue:  value,
			ExpectedValue: QualityThreshold,
			Deviation:     QualityThreshold - value,
			Description:   fmt.Sprintf("Quality score %.2f below threshold %.1f", value, QualityThreshold),
			Timestamp:     now,
			TraceID:       traceID,
		})
	}

	if metricName == "error_rate" && value > ErrorRateThresholdPct {
		anomalies = append(anomalies, Anomaly{
			Type:          ErrorRateSpike,
			Severity:      telemetry.SeverityCritical,
			CurrentValue:  value,
			ExpectedValue: ErrorRateThresholdPct,
			Deviation:     value / ErrorRateThresholdPct,
			Description:   fmt.Sprintf("Error rate %.1f%% exceeds threshold %.1f%%", value, ErrorRateThresholdPct),
			Timestamp:     now,
			TraceID:       traceID,
		})
	}

	return anomalies
}

// window is a fixed-capacity ring buffer of samples. Statistics are a full
// pass over the window every time; at the default capacity this is cheap
// and keeps the numbers exact as old samples fall out.
type window struct {
	values []float64
	next   int
	full   bool
}

func newWindow(capacity int) *window {
	return &window{values: make([]float64, 0, capacity)}
}

func (w *window) push(v float64) {
	if !w.full && len(w.values) < cap(w.values) {
		w.values = append(w.values, v)
		return
	}
	w.full = true
	w.values[w.next] = v
	w.next = (w.next + 1) % len(w.values)
}

func (w *window) len() int { return len(w.values) }

func (w *window) baseline(metricName string) Baseline {
	n := len(w.values)
	sum := 0.0
	minV := w.values[0]
	maxV := w.values[0]
	for _, v := range w.values {
		sum += v
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	mean := sum / float64(n)

	variance := 0.0
	for _, v := range w.values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(n)

	stdDev := 0.0
	if variance > 0 {
		stdDev = math.Sqrt(variance)
	}

	return Baseline{
		MetricName:  metricName,
		Mean:        mean,
		StdDev:      stdDev,
		MinValue:    minV,
		MaxValue:    maxV,
		SampleCount: n,
		LastUpdated: time.Now().UTC(),
	}
}
