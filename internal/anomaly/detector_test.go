package anomaly

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardianai/llmguard/internal/telemetry"
)

// seed fills a metric window with a tight cluster so the baseline has a
// small, known spread.
func seedMetric(d *Detector, metric string, n int) {
	for i := 0; i < n; i++ {
		// Alternate around 100 so std dev is nonzero.
		v := 98.0
		if i%2 == 0 {
			v = 102.0
		}
		d.AddSample(metric, v)
	}
}

func TestNoDetectionBeforeMinSamples(t *testing.T) {
	d := NewDetector(WithMinSamples(30))

	for i := 0; i < 29; i++ {
		d.AddSample("cost_usd", 1.0)
	}

	_, ok := d.GetBaseline("cost_usd")
	assert.False(t, ok, "baseline should not exist before warmup completes")

	// Statistical check yields nothing without a baseline. Absolute
	// thresholds do not apply to cost_usd.
	assert.Empty(t, d.CheckValue("cost_usd", 1e9, ""))

	d.AddSample("cost_usd", 1.0)
	_, ok = d.GetBaseline("cost_usd")
	assert.True(t, ok, "baseline should exist at exactly min samples")
}

func TestZScoreDetection(t *testing.T) {
	d := NewDetector()
	seedMetric(d, "cost_usd", 100)

	baseline, ok := d.GetBaseline("cost_usd")
	require.True(t, ok)
	require.Greater(t, baseline.StdDev, 0.0)

	// Value within the cluster: no anomaly.
	assert.Empty(t, d.CheckValue("cost_usd", 101.0, ""))

	// Value far outside: one anomaly typed by the metric name.
	anomalies := d.CheckValue("cost_usd", 1000.0, "trace-z")
	require.Len(t, anomalies, 1)
	assert.Equal(t, CostSpike, anomalies[0].Type)
	assert.Equal(t, telemetry.SeverityCritical, anomalies[0].Severity)
	assert.Equal(t, 1000.0, anomalies[0].CurrentValue)
	assert.InDelta(t, baseline.Mean, anomalies[0].ExpectedValue, 1e-9)
	assert.Greater(t, anomalies[0].Deviation, 3.0)
	assert.Equal(t, "trace-z", anomalies[0].TraceID)
}

func TestZScoreSeverityBands(t *testing.T) {
	tests := []struct {
		z    float64
		want telemetry.Severity
	}{
		{3.1, telemetry.SeverityLow},
		{3.5, telemetry.SeverityMedium},
		{4.0, telemetry.SeverityHigh},
		{4.9, telemetry.SeverityHigh},
		{5.0, telemetry.SeverityCritical},
		{7.2, telemetry.SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("z=%.1f", tt.z), func(t *testing.T) {
			assert.Equal(t, tt.want, severityFromZScore(tt.z))
		})
	}
}

func TestLatencyThresholdBoundary(t *testing.T) {
	d := NewDetector()

	// Exactly at the threshold: normal.
	assert.Empty(t, d.CheckValue("latency_ms", 5000.0, ""))

	// One past it: a high severity latency spike.
	anomalies := d.CheckValue("latency_ms", 5001.0, "")
	require.Len(t, anomalies, 1)
	assert.Equal(t, LatencySpike, anomalies[0].Type)
	assert.Equal(t, telemetry.SeverityHigh, anomalies[0].Severity)
	assert.Equal(t, 5000.0, anomalies[0].ExpectedValue)
}

func TestQualityThresholdBoundary(t *testing.T) {
	d := NewDetector()

	assert.Empty(t, d.CheckValue("quality_score", 0.7, ""))
	assert.Empty(t, d.CheckValue("quality_score", 0.85, ""))

	anomalies := d.CheckValue("quality_score", 0.699999, "")
	require.Len(t, anomalies, 1)
	assert.Equal(t, QualityDegradation, anomalies[0].Type)
	assert.Equal(t, telemetry.SeverityHigh, anomalies[0].Severity)
}

func TestErrorRateThreshold(t *testing.T) {
	d := NewDetector()

	assert.Empty(t, d.CheckValue("error_rate", 5.0, ""))

	anomalies := d.CheckValue("error_rate", 5.1, "")
	require.Len(t, anomalies, 1)
	assert.Equal(t, ErrorRateSpike, anomalies[0].Type)
	assert.Equal(t, telemetry.SeverityCritical, anomalies[0].Severity)
}

func TestZScoreAndThresholdBothFire(t *testing.T) {
	d := NewDetector()
	seedMetric(d, "latency_ms", 100)

	// 6000ms is both a statistical outlier and past the absolute limit.
	anomalies := d.CheckValue("latency_ms", 6000.0, "")
	require.Len(t, anomalies, 2)
	assert.Equal(t, LatencySpike, anomalies[0].Type)
	assert.Equal(t, LatencySpike, anomalies[1].Type)
}

func TestCheckHourlyTokenRate(t *testing.T) {
	d := NewDetector()

	assert.Nil(t, d.CheckHourlyTokenRate(400000, ""))

	a := d.CheckHourlyTokenRate(400001, "trace-t")
	require.NotNil(t, a)
	assert.Equal(t, TokenSpike, a.Type)
	assert.Equal(t, telemetry.SeverityCritical, a.Severity)
	assert.Equal(t, 400001.0, a.CurrentValue)
	assert.Equal(t, "trace-t", a.TraceID)
}

func TestAnomalyTypeMapping(t *testing.T) {
	tests := []struct {
		metric string
		want   AnomalyType
	}{
		{"cost_usd", CostSpike},
		{"latency_ms", LatencySpike},
		{"input_tokens", TokenSpike},
		{"output_tokens", TokenSpike},
		{"total_tokens", TokenSpike},
		{"error_rate", ErrorRateSpike},
		{"request_rate", RequestRateSpike},
		{"quality_score", QualityDegradation},
		{"something_else", CostSpike},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, anomalyTypeFor(tt.metric), tt.metric)
	}
}

func TestWindowEviction(t *testing.T) {
	d := NewDetector(WithWindowSize(50), WithMinSamples(10))

	// Fill with a low regime, then overrun with a high one. After the
	// window turns over the baseline should reflect only the new regime.
	for i := 0; i < 50; i++ {
		d.AddSample("cost_usd", 1.0)
	}
	for i := 0; i < 50; i++ {
		d.AddSample("cost_usd", 100.0)
	}

	baseline, ok := d.GetBaseline("cost_usd")
	require.True(t, ok)
	assert.Equal(t, 50, baseline.SampleCount)
	assert.InDelta(t, 100.0, baseline.Mean, 1e-9)
	assert.InDelta(t, 0.0, baseline.StdDev, 1e-9)
	assert.Equal(t, 100.0, baseline.MinValue)
}

func TestSetBaselineAndClear(t *testing.T) {
	d := NewDetector()

	d.SetBaseline(Baseline{MetricName: "latency_ms", Mean: 200, StdDev: 10, SampleCount: 500})

	anomalies := d.CheckValue("latency_ms", 300.0, "")
	require.Len(t, anomalies, 1)
	assert.InDelta(t, 10.0, anomalies[0].Deviation, 1e-9)

	d.Clear()
	_, ok := d.GetBaseline("latency_ms")
	assert.False(t, ok)
	assert.Empty(t, d.CheckValue("latency_ms", 300.0, ""))
}

func TestBaselinesReturnsCopy(t *testing.T) {
	d := NewDetector()
	d.SetBaseline(Baseline{MetricName: "cost_usd", Mean: 1})

	all := d.Baselines()
	require.Len(t, all, 1)
	all["cost_usd"] = Baseline{MetricName: "cost_usd", Mean: 999}

	b, ok := d.GetBaseline("cost_usd")
	require.True(t, ok)
	assert.Equal(t, 1.0, b.Mean)
}
