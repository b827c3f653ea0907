package alerts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardianai/llmguard/internal/anomaly"
	"github.com/guardianai/llmguard/internal/detect"
	"github.com/guardianai/llmguard/internal/telemetry"
)

func sampleThreat() detect.Threat {
	return detect.Threat{
		Type:        detect.ThreatPromptInjection,
		Severity:    telemetry.SeverityHigh,
		Confidence:  0.85,
		Description: "Potential prompt injection attack detected",
		Evidence:    "ignore all previous instructions",
		TraceID:     "trace-1",
		UserID:      "user-1",
	}
}

func TestCreateThreatAlert(t *testing.T) {
	m := NewManager(map[string]string{"env": "test"})

	alert := m.CreateThreatAlert(sampleThreat())

	assert.True(t, strings.HasPrefix(alert.AlertID, "alert_"))
	assert.Equal(t, "[HIGH] Prompt Injection Detected", alert.Title)
	assert.Equal(t, PriorityP2, alert.Priority)
	assert.Equal(t, StatusOpen, alert.Status)
	assert.Equal(t, "trace-1", alert.TraceID)
	assert.Equal(t, "user-1", alert.UserID)
	assert.Contains(t, alert.Message, "Evidence: ignore all previous instructions")
	assert.Contains(t, alert.Remediation, "Block the request immediately")
	assert.Equal(t, "test", alert.Tags["env"])
	assert.Equal(t, "prompt_injection", alert.Tags["threat_type"])
}

func TestSetSourceOverridesDefault(t *testing.T) {
	m := NewManager(nil)

	assert.Equal(t, "llmguard", m.CreateThreatAlert(sampleThreat()).Source)

	m.SetSource("guardian-staging")
	assert.Equal(t, "guardian-staging", m.CreateThreatAlert(sampleThreat()).Source)

	m.SetSource("")
	assert.Equal(t, "guardian-staging", m.CreateThreatAlert(sampleThreat()).Source)
}

func TestSeverityPriorityMapping(t *testing.T) {
	m := NewManager(nil)

	tests := []struct {
		severity telemetry.Severity
		want     Priority
	}{
		{telemetry.SeverityCritical, PriorityP1},
		{telemetry.SeverityHigh, PriorityP2},
		{telemetry.SeverityMedium, PriorityP3},
		{telemetry.SeverityLow, PriorityP4},
		{telemetry.Severity("bogus"), PriorityP3},
	}
	for _, tt := range tests {
		threat := sampleThreat()
		threat.Severity = tt.severity
		alert := m.CreateThreatAlert(threat)
		assert.Equal(t, tt.want, alert.Priority, string(tt.severity))
	}
}

func TestCallerTagsWinOverDefaults(t *testing.T) {
	m := NewManager(map[string]string{"severity": "from-defaults", "team": "platform"})

	alert := m.CreateThreatAlert(sampleThreat())

	// The per-alert severity tag overrides the colliding default.
	assert.Equal(t, "high", alert.Tags["severity"])
	assert.Equal(t, "platform", alert.Tags["team"])
}

func TestAlertIDsUnique(t *testing.T) {
	m := NewManager(nil)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		alert := m.CreateThreatAlert(sampleThreat())
		require.False(t, seen[alert.AlertID], "duplicate id %s", alert.AlertID)
		seen[alert.AlertID] = true
	}
}

func TestCreateAnomalyAlert(t *testing.T) {
	m := NewManager(nil)

	alert := m.CreateAnomalyAlert(anomaly.Anomaly{
		Type:          anomaly.LatencySpike,
		Severity:      telemetry.SeverityCritical,
		CurrentValue:  8000,
		ExpectedValue: 200,
		Description:   "latency_ms is 12.0 standard deviations from mean",
		TraceID:       "trace-2",
	})

	assert.Equal(t, "[CRITICAL] Latency Spike Anomaly", alert.Title)
	assert.Equal(t, PriorityP1, alert.Priority)
	assert.Contains(t, alert.Message, "Current Value: 8000.00")
	assert.Contains(t, alert.Message, "Expected Value: 200.00")
	assert.Contains(t, alert.Remediation, "Check model provider status")
	assert.Equal(t, "latency_spike", alert.Tags["anomaly_type"])
}

func TestCreateQualityAlertSeverityBands(t *testing.T) {
	m := NewManager(nil)

	low := m.CreateQualityAlert(0.4, 0.7, []string{"Low relevance to prompt"}, "trace-3")
	assert.Equal(t, PriorityP2, low.Priority)
	assert.Equal(t, "[HIGH] Quality Degradation Detected", low.Title)
	assert.Contains(t, low.Message, "- Low relevance to prompt")

	mid := m.CreateQualityAlert(0.6, 0.7, nil, "")
	assert.Equal(t, PriorityP3, mid.Priority)
	assert.Equal(t, "[MEDIUM] Quality Degradation Detected", mid.Title)
}

func TestLifecycleTransitions(t *testing.T) {
	m := NewManager(nil)
	alert := m.CreateThreatAlert(sampleThreat())

	assert.True(t, m.Acknowledge(alert.AlertID))
	got, ok := m.Get(alert.AlertID)
	require.True(t, ok)
	assert.Equal(t, StatusAcknowledged, got.Status)

	assert.True(t, m.Resolve(alert.AlertID))
	got, _ = m.Get(alert.AlertID)
	assert.Equal(t, StatusResolved, got.Status)

	assert.False(t, m.Acknowledge("alert_unknown"))
	assert.False(t, m.Resolve("alert_unknown"))
	assert.False(t, m.Suppress("alert_unknown"))
}

func TestActiveAlertsExcludesResolvedAndSuppressed(t *testing.T) {
	m := NewManager(nil)

	open := m.CreateThreatAlert(sampleThreat())
	acked := m.CreateThreatAlert(sampleThreat())
	resolved := m.CreateThreatAlert(sampleThreat())
	suppressed := m.CreateThreatAlert(sampleThreat())

	m.Acknowledge(acked.AlertID)
	m.Resolve(resolved.AlertID)
	m.Suppress(suppressed.AlertID)

	active := m.ActiveAlerts()
	assert.Len(t, active, 2)
	ids := map[string]bool{}
	for _, a := range active {
		ids[a.AlertID] = true
	}
	assert.True(t, ids[open.AlertID])
	assert.True(t, ids[acked.AlertID])
}

func TestToEventMapping(t *testing.T) {
	tests := []struct {
		priority      Priority
		wantPriority  string
		wantAlertType string
	}{
		{PriorityP1, "normal", "error"},
		{PriorityP2, "normal", "error"},
		{PriorityP3, "normal", "warning"},
		{PriorityP4, "low", "warning"},
		{PriorityP5, "low", "info"},
	}
	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			alert := Alert{
				Title:    "t",
				Message:  "m",
				Priority: tt.priority,
				Source:   "llmguard",
				Tags:     map[string]string{"a": "1", "b": "2"},
				TraceID:  "trace-9",
			}
			event := alert.ToEvent()

			assert.Equal(t, tt.wantPriority, event.Priority)
			assert.Equal(t, tt.wantAlertType, event.AlertType)
			assert.Equal(t, "llmguard", event.SourceTypeName)
			assert.Equal(t, []string{
				"a:1", "b:2",
				"priority:" + string(tt.priority),
				"source:llmguard",
				"trace_id:trace-9",
			}, event.Tags)
		})
	}
}

func TestToEventOmitsEmptyTraceID(t *testing.T) {
	event := Alert{Priority: PriorityP3, Source: "llmguard"}.ToEvent()
	for _, tag := range event.Tags {
		assert.False(t, strings.HasPrefix(tag, "trace_id:"))
	}
}
