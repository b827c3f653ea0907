package alerts

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/guardianai/llmguard/internal/anomaly"
	"github.com/guardianai/llmguard/internal/detect"
	"github.com/guardianai/llmguard/internal/telemetry"
)

const defaultSource = "llmguard"

var severityPriorities = map[telemetry.Severity]Priority{
	telemetry.SeverityCritical: PriorityP1,
	telemetry.SeverityHigh:     PriorityP2,
	telemetry.SeverityMedium:   PriorityP3,
	telemetry.SeverityLow:      PriorityP4,
}

// priorityFor maps severity to priority, defaulting unknown severities to P3.
func priorityFor(severity telemetry.Severity) Priority {
	if p, ok := severityPriorities[severity]; ok {
		return p
	}
	return PriorityP3
}

// Manager creates alerts from findings and tracks their lifecycle in an
// in-memory index. Safe for concurrent use.
type Manager struct {
	defaultTags map[string]string

	mu      sync.Mutex
	source  string
	counter int
	alerts  map[string]*Alert
}

// NewManager creates a manager. defaultTags are attached to every alert;
// caller-supplied tags win on key collision.
func NewManager(defaultTags map[string]string) *Manager {
	tags := make(map[string]string, len(defaultTags))
	for k, v := range defaultTags {
		tags[k] = v
	}
	return &Manager{
		defaultTags: tags,
		source:      defaultSource,
		alerts:      make(map[string]*Alert),
	}
}

// SetSource overrides the source name attached to new alerts.
func (m *Manager) SetSource(source string) {
	if strings.TrimSpace(source) == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = source
}

// generateAlertID allocates a process-unique id. Caller holds the lock.
func (m *Manager) generateAlertID() string {
	m.counter++
	return fmt.Sprintf("alert_%s_%04d", time.Now().UTC().Format("20060102150405"), m.counter)
}

func (m *Manager) mergeTags(extra map[string]string) map[string]string {
	tags := make(map[string]string, len(m.defaultTags)+len(extra))
	for k, v := range m.defaultTags {
		tags[k] = v
	}
	for k, v := range extra {
		tags[k] = v
	}
	return tags
}

// register allocates an id, indexes the alert as open, and returns it.
func (m *Manager) register(a Alert) Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	a.AlertID = m.generateAlertID()
	a.Status = StatusOpen
	a.Source = m.source
	a.Timestamp = time.Now().UTC()

	m.alerts[a.AlertID] = &a
	return a
}

// CreateThreatAlert registers an alert for a detected threat.
func (m *Manager) CreateThreatAlert(threat detect.Threat) Alert {
	return m.register(Alert{
		Title: fmt.Sprintf("[%s] %s Detected",
			strings.ToUpper(string(threat.Severity)), titleCase(string(threat.Type))),
		Message:  fmt.Sprintf("%s\n\nEvidence: %s", threat.Description, threat.Evidence),
		Priority: priorityFor(threat.Severity),
		Tags: m.mergeTags(map[string]string{
			"threat_type": string(threat.Type),
			"severity":    string(threat.Severity),
		}),
		TraceID:     threat.TraceID,
		UserID:      threat.UserID,
		Remediation: threatRemediation(threat.Type),
	})
}

// CreateAnomalyAlert registers an alert for a detected anomaly.
func (m *Manager) CreateAnomalyAlert(a anomaly.Anomaly) Alert {
	message := fmt.Sprintf("%s\n\nCurrent Value: %.2f\nExpected Value: %.2f",
		a.Description, a.CurrentValue, a.ExpectedValue)

	return m.register(Alert{
		Title: fmt.Sprintf("[%s] %s Anomaly",
			strings.ToUpper(string(a.Severity)), titleCase(string(a.Type))),
		Message:  message,
		Priority: priorityFor(a.Severity),
		Tags: m.mergeTags(map[string]string{
			"anomaly_type": string(a.Type),
			"severity":     string(a.Severity),
		}),
		TraceID:     a.TraceID,
		Remediation: anomalyRemediation(a.Type),
	})
}

// CreateQualityAlert registers an alert for a failed quality check. Scores
// below 0.5 escalate to high severity.
func (m *Manager) CreateQualityAlert(score, threshold float64, issues []string, traceID string) Alert {
	severity := telemetry.SeverityMedium
	if score < 0.5 {
		severity = telemetry.SeverityHigh
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Response quality score %.2f below threshold %g\n\nIssues:\n", score, threshold)
	for _, issue := range issues {
		fmt.Fprintf(&sb, "- %s\n", issue)
	}

	return m.register(Alert{
		Title:    fmt.Sprintf("[%s] Quality Degradation Detected", strings.ToUpper(string(severity))),
		Message:  strings.TrimRight(sb.String(), "\n"),
		Priority: priorityFor(severity),
		Tags: m.mergeTags(map[string]string{
			"anomaly_type": "quality_degradation",
			"severity":     string(severity),
		}),
		TraceID:     traceID,
		Remediation: "Review model outputs and consider adjusting temperature or prompts",
	})
}

// Acknowledge moves an open alert to acknowledged. Unknown ids return false.
func (m *Manager) Acknowledge(alertID string) bool {
	return m.setStatus(alertID, StatusAcknowledged)
}

// Resolve marks an alert resolved. Unknown ids return false.
func (m *Manager) Resolve(alertID string) bool {
	return m.setStatus(alertID, StatusResolved)
}

// Suppress mutes an alert without resolving it. Unknown ids return false.
func (m *Manager) Suppress(alertID string) bool {
	return m.setStatus(alertID, StatusSuppressed)
}

func (m *Manager) setStatus(alertID string, status Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[alertID]
	if !ok {
		return false
	}
	a.Status = status
	return true
}

// Get returns the alert with the given id.
func (m *Manager) Get(alertID string) (Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[alertID]
	if !ok {
		return Alert{}, false
	}
	return *a, true
}

// ActiveAlerts returns every alert that is neither resolved nor suppressed.
func (m *Manager) ActiveAlerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var active []Alert
	for _, a := range m.alerts {
		if a.Status != StatusResolved && a.Status != StatusSuppressed {
			active = append(active, *a)
		}
	}
	return active
}

var threatRemediations = map[detect.ThreatType]string{
	detect.ThreatPromptInjection: "1. Block the request immediately\n" +
		"2. Log user details for investigation\n" +
		"3. Consider rate-limiting the user\n" +
		"4. Review and strengthen input validation",
	detect.ThreatPIILeakage: "1. Redact the response before delivery\n" +
		"2. Review prompt for PII extraction attempts\n" +
		"3. Implement output filtering\n" +
		"4. Audit model training data",
	detect.ThreatToxicContent: "1. Block the content from being delivered\n" +
		"2. Log for content moderation review\n" +
		"3. Consider user warning/suspension\n" +
		"4. Review content filtering rules",
	detect.ThreatJailbreak: "1. Block the request immediately\n" +
		"2. Reset conversation context\n" +
		"3. Log user for investigation\n" +
		"4. Review and strengthen system prompts",
}

func threatRemediation(t detect.ThreatType) string {
	if r, ok := threatRemediations[t]; ok {
		return r
	}
	return "Review the threat and take appropriate action"
}

var anomalyRemediations = map[anomaly.AnomalyType]string{
	anomaly.CostSpike: "1. Enable rate limiting for affected service\n" +
		"2. Review recent traffic patterns\n" +
		"3. Check for runaway processes\n" +
		"4. Consider temporary token limits",
	anomaly.LatencySpike: "1. Check model provider status\n" +
		"2. Review request complexity\n" +
		"3. Consider request queuing\n" +
		"4. Check infrastructure health",
	anomaly.TokenSpike: "1. Enable token rate limiting\n" +
		"2. Review prompts for excessive length\n" +
		"3. Check for prompt stuffing attacks\n" +
		"4. Implement input truncation",
	anomaly.ErrorRateSpike: "1. Check model provider health\n" +
		"2. Review error logs\n" +
		"3. Implement circuit breaker\n" +
		"4. Notify engineering team",
	anomaly.QualityDegradation: "1. Review model outputs\n" +
		"2. Check temperature settings\n" +
		"3. Review system prompt\n" +
		"4. Consider model fallback",
}

func anomalyRemediation(t anomaly.AnomalyType) string {
	if r, ok := anomalyRemediations[t]; ok {
		return r
	}
	return "Review the anomaly and investigate root cause"
}

// titleCase turns "prompt_injection" into "Prompt Injection".
func titleCase(s string) string {
	words := strings.Split(s, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
