// Package incidents stores and serves the incident records created from
// inbound alert webhooks and manual reports.
package incidents

import "time"

// Severity mirrors the alerting scale used across the pipeline.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Status tracks the incident lifecycle.
type Status string

const (
	StatusOpen          Status = "open"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
)

// ValidSeverity reports whether s is a known severity value.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ValidStatus reports whether s is a known status value.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusResolved:
		return true
	}
	return false
}

// RemediationAction records one automated or manual mitigation step taken
// for an incident.
type RemediationAction struct {
	ActionType string         `json:"action_type"`
	Target     string         `json:"target"`
	Parameters map[string]any `json:"parameters,omitempty"`
	ExecutedAt time.Time      `json:"executed_at"`
	Result     string         `json:"result,omitempty"`
}

// Incident is one stored incident record.
type Incident struct {
	ID                   string              `json:"incident_id"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
	TriggeredAt          time.Time           `json:"triggered_at"`
	Status               Status              `json:"status"`
	Severity             Severity            `json:"severity"`
	RuleName             string              `json:"rule_name"`
	Title                string              `json:"title"`
	Description          string              `json:"description,omitempty"`
	AlertID              string              `json:"alert_id,omitempty"`
	AlertQuery           string              `json:"alert_query,omitempty"`
	Tags                 string              `json:"tags,omitempty"`
	TraceIDs             []string            `json:"trace_ids,omitempty"`
	RemediationActions   []RemediationAction `json:"remediation_actions"`
	RecommendedActions   []string            `json:"recommended_actions,omitempty"`
	RequiresManualReview bool                `json:"requires_manual_review"`
	ResolvedAt           *time.Time          `json:"resolved_at,omitempty"`
	ResolvedBy           string              `json:"resolved_by,omitempty"`
}

// Filter narrows List queries. Zero values mean "no filter".
type Filter struct {
	Status   Status
	Severity Severity
	Limit    int
	Offset   int
}
