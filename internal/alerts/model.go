// Package alerts turns detector findings into tracked, routable alerts and
// exports them in the event shape the external alerting platform accepts.
package alerts

import (
	"fmt"
	"sort"
	"time"
)

// Priority is the internal five-level priority scale.
type Priority string

const (
	PriorityP1 Priority = "p1" // critical, immediate action
	PriorityP2 Priority = "p2" // high, action within 1 hour
	PriorityP3 Priority = "p3" // medium, action within 4 hours
	PriorityP4 Priority = "p4" // low, action within 24 hours
	PriorityP5 Priority = "p5" // informational
)

// Status tracks an alert through its lifecycle.
type Status string

const (
	StatusOpen         Status = "open"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
	StatusSuppressed   Status = "suppressed"
)

// Alert is one alert registered with the manager.
type Alert struct {
	AlertID     string            `json:"alert_id"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Priority    Priority          `json:"priority"`
	Status      Status            `json:"status"`
	Source      string            `json:"source"`
	Tags        map[string]string `json:"tags"`
	Timestamp   time.Time         `json:"timestamp"`
	TraceID     string            `json:"trace_id,omitempty"`
	UserID      string            `json:"user_id,omitempty"`
	Remediation string            `json:"remediation,omitempty"`
}

// Event is the wire shape the external alerting platform ingests. Its
// priority and alert_type scales are narrower than the internal one; the
// narrowing below is deliberate and must stay exact so downstream filters
// keep working.
type Event struct {
	Title          string   `json:"title"`
	Text           string   `json:"text"`
	Priority       string   `json:"priority"`
	AlertType      string   `json:"alert_type"`
	Tags           []string `json:"tags"`
	SourceTypeName string   `json:"source_type_name"`
}

var eventPriorities = map[Priority]string{
	PriorityP1: "normal",
	PriorityP2: "normal",
	PriorityP3: "normal",
	PriorityP4: "low",
	PriorityP5: "low",
}

var eventAlertTypes = map[Priority]string{
	PriorityP1: "error",
	PriorityP2: "error",
	PriorityP3: "warning",
	PriorityP4: "warning",
	PriorityP5: "info",
}

// ToEvent converts the alert to the platform event shape. Tags are
// flattened to "key:value" strings with priority, source, and trace id
// appended.
func (a Alert) ToEvent() Event {
	keys := make([]string, 0, len(a.Tags))
	for k := range a.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tags := make([]string, 0, len(keys)+3)
	for _, k := range keys {
		tags = append(tags, fmt.Sprintf("%s:%s", k, a.Tags[k]))
	}
	tags = append(tags, fmt.Sprintf("priority:%s", a.Priority))
	tags = append(tags, fmt.Sprintf("source:%s", a.Source))
	if a.TraceID != "" {
		tags = append(tags, fmt.Sprintf("trace_id:%s", a.TraceID))
	}

	return Event{
		Title:          a.Title,
		Text:           a.Message,
		Priority:       eventPriorities[a.Priority],
		AlertType:      eventAlertTypes[a.Priority],
		Tags:           tags,
		SourceTypeName: a.Source,
	}
}
