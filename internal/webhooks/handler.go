package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/guardianai/llmguard/internal/analysis"
	"github.com/guardianai/llmguard/internal/incidents"
	"github.com/guardianai/llmguard/pkg/logging"
)

// IncidentStore is the incident repository surface the webhook needs.
type IncidentStore interface {
	Create(ctx context.Context, inc incidents.Incident) (incidents.Incident, error)
	AppendRemediation(ctx context.Context, id string, action incidents.RemediationAction) error
	SetRecommendations(ctx context.Context, id string, actions []string, manualReview bool) error
	SetTraceContext(ctx context.Context, id string, traceIDs []string) error
}

// TraceSource supplies recent trace ids for incident context.
type TraceSource interface {
	RecentTraceIDs(ctx context.Context, limit int) ([]string, error)
}

// RemediationAdvisor produces generated remediation plans for incidents.
// The static recommendations stay authoritative when the advisor is absent
// or returns nothing usable.
type RemediationAdvisor interface {
	RecommendRemediation(ctx context.Context, incidentType string, incidentContext map[string]any) analysis.Remediation
}

// AlertPayload is the inbound alerting-platform callback shape. The platform
// sends overlapping legacy and current field names; both are accepted.
type AlertPayload struct {
	AlertID         string `json:"alert_id,omitempty"`
	AlertTitle      string `json:"alert_title,omitempty"`
	AlertType       string `json:"alert_type,omitempty"`
	AlertQuery      string `json:"alert_query,omitempty"`
	AlertStatus     string `json:"alert_status,omitempty"`
	AlertTransition string `json:"alert_transition,omitempty"`
	Date            string `json:"date,omitempty"`
	EventType       string `json:"event_type,omitempty"`
	Hostname        string `json:"hostname,omitempty"`
	Priority        string `json:"priority,omitempty"`
	Tags            string `json:"tags,omitempty"`
	Body            string `json:"body,omitempty"`
	UserID          string `json:"user_id,omitempty"`

	// Legacy aliases.
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
}

// Response acknowledges webhook processing.
type Response struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	IncidentID string `json:"incident_id,omitempty"`
}

// SeverityForPriority maps the platform's P1..P5 priority scale onto
// incident severity. Unknown priorities land on medium.
func SeverityForPriority(priority string) incidents.Severity {
	switch strings.ToUpper(strings.TrimSpace(priority)) {
	case "P1":
		return incidents.SeverityCritical
	case "P2":
		return incidents.SeverityHigh
	case "P3":
		return incidents.SeverityMedium
	case "P4", "P5":
		return incidents.SeverityLow
	default:
		return incidents.SeverityMedium
	}
}

// ThreatTypeForTitle classifies an alert title into the remediation rule it
// triggers. Keyword order matters: cost/token beats the rest.
func ThreatTypeForTitle(title string) string {
	if title == "" {
		return "unknown"
	}
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "cost") || strings.Contains(lower, "token"):
		return "cost_anomaly"
	case strings.Contains(lower, "security") || strings.Contains(lower, "threat"):
		return "security_threat"
	case strings.Contains(lower, "quality"):
		return "quality_degradation"
	case strings.Contains(lower, "latency"):
		return "latency_spike"
	case strings.Contains(lower, "error"):
		return "high_error_rate"
	default:
		return "generic"
	}
}

// Handler processes inbound alert webhooks.
type Handler struct {
	store      IncidentStore
	traces     TraceSource
	rateLimits *RateLimitStore
	advisor    RemediationAdvisor
	logger     *logging.Logger
}

// HandlerOption customizes optional webhook collaborators.
type HandlerOption func(*Handler)

// WithTraceSource wires recent-trace context enrichment.
func WithTraceSource(src TraceSource) HandlerOption {
	return func(h *Handler) {
		h.traces = src
	}
}

// WithRemediationAdvisor wires a generated-plan advisor for incident
// recommendations.
func WithRemediationAdvisor(advisor RemediationAdvisor) HandlerOption {
	return func(h *Handler) {
		h.advisor = advisor
	}
}

// WithRateLimitStore wires the cost-anomaly remediation store.
func WithRateLimitStore(store *RateLimitStore) HandlerOption {
	return func(h *Handler) {
		h.rateLimits = store
	}
}

// NewHandler creates a webhook handler.
func NewHandler(store IncidentStore, logger *logging.Logger, opts ...HandlerOption) *Handler {
	if store == nil {
		panic("webhooks: incident store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{store: store, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes mounts the webhook endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/webhooks/alerts", h.HandleAlert)
	r.Post("/webhooks/test", h.HandleTest)
}

var webhookTracer = otel.Tracer("llmguard.internal.webhooks")

// HandleAlert turns one platform alert into an incident and runs the matching
// auto-remediation.
func (h *Handler) HandleAlert(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "webhooks.HandleAlert")
	defer span.End()
	r = r.WithContext(ctx)

	var payload AlertPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Status: "error", Message: "invalid JSON payload"})
		return
	}

	title := payload.AlertTitle
	if title == "" {
		title = payload.Title
	}
	if title == "" {
		title = "Unknown Alert"
	}
	alertID := payload.AlertID
	if alertID == "" {
		alertID = payload.ID
	}

	severity := SeverityForPriority(payload.Priority)
	threatType := ThreatTypeForTitle(title)
	span.SetAttributes(
		attribute.String("llmguard.alert_title", title),
		attribute.String("llmguard.threat_type", threatType),
		attribute.String("llmguard.severity", string(severity)),
	)

	triggeredAt := time.Now().UTC()
	if payload.Date != "" {
		if parsed, err := time.Parse(time.RFC3339, payload.Date); err == nil {
			triggeredAt = parsed.UTC()
		}
	}

	inc, err := h.store.Create(r.Context(), incidents.Incident{
		Status:      incidents.StatusOpen,
		Severity:    severity,
		RuleName:    threatType,
		Title:       title,
		Description: payload.Body,
		AlertID:     alertID,
		AlertQuery:  payload.AlertQuery,
		Tags:        payload.Tags,
		TriggeredAt: triggeredAt,
	})
	if err != nil {
		h.logger.Error("webhook incident create failed", "error", err, "alert_id", alertID)
		writeJSON(w, http.StatusInternalServerError, Response{Status: "error", Message: "failed to create incident"})
		return
	}
	h.logger.Info("incident created from alert webhook",
		"incident_id", inc.ID, "rule", threatType, "severity", severity)

	h.attachTraceContext(r.Context(), inc.ID)
	message := h.remediate(r.Context(), inc.ID, threatType, severity, payload)

	writeJSON(w, http.StatusOK, Response{
		Status:     "processed",
		Message:    message,
		IncidentID: inc.ID,
	})
}

// HandleTest verifies webhook connectivity.
func (h *Handler) HandleTest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Response{Status: "ok", Message: "webhook endpoint reachable"})
}

// attachTraceContext enriches the incident with recent trace ids. Missing
// context is never fatal for the webhook.
func (h *Handler) attachTraceContext(ctx context.Context, incidentID string) {
	if h.traces == nil {
		return
	}
	traceIDs, err := h.traces.RecentTraceIDs(ctx, 10)
	if err != nil {
		h.logger.Warn("failed to fetch telemetry context", "error", err, "incident_id", incidentID)
		return
	}
	if len(traceIDs) == 0 {
		return
	}
	if err := h.store.SetTraceContext(ctx, incidentID, traceIDs); err != nil {
		h.logger.Warn("failed to attach trace context", "error", err, "incident_id", incidentID)
	}
}

func (h *Handler) remediate(ctx context.Context, incidentID, threatType string, severity incidents.Severity, payload AlertPayload) string {
	switch {
	case threatType == "cost_anomaly":
		return h.remediateCostAnomaly(ctx, incidentID, payload)

	case threatType == "security_threat" && severity == incidents.SeverityCritical:
		recommended := h.recommendations(ctx, threatType, payload, []string{
			"Review affected request traces",
			"Verify PII redaction complete",
			"Consider temporary user suspension",
		})
		if err := h.store.SetRecommendations(ctx, incidentID, recommended, true); err != nil {
			h.logger.Warn("failed to record recommendations", "error", err, "incident_id", incidentID)
		}
		return "Critical security threat - manual review required"

	case threatType == "quality_degradation":
		recommended := h.recommendations(ctx, threatType, payload, []string{
			"Switch to backup model configuration",
			"Review recent prompt patterns",
			"Check model API status",
		})
		if err := h.store.SetRecommendations(ctx, incidentID, recommended, false); err != nil {
			h.logger.Warn("failed to record recommendations", "error", err, "incident_id", incidentID)
		}
		return "Quality degradation detected - backup model recommended"
	}
	return "No auto-remediation triggered."
}

// recommendations asks the advisor for a plan, falling back to the static
// actions when no advisor is configured or the plan comes back empty.
func (h *Handler) recommendations(ctx context.Context, threatType string, payload AlertPayload, fallback []string) []string {
	if h.advisor == nil {
		return fallback
	}
	plan := h.advisor.RecommendRemediation(ctx, threatType, map[string]any{
		"alert_title": payload.AlertTitle,
		"priority":    payload.Priority,
		"tags":        payload.Tags,
		"body":        payload.Body,
	})
	if len(plan.RecommendedActions) == 0 {
		return fallback
	}
	return plan.RecommendedActions
}

func (h *Handler) remediateCostAnomaly(ctx context.Context, incidentID string, payload AlertPayload) string {
	userID := payload.UserID
	if userID == "" {
		userID = "unknown_user"
	}

	limit := RateLimit{
		UserID:        userID,
		Limit:         10,
		WindowSeconds: 60,
		Reason:        "Cost anomaly incident " + incidentID,
	}
	if h.rateLimits != nil {
		if err := h.rateLimits.Apply(ctx, limit); err != nil {
			h.logger.Error("failed to apply rate limit", "error", err, "incident_id", incidentID)
			return "Rate limit remediation failed"
		}
	}

	message := "Rate limit applied to user " + userID + ": 10 req/min"
	action := incidents.RemediationAction{
		ActionType: "rate_limit",
		Target:     userID,
		Parameters: map[string]any{"limit": limit.Limit, "window_seconds": limit.WindowSeconds},
		ExecutedAt: time.Now().UTC(),
		Result:     message,
	}
	if err := h.store.AppendRemediation(ctx, incidentID, action); err != nil {
		h.logger.Warn("failed to record remediation action", "error", err, "incident_id", incidentID)
	}
	return message
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
