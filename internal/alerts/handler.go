package alerts

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/guardianai/llmguard/pkg/logging"
)

// Handler serves the alert lifecycle endpoints backed by a Manager.
type Handler struct {
	manager *Manager
	logger  *logging.Logger
}

// NewHandler creates an alert handler. The manager is required.
func NewHandler(manager *Manager, logger *logging.Logger) *Handler {
	if manager == nil {
		panic("alerts: manager cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{manager: manager, logger: logger}
}

// Routes mounts the alert endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/alerts/active", h.Active)
	r.Get("/alerts/{alertID}", h.Get)
	r.Post("/alerts/{alertID}/acknowledge", h.Acknowledge)
	r.Post("/alerts/{alertID}/resolve", h.Resolve)
	r.Post("/alerts/{alertID}/suppress", h.Suppress)
}

// Active lists alerts that are open or acknowledged, newest first.
func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	active := h.manager.ActiveAlerts()
	if active == nil {
		active = []Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": active,
		"count":  len(active),
	})
}

// Get returns a single alert by ID.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")
	alert, ok := h.manager.Get(alertID)
	if !ok {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// Acknowledge transitions an alert to acknowledged.
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, StatusAcknowledged, h.manager.Acknowledge)
}

// Resolve transitions an alert to resolved.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, StatusResolved, h.manager.Resolve)
}

// Suppress transitions an alert to suppressed.
func (h *Handler) Suppress(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, StatusSuppressed, h.manager.Suppress)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, status Status, apply func(string) bool) {
	alertID := chi.URLParam(r, "alertID")
	if !apply(alertID) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	h.logger.Info("alert status changed", "alert_id", alertID, "status", string(status))
	alert, _ := h.manager.Get(alertID)
	writeJSON(w, http.StatusOK, alert)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
