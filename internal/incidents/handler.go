package incidents

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/guardianai/llmguard/pkg/logging"
)

// Store is the repository surface the HTTP handler needs.
type Store interface {
	Create(ctx context.Context, inc Incident) (Incident, error)
	Get(ctx context.Context, id string) (Incident, error)
	List(ctx context.Context, filter Filter) ([]Incident, error)
	UpdateStatus(ctx context.Context, id string, status Status, resolvedBy string) error
}

// Handler serves the incident dashboard endpoints.
type Handler struct {
	store  Store
	logger *logging.Logger
}

// NewHandler creates an incidents handler.
func NewHandler(store Store, logger *logging.Logger) *Handler {
	if store == nil {
		panic("incidents: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Routes mounts the incident endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/incidents", h.List)
	r.Post("/incidents", h.Create)
	r.Get("/incidents/{incidentID}", h.Get)
	r.Patch("/incidents/{incidentID}", h.Update)
}

// List handles GET /incidents with optional status/severity filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := Filter{
		Status:   Status(r.URL.Query().Get("status")),
		Severity: Severity(r.URL.Query().Get("severity")),
	}
	if filter.Status != "" && !ValidStatus(filter.Status) {
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}
	if filter.Severity != "" && !ValidSeverity(filter.Severity) {
		writeError(w, http.StatusBadRequest, "invalid severity filter")
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "offset must be non-negative")
			return
		}
		filter.Offset = offset
	}

	list, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("incident list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}
	if list == nil {
		list = []Incident{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": list, "count": len(list)})
}

// Get handles GET /incidents/{incidentID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "incidentID")
	inc, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		h.logger.Error("incident fetch failed", "error", err, "incident_id", id)
		writeError(w, http.StatusInternalServerError, "failed to fetch incident")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type createRequest struct {
	RuleName    string   `json:"rule_name"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
}

// Create handles POST /incidents for manually reported incidents.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if !ValidSeverity(req.Severity) {
		writeError(w, http.StatusBadRequest, "invalid severity")
		return
	}

	inc, err := h.store.Create(r.Context(), Incident{
		Status:      StatusOpen,
		Severity:    req.Severity,
		RuleName:    req.RuleName,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		h.logger.Error("incident create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create incident")
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

type updateRequest struct {
	Status     Status `json:"status"`
	ResolvedBy string `json:"resolved_by,omitempty"`
}

// Update handles PATCH /incidents/{incidentID} status transitions.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "incidentID")

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if !ValidStatus(req.Status) {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	if err := h.store.UpdateStatus(r.Context(), id, req.Status, req.ResolvedBy); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		h.logger.Error("incident update failed", "error", err, "incident_id", id)
		writeError(w, http.StatusInternalServerError, "failed to update incident")
		return
	}

	inc, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("incident refetch failed", "error", err, "incident_id", id)
		writeError(w, http.StatusInternalServerError, "failed to fetch incident")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
