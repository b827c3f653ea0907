package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/guardianai/llmguard/internal/pipeline"
	"github.com/guardianai/llmguard/internal/telemetry"
	"github.com/guardianai/llmguard/pkg/logging"
)

// maxIngestBatch caps how many records a single batch request may carry.
// Clients clamp their flush batches to the same limit.
const maxIngestBatch = 10

type ingestHandler struct {
	publisher *pipeline.Publisher
	logger    *logging.Logger
}

func newIngestHandler(publisher *pipeline.Publisher, logger *logging.Logger) *ingestHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ingestHandler{publisher: publisher, logger: logger}
}

type batchRequest struct {
	Records []telemetry.Record `json:"records"`
}

// HandleBatch accepts a batch of telemetry records and enqueues them for
// asynchronous processing. The response is 202: acceptance means queued,
// not analyzed.
func (h *ingestHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeIngestError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Records) == 0 {
		writeIngestError(w, http.StatusBadRequest, "records required")
		return
	}
	if len(req.Records) > maxIngestBatch {
		writeIngestError(w, http.StatusBadRequest,
			fmt.Sprintf("batch size %d exceeds maximum of %d", len(req.Records), maxIngestBatch))
		return
	}

	for i := range req.Records {
		if req.Records[i].TraceID == "" {
			writeIngestError(w, http.StatusBadRequest, fmt.Sprintf("record %d missing trace_id", i))
			return
		}
		if req.Records[i].Timestamp.IsZero() {
			req.Records[i].Timestamp = time.Now().UTC()
		}
	}

	if err := h.publisher.EnqueueBatch(r.Context(), req.Records); err != nil {
		h.logger.Error("failed to enqueue telemetry batch", "error", err, "count", len(req.Records))
		writeIngestError(w, http.StatusServiceUnavailable, "telemetry queue unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "accepted",
		"count":  len(req.Records),
	})
}

func writeIngestError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
