// Package router assembles the HTTP surface: telemetry ingest, alert and
// incident management, and the alerting-platform webhook receiver.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/guardianai/llmguard/internal/alerts"
	httpmiddleware "github.com/guardianai/llmguard/internal/http/middleware"
	"github.com/guardianai/llmguard/internal/incidents"
	"github.com/guardianai/llmguard/internal/pipeline"
	"github.com/guardianai/llmguard/internal/webhooks"
	"github.com/guardianai/llmguard/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger          *logging.Logger
	Publisher       *pipeline.Publisher
	AlertsHandler   *alerts.Handler
	IncidentHandler *incidents.Handler
	WebhookHandler  *webhooks.Handler
	MetricsHandler  http.Handler

	// IngestAPIKey protects the telemetry batch endpoint. Empty disables
	// the check, which is only appropriate for local development.
	IngestAPIKey string

	// IngestRatePerSec/IngestBurst bound per-IP ingest throughput.
	// Zero disables rate limiting.
	IngestRatePerSec float64
	IngestBurst      int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", handleHealth)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		if cfg.Publisher != nil {
			ingest := newIngestHandler(cfg.Publisher, cfg.Logger)
			api.Group(func(collect chi.Router) {
				collect.Use(requireAPIKey(cfg.IngestAPIKey))
				if cfg.IngestRatePerSec > 0 {
					collect.Use(httpmiddleware.RateLimit(cfg.IngestRatePerSec, cfg.IngestBurst))
				}
				collect.Post("/telemetry/batch", ingest.HandleBatch)
			})
		}
		if cfg.AlertsHandler != nil {
			cfg.AlertsHandler.Routes(api)
		}
		if cfg.IncidentHandler != nil {
			cfg.IncidentHandler.Routes(api)
		}
		if cfg.WebhookHandler != nil {
			cfg.WebhookHandler.Routes(api)
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","service":"llmguard"}`))
}
