package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guardianai/llmguard/cmd/mainconfig"
	"github.com/guardianai/llmguard/internal/alerts"
	"github.com/guardianai/llmguard/internal/analysis"
	"github.com/guardianai/llmguard/internal/api/router"
	appconfig "github.com/guardianai/llmguard/internal/config"
	"github.com/guardianai/llmguard/internal/incidents"
	"github.com/guardianai/llmguard/internal/pipeline"
	"github.com/guardianai/llmguard/internal/webhooks"
	"github.com/guardianai/llmguard/pkg/logging"
)

func main() {
	// No .env file is the normal case outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting llmguard API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := mainconfig.BuildRedisClient(ctx, cfg, logger, true)
	pool := mainconfig.BuildDatabasePool(ctx, cfg, logger)
	if pool != nil {
		defer pool.Close()
	}

	// One Gemini-backed analyzer serves both the pipeline's second-opinion
	// judgements and the webhook remediation advisor.
	var advisor *analysis.Analyzer
	if cfg.GeminiAPIKey != "" {
		gemini, err := analysis.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Warn("gemini collaborator unavailable", "error", err)
		} else {
			defer func() { _ = gemini.Close() }()
			advisor = analysis.NewAnalyzer(gemini, logger)
			logger.Info("gemini collaborator enabled", "model", cfg.GeminiModelID)
		}
	}
	var collaborator pipeline.AnalysisCollaborator
	if advisor != nil {
		collaborator = advisor
	}

	registry := prometheus.NewRegistry()
	processor, manager, baselineSyncer := mainconfig.BuildProcessor(ctx, cfg, redisClient, pool, registry, collaborator, logger)
	if baselineSyncer != nil {
		defer baselineSyncer.Stop()
	}

	// Single-process mode consumes its own in-memory queue; otherwise the
	// pipeline-worker binary drains SQS.
	var (
		publisher *pipeline.Publisher
		worker    *pipeline.Worker
	)
	if cfg.UseMemoryQueue {
		queue := pipeline.NewMemoryQueue(1024)
		publisher = pipeline.NewPublisher(queue, logger)
		worker = pipeline.NewWorker(processor, queue, logger,
			pipeline.WithWorkerCount(cfg.WorkerCount),
		)
		worker.Start(ctx)
		logger.Info("in-process pipeline worker started", "workers", cfg.WorkerCount)
	} else {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		queue := pipeline.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.TelemetryQueueURL)
		publisher = pipeline.NewPublisher(queue, logger)
	}

	routerCfg := &router.Config{
		Logger:        logger,
		Publisher:     publisher,
		AlertsHandler: alerts.NewHandler(manager, logger),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{
			Registry: registry,
		}),
		IngestAPIKey:     cfg.CollectorAPIKey,
		IngestRatePerSec: cfg.IngestRatePerSec,
		IngestBurst:      cfg.IngestBurst,
	}

	if pool != nil {
		repo := incidents.NewRepository(pool)
		routerCfg.IncidentHandler = incidents.NewHandler(repo, logger)

		webhookOpts := []webhooks.HandlerOption{
			webhooks.WithTraceSource(pipeline.NewRecordStore(pool)),
		}
		if redisClient != nil {
			webhookOpts = append(webhookOpts, webhooks.WithRateLimitStore(
				webhooks.NewRateLimitStore(redisClient, time.Hour),
			))
		}
		if advisor != nil {
			webhookOpts = append(webhookOpts, webhooks.WithRemediationAdvisor(advisor))
		}
		routerCfg.WebhookHandler = webhooks.NewHandler(repo, logger, webhookOpts...)
	} else {
		logger.Warn("no database configured; incident and webhook endpoints disabled")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if worker != nil {
		cancel()
		worker.Wait()
	}

	logger.Info("server stopped")
}
