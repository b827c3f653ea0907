package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/guardianai/llmguard/cmd/mainconfig"
	"github.com/guardianai/llmguard/internal/analysis"
	appconfig "github.com/guardianai/llmguard/internal/config"
	"github.com/guardianai/llmguard/internal/pipeline"
	"github.com/guardianai/llmguard/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.UseMemoryQueue {
		logger.Error("pipeline worker requires an SQS queue; in-memory mode runs inside the api binary")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	redisClient := mainconfig.BuildRedisClient(ctx, cfg, logger, true)
	pool := mainconfig.BuildDatabasePool(ctx, cfg, logger)
	if pool != nil {
		defer pool.Close()
	}

	var collaborator pipeline.AnalysisCollaborator
	if cfg.GeminiAPIKey != "" {
		gemini, err := analysis.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Warn("gemini collaborator unavailable", "error", err)
		} else {
			defer func() { _ = gemini.Close() }()
			collaborator = analysis.NewAnalyzer(gemini, logger)
			logger.Info("gemini collaborator enabled", "model", cfg.GeminiModelID)
		}
	}

	processor, _, baselineSyncer := mainconfig.BuildProcessor(ctx, cfg, redisClient, pool, prometheus.DefaultRegisterer, collaborator, logger)
	if baselineSyncer != nil {
		defer baselineSyncer.Stop()
	}
	queue := pipeline.NewSQSQueue(sqs.NewFromConfig(awsConfig), cfg.TelemetryQueueURL)
	worker := pipeline.NewWorker(
		processor,
		queue,
		logger,
		pipeline.WithWorkerCount(cfg.WorkerCount),
	)

	worker.Start(ctx)
	logger.Info("pipeline worker started", "workers", cfg.WorkerCount, "queue", cfg.TelemetryQueueURL)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down pipeline worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("pipeline worker stopped")
	case <-doneCtx.Done():
		logger.Error("pipeline worker shutdown timed out", "error", doneCtx.Err())
	}
}
