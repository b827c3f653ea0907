// Package mainconfig centralizes the dependency wiring shared by the api
// and pipeline-worker binaries: AWS SDK setup, Redis, Postgres, and the
// processing pipeline itself.
package mainconfig

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/guardianai/llmguard/internal/alerts"
	"github.com/guardianai/llmguard/internal/anomaly"
	appconfig "github.com/guardianai/llmguard/internal/config"
	"github.com/guardianai/llmguard/internal/detect"
	"github.com/guardianai/llmguard/internal/observability/metrics"
	"github.com/guardianai/llmguard/internal/pipeline"
	"github.com/guardianai/llmguard/internal/quality"
	"github.com/guardianai/llmguard/pkg/logging"
)

// LoadAWSConfig centralizes AWS SDK initialization so both binaries share the
// same LocalStack/production wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint := cfg.AWSEndpointOverride; endpoint != "" {
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
				switch service {
				case sqs.ServiceID:
					return aws.Endpoint{
						URL:           endpoint,
						PartitionID:   "aws",
						SigningRegion: cfg.AWSRegion,
					}, nil
				default:
					return aws.Endpoint{}, &aws.EndpointNotFoundError{}
				}
			},
		)
	}

	return awsCfg, nil
}

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildDatabasePool returns a pgx pool or nil when no database is configured
// or reachable. Incident and telemetry persistence degrade to disabled rather
// than failing startup.
func BuildDatabasePool(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *pgxpool.Pool {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn("database not available", "error", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Warn("database not reachable", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// BuildProcessor assembles the full telemetry processor from config:
// detectors, analyzer, alert manager, and the optional dispatch, email,
// persistence, generative-analysis, and metrics collaborators. The returned
// syncer is non-nil when Redis is configured; callers should Stop it on
// shutdown so learned baselines survive a restart.
func BuildProcessor(
	ctx context.Context,
	cfg *appconfig.Config,
	redisClient *redis.Client,
	pool *pgxpool.Pool,
	registerer prometheus.Registerer,
	collab pipeline.AnalysisCollaborator,
	logger *logging.Logger,
) (*pipeline.Processor, *alerts.Manager, *anomaly.BaselineSyncer) {
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	threatDetector := detect.NewDefaultDetector()
	anomalyDetector := anomaly.NewDetector(
		anomaly.WithWindowSize(cfg.AnomalyWindowSize),
		anomaly.WithZScoreThreshold(cfg.ZScoreThreshold),
		anomaly.WithMinSamples(cfg.AnomalyMinSamples),
	)
	var syncer *anomaly.BaselineSyncer
	if redisClient != nil {
		baselines := anomaly.NewBaselineStore(redisClient)
		if err := baselines.Seed(ctx, anomalyDetector); err != nil {
			logger.Warn("failed to seed anomaly baselines", "error", err)
		} else {
			logger.Info("anomaly baselines seeded from redis")
		}
		syncer = anomaly.NewBaselineSyncer(baselines, anomalyDetector, cfg.BaselineSyncInterval, logger)
		syncer.Start(ctx)
	}
	qualityAnalyzer := quality.NewAnalyzer(cfg.QualityThreshold)
	manager := alerts.NewManager(map[string]string{
		"service": "llmguard",
		"env":     cfg.Env,
	})
	manager.SetSource(cfg.AlertSourceName)

	opts := []pipeline.ProcessorOption{
		pipeline.WithRateTracker(anomaly.NewRateTracker(time.Hour)),
	}
	if registerer != nil {
		opts = append(opts, pipeline.WithPipelineMetrics(metrics.NewPipelineMetrics(registerer)))
	}
	if cfg.EnableAlerts && cfg.AlertAPIKey != "" {
		dispatcher := alerts.NewEventDispatcher(cfg.AlertEventsURL, cfg.AlertAPIKey,
			alerts.WithAppKey(cfg.AlertAppKey),
			alerts.WithLogger(logger),
		)
		opts = append(opts, pipeline.WithDispatcher(dispatcher))
		logger.Info("alert event dispatch enabled", "url", cfg.AlertEventsURL)
	}
	if notifier := alerts.NewEmailNotifier(alerts.EmailConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
		ToEmail:   cfg.AlertEmailTo,
	}, logger); notifier != nil {
		opts = append(opts, pipeline.WithEmailNotifier(notifier))
		logger.Info("alert email notifications enabled", "to", cfg.AlertEmailTo)
	}
	if pool != nil {
		opts = append(opts, pipeline.WithRecordStore(pipeline.NewRecordStore(pool)))
	}
	if collab != nil {
		opts = append(opts, pipeline.WithAnalysisCollaborator(collab))
		logger.Info("generative analysis collaborator enabled")
	}

	return pipeline.NewProcessor(threatDetector, anomalyDetector, qualityAnalyzer, manager, logger, opts...), manager, syncer
}
