package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Ingest endpoint rate limiting (0 disables)
	IngestRatePerSec float64
	IngestBurst      int

	// Pipeline
	UseMemoryQueue    bool
	WorkerCount       int
	TelemetryQueueURL string
	QualityThreshold  float64
	EnableAlerts      bool

	// Anomaly detection
	AnomalyWindowSize    int
	AnomalyMinSamples    int
	ZScoreThreshold      float64
	BaselineSyncInterval time.Duration

	// Storage
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// AWS (SQS telemetry queue)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Alerting platform (Datadog-compatible events API)
	AlertEventsURL  string
	AlertAPIKey     string
	AlertAppKey     string
	AlertSourceName string

	// Alert email escalation
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	AlertEmailTo      string

	// Generative analysis (optional Gemini collaborator)
	GeminiAPIKey  string
	GeminiModelID string

	// Client-side transmitter defaults
	CollectorURL        string
	CollectorAPIKey     string
	TransmitBatchSize   int
	TransmitFlushEvery  time.Duration
	TransmitQueueSize   int
	TransmitRetryCount  int
	TransmitRetryDelay  time.Duration
	TransmitHTTPTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		IngestRatePerSec: getEnvAsFloat("INGEST_RATE_PER_SEC", 0),
		IngestBurst:      getEnvAsInt("INGEST_BURST", 20),

		UseMemoryQueue:    getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:       getEnvAsInt("WORKER_COUNT", 2),
		TelemetryQueueURL: getEnv("TELEMETRY_QUEUE_URL", ""),
		QualityThreshold:  getEnvAsFloat("QUALITY_THRESHOLD", 0.7),
		EnableAlerts:      getEnvAsBool("ENABLE_ALERTS", true),

		AnomalyWindowSize:    getEnvAsInt("ANOMALY_WINDOW_SIZE", 1000),
		AnomalyMinSamples:    getEnvAsInt("ANOMALY_MIN_SAMPLES", 30),
		ZScoreThreshold:      getEnvAsFloat("Z_SCORE_THRESHOLD", 3.0),
		BaselineSyncInterval: getEnvAsDuration("BASELINE_SYNC_INTERVAL", 5*time.Minute),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		AlertEventsURL:  getEnv("ALERT_EVENTS_URL", "https://api.datadoghq.com/api/v1/events"),
		AlertAPIKey:     getEnv("ALERT_API_KEY", ""),
		AlertAppKey:     getEnv("ALERT_APP_KEY", ""),
		AlertSourceName: getEnv("ALERT_SOURCE_NAME", "llmguard"),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "LLMGuard"),
		AlertEmailTo:      getEnv("ALERT_EMAIL_TO", ""),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", "gemini-1.5-flash"),

		CollectorURL:        getEnv("COLLECTOR_URL", "http://localhost:8080"),
		CollectorAPIKey:     getEnv("COLLECTOR_API_KEY", ""),
		TransmitBatchSize:   getEnvAsInt("TRANSMIT_BATCH_SIZE", 10),
		TransmitFlushEvery:  getEnvAsDuration("TRANSMIT_FLUSH_INTERVAL", 5*time.Second),
		TransmitQueueSize:   getEnvAsInt("TRANSMIT_QUEUE_SIZE", 1000),
		TransmitRetryCount:  getEnvAsInt("TRANSMIT_RETRY_COUNT", 3),
		TransmitRetryDelay:  getEnvAsDuration("TRANSMIT_RETRY_DELAY", time.Second),
		TransmitHTTPTimeout: getEnvAsDuration("TRANSMIT_HTTP_TIMEOUT", 30*time.Second),
	}
}

// Validate rejects configuration that could corrupt a baseline or score.
// Invalid values fail here, at startup, never deeper in the pipeline.
func (c *Config) Validate() error {
	if c.QualityThreshold < 0 || c.QualityThreshold > 1 {
		return fmt.Errorf("config: QUALITY_THRESHOLD must be in [0,1], got %v", c.QualityThreshold)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("config: WORKER_COUNT must be positive, got %d", c.WorkerCount)
	}
	if c.AnomalyWindowSize < 1 {
		return fmt.Errorf("config: ANOMALY_WINDOW_SIZE must be positive, got %d", c.AnomalyWindowSize)
	}
	if c.AnomalyMinSamples < 2 {
		return fmt.Errorf("config: ANOMALY_MIN_SAMPLES must be at least 2, got %d", c.AnomalyMinSamples)
	}
	if c.AnomalyMinSamples > c.AnomalyWindowSize {
		return fmt.Errorf("config: ANOMALY_MIN_SAMPLES %d exceeds window size %d", c.AnomalyMinSamples, c.AnomalyWindowSize)
	}
	if c.ZScoreThreshold <= 0 {
		return fmt.Errorf("config: Z_SCORE_THRESHOLD must be positive, got %v", c.ZScoreThreshold)
	}
	if c.TransmitQueueSize < 1 {
		return fmt.Errorf("config: TRANSMIT_QUEUE_SIZE must be positive, got %d", c.TransmitQueueSize)
	}
	if c.TransmitBatchSize < 1 {
		return fmt.Errorf("config: TRANSMIT_BATCH_SIZE must be positive, got %d", c.TransmitBatchSize)
	}
	if c.TransmitRetryCount < 0 {
		return fmt.Errorf("config: TRANSMIT_RETRY_COUNT cannot be negative, got %d", c.TransmitRetryCount)
	}
	if !c.UseMemoryQueue && strings.TrimSpace(c.TelemetryQueueURL) == "" {
		return fmt.Errorf("config: TELEMETRY_QUEUE_URL is required unless USE_MEMORY_QUEUE=true")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
