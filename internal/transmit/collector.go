// Package transmit implements the client-side delivery pipe: a bounded,
// batching, retrying queue between instrumented call sites and the remote
// collector. Enqueue never blocks the caller; overflow drops are counted.
package transmit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/guardianai/llmguard/internal/telemetry"
	"github.com/guardianai/llmguard/pkg/logging"
)

// BatchSender delivers one batch of records to the collector. Any error is
// treated as retryable by the transmitter.
type BatchSender interface {
	SendBatch(ctx context.Context, records []telemetry.Record) error
}

type batchRequest struct {
	Records []telemetry.Record `json:"records"`
}

// CollectorClient ships record batches to the collector's ingest endpoint.
type CollectorClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// CollectorOption customizes the collector client.
type CollectorOption func(*CollectorClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) CollectorOption {
	return func(c *CollectorClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIKey attaches an ingest API key to every request.
func WithAPIKey(key string) CollectorOption {
	return func(c *CollectorClient) {
		c.apiKey = key
	}
}

// WithCollectorLogger overrides the default logger.
func WithCollectorLogger(logger *logging.Logger) CollectorOption {
	return func(c *CollectorClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCollectorClient creates a client for the given collector base URL.
func NewCollectorClient(baseURL string, opts ...CollectorOption) *CollectorClient {
	if baseURL == "" {
		panic("transmit: collector base URL cannot be empty")
	}
	c := &CollectorClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendBatch posts the records to the ingest endpoint. Any non-2xx status is
// an error so the transmitter retries it.
func (c *CollectorClient) SendBatch(ctx context.Context, records []telemetry.Record) error {
	if len(records) == 0 {
		return nil
	}

	body, err := json.Marshal(batchRequest{Records: records})
	if err != nil {
		return fmt.Errorf("transmit: failed to encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/telemetry/batch", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("transmit: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transmit: collector request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("transmit: collector returned status %d: %s", resp.StatusCode, string(detail))
	}

	c.logger.Debug("telemetry batch delivered", "records", len(records))
	return nil
}
