package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/guardianai/llmguard/pkg/logging"
)

// Dispatcher delivers alert events to an external destination. Delivery
// failures are never fatal for the record that produced the alert.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert Alert) error
}

// EventDispatcher posts alert events to the alerting platform's events API.
type EventDispatcher struct {
	url        string
	apiKey     string
	appKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// EventDispatcherOption configures an EventDispatcher.
type EventDispatcherOption func(*EventDispatcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) EventDispatcherOption {
	return func(d *EventDispatcher) {
		d.httpClient = client
	}
}

// WithAppKey sets the optional application key header.
func WithAppKey(appKey string) EventDispatcherOption {
	return func(d *EventDispatcher) {
		d.appKey = appKey
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) EventDispatcherOption {
	return func(d *EventDispatcher) {
		d.logger = logger
	}
}

// NewEventDispatcher creates a dispatcher posting to the given events URL.
func NewEventDispatcher(url, apiKey string, opts ...EventDispatcherOption) *EventDispatcher {
	d := &EventDispatcher{
		url:    url,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch posts the alert as a platform event. A missing API key skips the
// send and reports an error the caller is expected to log, not escalate.
func (d *EventDispatcher) Dispatch(ctx context.Context, alert Alert) error {
	if d.apiKey == "" {
		return fmt.Errorf("alerts: no API key configured, skipping dispatch")
	}

	body, err := json.Marshal(alert.ToEvent())
	if err != nil {
		return fmt.Errorf("alerts: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alerts: create event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("DD-API-KEY", d.apiKey)
	if d.appKey != "" {
		req.Header.Set("DD-APPLICATION-KEY", d.appKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("alerts: event request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("alerts: event rejected with status %d: %s", resp.StatusCode, string(respBody))
	}

	d.logger.Info("alert dispatched", "alert_id", alert.AlertID, "priority", alert.Priority)
	return nil
}

// NopDispatcher drops alerts, for deployments without an alerting platform.
type NopDispatcher struct {
	logger *logging.Logger
}

// NewNopDispatcher creates a dispatcher that only logs.
func NewNopDispatcher(logger *logging.Logger) *NopDispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &NopDispatcher{logger: logger}
}

// Dispatch logs the alert and succeeds.
func (d *NopDispatcher) Dispatch(_ context.Context, alert Alert) error {
	d.logger.Info("alert created (dispatch disabled)", "alert_id", alert.AlertID, "title", alert.Title)
	return nil
}
