package alerts

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/guardianai/llmguard/pkg/logging"
)

// EmailNotifier escalates P1 and P2 alerts to an on-call address via
// SendGrid. Lower priorities are ignored.
type EmailNotifier struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	toEmail   string
	logger    *logging.Logger
}

// EmailConfig holds SendGrid settings for alert escalation.
type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	ToEmail   string
}

// NewEmailNotifier creates a notifier. Returns nil when no API key or
// recipient is configured; callers treat a nil notifier as disabled.
func NewEmailNotifier(cfg EmailConfig, logger *logging.Logger) *EmailNotifier {
	if cfg.APIKey == "" || cfg.ToEmail == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "LLMGuard"
	}
	return &EmailNotifier{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		toEmail:   cfg.ToEmail,
		logger:    logger,
	}
}

// Notify emails the alert when its priority warrants escalation. A nil
// receiver is a no-op so callers can wire it unconditionally.
func (n *EmailNotifier) Notify(ctx context.Context, alert Alert) error {
	if n == nil {
		return nil
	}
	if alert.Priority != PriorityP1 && alert.Priority != PriorityP2 {
		return nil
	}

	body := alert.Message
	if alert.Remediation != "" {
		body += "\n\nSuggested remediation:\n" + alert.Remediation
	}

	from := mail.NewEmail(n.fromName, n.fromEmail)
	to := mail.NewEmail("", n.toEmail)
	message := mail.NewSingleEmail(from, alert.Title, to, body, body)

	response, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		n.logger.Error("alert email send failed", "error", err, "alert_id", alert.AlertID)
		return fmt.Errorf("alerts: email send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		n.logger.Error("alert email rejected", "status", response.StatusCode, "alert_id", alert.AlertID)
		return fmt.Errorf("alerts: email rejected with status %d", response.StatusCode)
	}

	n.logger.Info("alert escalated by email", "alert_id", alert.AlertID, "priority", alert.Priority)
	return nil
}
