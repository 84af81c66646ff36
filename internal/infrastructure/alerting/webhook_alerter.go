package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	domainsync "github.com/erp/agentsync/internal/domain/sync"
)

// webhookPayload is the JSON body posted to the alert webhook
type webhookPayload struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
	SentAt  time.Time      `json:"sentAt"`
}

// WebhookAlerter implements sync.Alerter by posting JSON to a webhook.
// Delivery failures are logged and swallowed; alerting never propagates
// errors into the tasks that raise alerts.
type WebhookAlerter struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWebhookAlerter creates a webhook-backed alerter
func NewWebhookAlerter(url string, timeout time.Duration, logger *zap.Logger) *WebhookAlerter {
	return &WebhookAlerter{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Send posts the alert to the webhook
func (a *WebhookAlerter) Send(ctx context.Context, alertType domainsync.AlertType, message string, fields map[string]any) {
	payload := webhookPayload{
		Type:    string(alertType),
		Message: message,
		Fields:  fields,
		SentAt:  time.Now(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		a.logger.Error("failed to encode alert payload",
			zap.String("alert_type", string(alertType)),
			zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		a.logger.Error("failed to create alert request",
			zap.String("alert_type", string(alertType)),
			zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Error("alert webhook delivery failed",
			zap.String("alert_type", string(alertType)),
			zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		a.logger.Error("alert webhook returned error status",
			zap.String("alert_type", string(alertType)),
			zap.Int("status", resp.StatusCode))
		return
	}
	a.logger.Debug("alert delivered",
		zap.String("alert_type", string(alertType)),
		zap.String("message", message))
}

// Ensure WebhookAlerter implements sync.Alerter
var _ domainsync.Alerter = (*WebhookAlerter)(nil)
