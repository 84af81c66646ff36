// Package alerting delivers operational alert notifications raised by the
// scheduler and the circuit breakers.
package alerting

import (
	"context"

	"go.uber.org/zap"

	domainsync "github.com/erp/agentsync/internal/domain/sync"
)

// LogAlerter implements sync.Alerter by writing structured log entries. It
// is the fallback when no webhook is configured.
type LogAlerter struct {
	logger *zap.Logger
}

// NewLogAlerter creates a log-backed alerter
func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

// Send writes the alert to the log
func (a *LogAlerter) Send(ctx context.Context, alertType domainsync.AlertType, message string, fields map[string]any) {
	zapFields := make([]zap.Field, 0, len(fields)+1)
	zapFields = append(zapFields, zap.String("alert_type", string(alertType)))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	a.logger.Warn(message, zapFields...)
}

// Ensure LogAlerter implements sync.Alerter
var _ domainsync.Alerter = (*LogAlerter)(nil)
