package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/erp/agentsync/internal/domain/agent"
	"github.com/erp/agentsync/internal/domain/catalog"
)

// ---------------------------------------------------------------------------
// AgentClient Port
// ---------------------------------------------------------------------------

// AgentClient defines the port for all outbound communication with vendor
// agents. It is the sole egress point; callers wrap every invocation in the
// circuit breaker. Implementations live in the infrastructure layer.
type AgentClient interface {
	// SendOrder dispatches an outbound order operation to the agent.
	// Fire-and-forget: the agent acknowledges receipt and reports the
	// terminal outcome later through the callback endpoint.
	SendOrder(ctx context.Context, a *agent.Agent, operation OperationKind, payload json.RawMessage, correlationID string) error

	// GetCatalogChecksum requests the agent's whole-catalog checksum and
	// item count
	GetCatalogChecksum(ctx context.Context, a *agent.Agent) (checksum string, itemCount int, err error)

	// GetRangeChecksum requests the agent's checksum for a SKU range
	// (inclusive start, exclusive end; empty end means unbounded)
	GetRangeChecksum(ctx context.Context, a *agent.Agent, startSKU, endSKU string) (string, error)

	// GetItemChecksums returns the content hash of every agent item whose
	// SKU falls inside the range, keyed by SKU
	GetItemChecksums(ctx context.Context, a *agent.Agent, startSKU, endSKU string) (map[string]string, error)

	// GetItems fetches the agent's full records for the given SKUs
	GetItems(ctx context.Context, a *agent.Agent, skus []string) ([]catalog.Item, error)
}

// ---------------------------------------------------------------------------
// Alerter Port
// ---------------------------------------------------------------------------

// AlertType classifies alert notifications
type AlertType string

const (
	AlertAgentOffline        AlertType = "agent_offline"
	AlertDLQEntriesFound     AlertType = "dlq_entries_found"
	AlertCircuitBreakerOpen  AlertType = "circuit_breaker_open"
	AlertReconciliationDrift AlertType = "reconciliation_drift"
)

// Alerter notifies an external channel on notable state transitions.
// Delivery failures are logged and swallowed by implementations; Send never
// propagates errors back into scheduled tasks.
type Alerter interface {
	Send(ctx context.Context, alertType AlertType, message string, fields map[string]any)
}

// ---------------------------------------------------------------------------
// Repositories
// ---------------------------------------------------------------------------

// JobRepository defines the interface for persisting sync jobs
type JobRepository interface {
	// Save creates or updates a job
	Save(ctx context.Context, job *Job) error

	// FindByID finds a job by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Job, error)

	// FindDue returns up to limit pending jobs whose retry time has
	// arrived and that have not expired, oldest first
	FindDue(ctx context.Context, now time.Time, limit int) ([]Job, error)

	// FindStuckProcessing returns jobs dispatched before the deadline that
	// never received a callback
	FindStuckProcessing(ctx context.Context, startedBefore time.Time) ([]Job, error)

	// DeleteExpired purges terminal jobs past their expiry timestamp
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// DeadLetterFilter defines filter criteria for dead letter listings
type DeadLetterFilter struct {
	// VendorID filters by vendor (optional)
	VendorID string
	// Page number (1-indexed)
	Page int
	// Page size
	PageSize int
}

// DeadLetterRepository defines the interface for persisting dead letter entries
type DeadLetterRepository interface {
	// Create inserts a new entry; never deduplicates
	Create(ctx context.Context, entry *DeadLetterEntry) error

	// FindByID finds an entry by ID
	FindByID(ctx context.Context, id uuid.UUID) (*DeadLetterEntry, error)

	// FindUnresolved lists unresolved entries, newest first
	FindUnresolved(ctx context.Context, filter DeadLetterFilter) ([]DeadLetterEntry, int64, error)

	// ExistsForJob reports whether an entry already exists for the job
	ExistsForJob(ctx context.Context, jobID uuid.UUID) (bool, error)

	// CountUnresolved counts unresolved entries, optionally per vendor
	CountUnresolved(ctx context.Context, vendorID string) (int64, error)

	// Save updates an existing entry (resolved flag and resolver metadata)
	Save(ctx context.Context, entry *DeadLetterEntry) error

	// DeleteResolvedBefore purges resolved entries older than the cutoff
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ReconciliationEventRepository defines the interface for the append-only
// reconciliation audit log
type ReconciliationEventRepository interface {
	// Append inserts a new event; events are never updated
	Append(ctx context.Context, event *ReconciliationEvent) error

	// FindByVendor lists recent events for a vendor, newest first
	FindByVendor(ctx context.Context, vendorID string, limit int) ([]ReconciliationEvent, error)

	// ArchiveBefore marks events older than the cutoff as archived
	ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
