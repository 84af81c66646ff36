package sync

import (
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// ReconciliationEventType
// ---------------------------------------------------------------------------

// ReconciliationEventType classifies reconciliation audit events
type ReconciliationEventType string

const (
	// EventFullChecksum records a checksum comparison that found no drift
	EventFullChecksum ReconciliationEventType = "full_checksum"
	// EventDriftDetected records a catalog checksum mismatch
	EventDriftDetected ReconciliationEventType = "drift_detected"
	// EventDriftResolved records the outcome of conflict resolution
	EventDriftResolved ReconciliationEventType = "drift_resolved"
)

// IsValid returns true if the event type is valid
func (t ReconciliationEventType) IsValid() bool {
	switch t {
	case EventFullChecksum, EventDriftDetected, EventDriftResolved:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// ReconciliationEvent Entity
// ---------------------------------------------------------------------------

// ReconciliationSummary carries the event-type-specific details
type ReconciliationSummary struct {
	// LocalChecksum is the locally computed catalog checksum
	LocalChecksum string `json:"localChecksum,omitempty"`
	// AgentChecksum is the checksum reported by the agent
	AgentChecksum string `json:"agentChecksum,omitempty"`
	// ItemCount is the number of local items covered by the checksum
	ItemCount int `json:"itemCount,omitempty"`
	// DriftedSKUs lists the SKUs found to differ
	DriftedSKUs []string `json:"driftedSkus,omitempty"`
	// ConflictsFound is the number of drifted items discovered
	ConflictsFound int `json:"conflictsFound,omitempty"`
	// ConflictsResolved is the number of drifted items successfully upserted
	ConflictsResolved int `json:"conflictsResolved,omitempty"`
}

// ReconciliationEvent is an append-only audit log entry. Events are never
// updated; aged events are archived, not deleted.
type ReconciliationEvent struct {
	// ID is the unique identifier of this event
	ID uuid.UUID
	// VendorID identifies the reconciled agent
	VendorID string
	// Type classifies the event
	Type ReconciliationEventType
	// Summary carries checksums, item counts and drifted SKUs
	Summary ReconciliationSummary
	// Duration is how long the operation took
	Duration time.Duration
	// Archived marks events moved out of the active window
	Archived bool
	// CreatedAt is when the event was recorded
	CreatedAt time.Time
}

// NewReconciliationEvent creates an audit event
func NewReconciliationEvent(vendorID string, eventType ReconciliationEventType, summary ReconciliationSummary, duration time.Duration) *ReconciliationEvent {
	return &ReconciliationEvent{
		ID:        uuid.New(),
		VendorID:  vendorID,
		Type:      eventType,
		Summary:   summary,
		Duration:  duration,
		CreatedAt: time.Now(),
	}
}
