package sync

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// DeadLetterEntry Entity
// ---------------------------------------------------------------------------

// DeadLetterEntry is the terminal failure record of an exhausted sync job.
// Immutable except for the resolved flag and resolver metadata.
type DeadLetterEntry struct {
	// ID is the unique identifier of this entry
	ID uuid.UUID
	// JobID is the originating job, if known
	JobID *uuid.UUID
	// VendorID identifies the target agent
	VendorID string
	// Operation is the failed operation kind
	Operation OperationKind
	// Payload is the full original job payload
	Payload json.RawMessage
	// FailureReason is the message of the final failure
	FailureReason string
	// FailureStack is the detail/stack of the final failure
	FailureStack string
	// AttemptCount is how many attempts were made before exhaustion
	AttemptCount int
	// Resolved indicates the entry was retried or manually closed
	Resolved bool
	// ResolvedBy is the identity that resolved the entry
	ResolvedBy string
	// CreatedAt is when the entry was created
	CreatedAt time.Time
	// ResolvedAt is when the entry was resolved
	ResolvedAt *time.Time
}

// NewDeadLetterEntry captures an exhausted job as a dead letter entry
func NewDeadLetterEntry(job *Job) *DeadLetterEntry {
	jobID := job.ID
	return &DeadLetterEntry{
		ID:            uuid.New(),
		JobID:         &jobID,
		VendorID:      job.VendorID,
		Operation:     job.Operation,
		Payload:       job.Payload,
		FailureReason: job.ErrorMessage,
		FailureStack:  job.ErrorStack,
		AttemptCount:  job.RetryCount,
		CreatedAt:     time.Now(),
	}
}

// Resolve marks the entry resolved. Idempotent: resolving an already
// resolved entry keeps the original resolver metadata.
func (e *DeadLetterEntry) Resolve(resolvedBy string) {
	if e.Resolved {
		return
	}
	now := time.Now()
	e.Resolved = true
	e.ResolvedBy = resolvedBy
	e.ResolvedAt = &now
}
