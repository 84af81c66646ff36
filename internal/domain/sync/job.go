package sync

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	ErrJobNotFound         = errors.New("sync: job not found")
	ErrJobInvalidVendorID  = errors.New("sync: invalid vendor ID")
	ErrJobInvalidOperation = errors.New("sync: invalid operation kind")
	ErrJobInvalidPayload   = errors.New("sync: invalid job payload")
	ErrJobNotProcessing    = errors.New("sync: job is not awaiting completion")
	ErrEntryNotFound       = errors.New("sync: dead letter entry not found")
)

// ---------------------------------------------------------------------------
// OperationKind
// ---------------------------------------------------------------------------

// OperationKind represents the kind of outbound sync operation
type OperationKind string

const (
	// OperationCreateOrder pushes a local order creation to the agent
	OperationCreateOrder OperationKind = "CREATE_ORDER"
	// OperationCancelOrder pushes a local order cancellation to the agent
	OperationCancelOrder OperationKind = "CANCEL_ORDER"
	// OperationUpdateOrderStatus pushes a local order status change to the agent
	OperationUpdateOrderStatus OperationKind = "UPDATE_ORDER_STATUS"
)

// IsValid returns true if the operation kind is valid
func (k OperationKind) IsValid() bool {
	switch k {
	case OperationCreateOrder, OperationCancelOrder, OperationUpdateOrderStatus:
		return true
	default:
		return false
	}
}

// String returns the string representation of OperationKind
func (k OperationKind) String() string {
	return string(k)
}

// Family returns the circuit breaker operation family for this kind.
// All order operations share one breaker per vendor.
func (k OperationKind) Family() string {
	return "order"
}

// ---------------------------------------------------------------------------
// JobStatus
// ---------------------------------------------------------------------------

// JobStatus represents the status of an outbound sync job
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be dispatched
	JobStatusPending JobStatus = "PENDING"
	// JobStatusProcessing indicates the job was dispatched and awaits the agent callback
	JobStatusProcessing JobStatus = "PROCESSING"
	// JobStatusCompleted indicates the agent confirmed the operation
	JobStatusCompleted JobStatus = "COMPLETED"
	// JobStatusFailed indicates the retry budget is exhausted
	JobStatusFailed JobStatus = "FAILED"
)

// IsValid returns true if the status is valid
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status is a final state
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// String returns the string representation of JobStatus
func (s JobStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Job Entity
// ---------------------------------------------------------------------------

// DefaultMaxRetries is the total attempt budget for an outbound job
const DefaultMaxRetries = 5

// DefaultRetryBaseDelay is the base delay for exponential retry backoff
const DefaultRetryBaseDelay = time.Minute

// DefaultJobRetention is how long a job row is kept before cleanup
const DefaultJobRetention = 7 * 24 * time.Hour

// Job represents one outbound synchronization attempt towards an agent.
// Dispatch is fire-and-forget: a successful call leaves the job in
// PROCESSING until the agent calls back with the terminal outcome.
type Job struct {
	// ID is the unique identifier of this job
	ID uuid.UUID
	// VendorID identifies the target agent
	VendorID string
	// Operation is the outbound operation kind
	Operation OperationKind
	// Payload is the opaque operation payload forwarded to the agent
	Payload json.RawMessage
	// Status is the job lifecycle status
	Status JobStatus
	// RetryCount is the number of failed attempts so far
	RetryCount int
	// MaxRetries is the total attempt budget
	MaxRetries int
	// NextRetryAt is when the next attempt becomes due
	NextRetryAt *time.Time
	// ErrorMessage is the message of the last failure
	ErrorMessage string
	// ErrorStack is the detail/stack of the last failure
	ErrorStack string
	// ERPReference is the agent-side reference reported on completion
	ERPReference string
	// CorrelationID ties the job to the originating business event
	CorrelationID string
	// ExpiresAt is when the job is excluded from retry scheduling and purged
	ExpiresAt time.Time
	// CreatedAt is when the job was created
	CreatedAt time.Time
	// StartedAt is when the last attempt started
	StartedAt *time.Time
	// CompletedAt is when the job reached a terminal state
	CompletedAt *time.Time
}

// NewJob creates a pending outbound sync job
func NewJob(vendorID string, operation OperationKind, payload json.RawMessage, correlationID string) (*Job, error) {
	if vendorID == "" {
		return nil, ErrJobInvalidVendorID
	}
	if !operation.IsValid() {
		return nil, ErrJobInvalidOperation
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return nil, ErrJobInvalidPayload
	}

	now := time.Now()
	return &Job{
		ID:            uuid.New(),
		VendorID:      vendorID,
		Operation:     operation,
		Payload:       payload,
		Status:        JobStatusPending,
		MaxRetries:    DefaultMaxRetries,
		CorrelationID: correlationID,
		ExpiresAt:     now.Add(DefaultJobRetention),
		CreatedAt:     now,
	}, nil
}

// Start marks the job as dispatched and awaiting the agent callback
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.StartedAt = &now
	j.NextRetryAt = nil
}

// Complete records the agent's success callback
func (j *Job) Complete(erpReference string) error {
	if j.Status != JobStatusProcessing {
		return ErrJobNotProcessing
	}
	now := time.Now()
	j.Status = JobStatusCompleted
	j.ERPReference = erpReference
	j.CompletedAt = &now
	j.ErrorMessage = ""
	j.ErrorStack = ""
	return nil
}

// RecordFailure records a failed attempt. It either schedules the next
// retry with exponential backoff or, once the budget is exhausted, moves
// the job to its terminal FAILED state. Returns true when exhausted.
func (j *Job) RecordFailure(reason, stack string, baseDelay time.Duration) bool {
	j.RetryCount++
	j.ErrorMessage = reason
	j.ErrorStack = stack

	if j.RetryCount >= j.MaxRetries {
		now := time.Now()
		j.Status = JobStatusFailed
		j.CompletedAt = &now
		j.NextRetryAt = nil
		return true
	}

	// 1m, 2m, 4m, 8m, 16m for the default base delay
	delay := baseDelay << (j.RetryCount - 1)
	next := time.Now().Add(delay)
	j.Status = JobStatusPending
	j.NextRetryAt = &next
	return false
}

// IsExpired returns true if the job passed its retention deadline
func (j *Job) IsExpired(now time.Time) bool {
	return now.After(j.ExpiresAt)
}
