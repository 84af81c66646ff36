package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	domainsync "github.com/erp/agentsync/internal/domain/sync"
)

// SyncJobModel is the persistence model for the sync Job entity.
type SyncJobModel struct {
	ID            uuid.UUID                `gorm:"type:uuid;primary_key"`
	VendorID      string                   `gorm:"type:varchar(64);not null;index:idx_sync_jobs_vendor"`
	Operation     domainsync.OperationKind `gorm:"type:varchar(32);not null"`
	Payload       string                   `gorm:"type:jsonb;not null"`
	Status        domainsync.JobStatus     `gorm:"type:varchar(16);not null;index:idx_sync_jobs_status_retry,priority:1"`
	RetryCount    int                      `gorm:"not null;default:0"`
	MaxRetries    int                      `gorm:"not null"`
	NextRetryAt   *time.Time               `gorm:"index:idx_sync_jobs_status_retry,priority:2"`
	ErrorMessage  string                   `gorm:"type:text"`
	ErrorStack    string                   `gorm:"type:text"`
	ERPReference  string                   `gorm:"type:varchar(128)"`
	CorrelationID string                   `gorm:"type:varchar(64);index"`
	ExpiresAt     time.Time                `gorm:"not null;index"`
	CreatedAt     time.Time                `gorm:"not null"`
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// TableName returns the table name for GORM
func (SyncJobModel) TableName() string {
	return "sync_jobs"
}

// ToDomain converts the persistence model to a domain Job entity.
func (m *SyncJobModel) ToDomain() *domainsync.Job {
	return &domainsync.Job{
		ID:            m.ID,
		VendorID:      m.VendorID,
		Operation:     m.Operation,
		Payload:       json.RawMessage(m.Payload),
		Status:        m.Status,
		RetryCount:    m.RetryCount,
		MaxRetries:    m.MaxRetries,
		NextRetryAt:   m.NextRetryAt,
		ErrorMessage:  m.ErrorMessage,
		ErrorStack:    m.ErrorStack,
		ERPReference:  m.ERPReference,
		CorrelationID: m.CorrelationID,
		ExpiresAt:     m.ExpiresAt,
		CreatedAt:     m.CreatedAt,
		StartedAt:     m.StartedAt,
		CompletedAt:   m.CompletedAt,
	}
}

// SyncJobModelFromDomain creates a persistence model from a domain Job entity.
func SyncJobModelFromDomain(j *domainsync.Job) *SyncJobModel {
	return &SyncJobModel{
		ID:            j.ID,
		VendorID:      j.VendorID,
		Operation:     j.Operation,
		Payload:       string(j.Payload),
		Status:        j.Status,
		RetryCount:    j.RetryCount,
		MaxRetries:    j.MaxRetries,
		NextRetryAt:   j.NextRetryAt,
		ErrorMessage:  j.ErrorMessage,
		ErrorStack:    j.ErrorStack,
		ERPReference:  j.ERPReference,
		CorrelationID: j.CorrelationID,
		ExpiresAt:     j.ExpiresAt,
		CreatedAt:     j.CreatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
	}
}

// DeadLetterModel is the persistence model for the DeadLetterEntry entity.
type DeadLetterModel struct {
	ID            uuid.UUID                `gorm:"type:uuid;primary_key"`
	JobID         *uuid.UUID               `gorm:"type:uuid;index:idx_dead_letters_job"`
	VendorID      string                   `gorm:"type:varchar(64);not null;index:idx_dead_letters_vendor"`
	Operation     domainsync.OperationKind `gorm:"type:varchar(32);not null"`
	Payload       string                   `gorm:"type:jsonb;not null"`
	FailureReason string                   `gorm:"type:text"`
	FailureStack  string                   `gorm:"type:text"`
	AttemptCount  int                      `gorm:"not null"`
	Resolved      bool                     `gorm:"not null;default:false;index:idx_dead_letters_resolved"`
	ResolvedBy    string                   `gorm:"type:varchar(64)"`
	CreatedAt     time.Time                `gorm:"not null"`
	ResolvedAt    *time.Time
}

// TableName returns the table name for GORM
func (DeadLetterModel) TableName() string {
	return "dead_letter_entries"
}

// ToDomain converts the persistence model to a domain DeadLetterEntry entity.
func (m *DeadLetterModel) ToDomain() *domainsync.DeadLetterEntry {
	return &domainsync.DeadLetterEntry{
		ID:            m.ID,
		JobID:         m.JobID,
		VendorID:      m.VendorID,
		Operation:     m.Operation,
		Payload:       json.RawMessage(m.Payload),
		FailureReason: m.FailureReason,
		FailureStack:  m.FailureStack,
		AttemptCount:  m.AttemptCount,
		Resolved:      m.Resolved,
		ResolvedBy:    m.ResolvedBy,
		CreatedAt:     m.CreatedAt,
		ResolvedAt:    m.ResolvedAt,
	}
}

// DeadLetterModelFromDomain creates a persistence model from a domain entity.
func DeadLetterModelFromDomain(e *domainsync.DeadLetterEntry) *DeadLetterModel {
	return &DeadLetterModel{
		ID:            e.ID,
		JobID:         e.JobID,
		VendorID:      e.VendorID,
		Operation:     e.Operation,
		Payload:       string(e.Payload),
		FailureReason: e.FailureReason,
		FailureStack:  e.FailureStack,
		AttemptCount:  e.AttemptCount,
		Resolved:      e.Resolved,
		ResolvedBy:    e.ResolvedBy,
		CreatedAt:     e.CreatedAt,
		ResolvedAt:    e.ResolvedAt,
	}
}

// ReconciliationEventModel is the persistence model for reconciliation
// audit events. Append-only; rows are archived, never updated otherwise.
type ReconciliationEventModel struct {
	ID         uuid.UUID                          `gorm:"type:uuid;primary_key"`
	VendorID   string                             `gorm:"type:varchar(64);not null;index:idx_recon_events_vendor"`
	Type       domainsync.ReconciliationEventType `gorm:"type:varchar(32);not null"`
	Summary    string                             `gorm:"type:jsonb"`
	DurationMS int64                              `gorm:"not null;column:duration_ms"`
	Archived   bool                               `gorm:"not null;default:false;index"`
	CreatedAt  time.Time                          `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (ReconciliationEventModel) TableName() string {
	return "reconciliation_events"
}

// ToDomain converts the persistence model to a domain event.
func (m *ReconciliationEventModel) ToDomain() *domainsync.ReconciliationEvent {
	event := &domainsync.ReconciliationEvent{
		ID:        m.ID,
		VendorID:  m.VendorID,
		Type:      m.Type,
		Duration:  time.Duration(m.DurationMS) * time.Millisecond,
		Archived:  m.Archived,
		CreatedAt: m.CreatedAt,
	}
	if m.Summary != "" {
		var summary domainsync.ReconciliationSummary
		if err := json.Unmarshal([]byte(m.Summary), &summary); err == nil {
			event.Summary = summary
		}
	}
	return event
}

// ReconciliationEventModelFromDomain creates a persistence model from a domain event.
func ReconciliationEventModelFromDomain(e *domainsync.ReconciliationEvent) *ReconciliationEventModel {
	m := &ReconciliationEventModel{
		ID:         e.ID,
		VendorID:   e.VendorID,
		Type:       e.Type,
		DurationMS: e.Duration.Milliseconds(),
		Archived:   e.Archived,
		CreatedAt:  e.CreatedAt,
	}
	if jsonBytes, err := json.Marshal(e.Summary); err == nil {
		m.Summary = string(jsonBytes)
	}
	return m
}
