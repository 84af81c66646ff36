// Package dlq implements inspection and recovery of dead-lettered sync jobs.
//
// Repository failures in this package are caught, logged, and surfaced as
// null or empty results; the scheduler and admin tooling must keep running
// when the store is briefly unavailable.
package dlq

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainsync "github.com/erp/agentsync/internal/domain/sync"
)

// Service manages the dead letter queue
type Service struct {
	entries domainsync.DeadLetterRepository
	jobs    domainsync.JobRepository
	logger  *zap.Logger
}

// NewService creates a new dead letter queue service
func NewService(entries domainsync.DeadLetterRepository, jobs domainsync.JobRepository, logger *zap.Logger) *Service {
	return &Service{
		entries: entries,
		jobs:    jobs,
		logger:  logger,
	}
}

// ListUnresolved lists open entries, newest first. Returns an empty page on
// repository failure.
func (s *Service) ListUnresolved(ctx context.Context, filter domainsync.DeadLetterFilter) ([]domainsync.DeadLetterEntry, int64) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	entries, total, err := s.entries.FindUnresolved(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list dead letter entries",
			zap.String("vendor_id", filter.VendorID),
			zap.Error(err))
		return nil, 0
	}
	return entries, total
}

// GetDetails returns one entry with its full payload and failure detail,
// or nil when the entry is missing or the lookup fails
func (s *Service) GetDetails(ctx context.Context, id uuid.UUID) *domainsync.DeadLetterEntry {
	entry, err := s.entries.FindByID(ctx, id)
	if err != nil {
		s.logger.Warn("dead letter entry lookup failed",
			zap.String("entry_id", id.String()),
			zap.Error(err))
		return nil
	}
	return entry
}

// UnresolvedCount counts open entries, optionally per vendor. Returns zero
// on repository failure.
func (s *Service) UnresolvedCount(ctx context.Context, vendorID string) int64 {
	count, err := s.entries.CountUnresolved(ctx, vendorID)
	if err != nil {
		s.logger.Error("failed to count dead letter entries",
			zap.String("vendor_id", vendorID),
			zap.Error(err))
		return 0
	}
	return count
}

// Retry resolves the entry and enqueues a fresh job carrying the original
// payload with a reset retry budget. Returns nil when the entry is missing
// or the job could not be enqueued.
func (s *Service) Retry(ctx context.Context, id uuid.UUID, resolvedBy string) *domainsync.Job {
	entry, err := s.entries.FindByID(ctx, id)
	if err != nil {
		s.logger.Warn("dead letter retry aborted, entry lookup failed",
			zap.String("entry_id", id.String()),
			zap.Error(err))
		return nil
	}

	job, err := domainsync.NewJob(entry.VendorID, entry.Operation, entry.Payload, correlationForRetry(entry))
	if err != nil {
		s.logger.Error("dead letter entry carries an unretryable payload",
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err))
		return nil
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		s.logger.Error("failed to enqueue dead letter retry",
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err))
		return nil
	}

	entry.Resolve(resolvedBy)
	if err := s.entries.Save(ctx, entry); err != nil {
		// the retry job is already queued; the entry stays unresolved and
		// can be resolved manually
		s.logger.Error("failed to mark retried dead letter entry resolved",
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err))
	}

	s.logger.Info("dead letter entry retried",
		zap.String("entry_id", entry.ID.String()),
		zap.String("new_job_id", job.ID.String()),
		zap.String("resolved_by", resolvedBy))
	return job
}

// Resolve closes the entry without retrying and returns it, or nil when the
// entry is missing or the update fails. Resolving an already resolved entry
// is a no-op.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, resolvedBy string) *domainsync.DeadLetterEntry {
	entry, err := s.entries.FindByID(ctx, id)
	if err != nil {
		s.logger.Warn("dead letter resolve aborted, entry lookup failed",
			zap.String("entry_id", id.String()),
			zap.Error(err))
		return nil
	}
	if entry.Resolved {
		return entry
	}
	entry.Resolve(resolvedBy)
	if err := s.entries.Save(ctx, entry); err != nil {
		s.logger.Error("failed to resolve dead letter entry",
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err))
		return nil
	}
	s.logger.Info("dead letter entry resolved",
		zap.String("entry_id", entry.ID.String()),
		zap.String("resolved_by", resolvedBy))
	return entry
}

// Cleanup purges resolved entries older than the retention window. Returns
// zero on repository failure.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) int64 {
	cutoff := time.Now().Add(-retention)
	removed, err := s.entries.DeleteResolvedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to purge resolved dead letter entries", zap.Error(err))
		return 0
	}
	if removed > 0 {
		s.logger.Info("resolved dead letter entries purged",
			zap.Int64("removed", removed))
	}
	return removed
}

// correlationForRetry ties the new job back to the dead letter entry
func correlationForRetry(entry *domainsync.DeadLetterEntry) string {
	return "dlq-retry:" + entry.ID.String()
}
