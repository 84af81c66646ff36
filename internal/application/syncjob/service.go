// Package syncjob implements the outbound order synchronization pipeline:
// enqueueing, dispatch with retries, agent callbacks and dead-lettering.
package syncjob

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/agentsync/internal/domain/agent"
	domainsync "github.com/erp/agentsync/internal/domain/sync"
)

// Service is the enqueue and query API for outbound sync jobs
type Service struct {
	jobs       domainsync.JobRepository
	agents     agent.Repository
	maxRetries int
	logger     *zap.Logger
}

// NewService creates a new sync job service
func NewService(jobs domainsync.JobRepository, agents agent.Repository, maxRetries int, logger *zap.Logger) *Service {
	return &Service{
		jobs:       jobs,
		agents:     agents,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Enqueue creates a pending outbound job for a registered vendor. The job
// is picked up by the processor on its next poll.
func (s *Service) Enqueue(ctx context.Context, vendorID string, operation domainsync.OperationKind, payload json.RawMessage, correlationID string) (*domainsync.Job, error) {
	if _, err := s.agents.FindByVendor(ctx, vendorID); err != nil {
		return nil, err
	}

	job, err := domainsync.NewJob(vendorID, operation, payload, correlationID)
	if err != nil {
		return nil, err
	}
	if s.maxRetries > 0 {
		job.MaxRetries = s.maxRetries
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("sync job enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("vendor_id", vendorID),
		zap.String("operation", operation.String()),
		zap.String("correlation_id", correlationID))
	return job, nil
}

// GetJob returns one job by ID
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*domainsync.Job, error) {
	return s.jobs.FindByID(ctx, id)
}

// CleanupExpired purges terminal jobs past their retention deadline
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.jobs.DeleteExpired(ctx, timeNow())
}
