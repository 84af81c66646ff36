package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domainsync "github.com/erp/agentsync/internal/domain/sync"
	"github.com/erp/agentsync/internal/infrastructure/persistence/models"
)

// GormSyncJobRepository implements sync.JobRepository using GORM
type GormSyncJobRepository struct {
	db *gorm.DB
}

// NewGormSyncJobRepository creates a new GormSyncJobRepository
func NewGormSyncJobRepository(db *gorm.DB) *GormSyncJobRepository {
	return &GormSyncJobRepository{db: db}
}

// Save creates or updates a job
func (r *GormSyncJobRepository) Save(ctx context.Context, job *domainsync.Job) error {
	model := models.SyncJobModelFromDomain(job)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID finds a job by ID
func (r *GormSyncJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*domainsync.Job, error) {
	var model models.SyncJobModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainsync.ErrJobNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindDue returns up to limit pending jobs whose retry time has arrived and
// that have not expired, oldest first
func (r *GormSyncJobRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]domainsync.Job, error) {
	var rows []models.SyncJobModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", domainsync.JobStatusPending).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Where("expires_at > ?", now).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	jobs := make([]domainsync.Job, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, *rows[i].ToDomain())
	}
	return jobs, nil
}

// FindStuckProcessing returns jobs dispatched before the deadline that never
// received a callback
func (r *GormSyncJobRepository) FindStuckProcessing(ctx context.Context, startedBefore time.Time) ([]domainsync.Job, error) {
	var rows []models.SyncJobModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", domainsync.JobStatusProcessing).
		Where("started_at IS NOT NULL AND started_at < ?", startedBefore).
		Order("started_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	jobs := make([]domainsync.Job, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, *rows[i].ToDomain())
	}
	return jobs, nil
}

// DeleteExpired purges terminal jobs past their expiry timestamp
func (r *GormSyncJobRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ?", []domainsync.JobStatus{
			domainsync.JobStatusCompleted,
			domainsync.JobStatusFailed,
		}).
		Where("expires_at <= ?", now).
		Delete(&models.SyncJobModel{})
	return result.RowsAffected, result.Error
}

// Ensure GormSyncJobRepository implements sync.JobRepository
var _ domainsync.JobRepository = (*GormSyncJobRepository)(nil)
