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

// GormDeadLetterRepository implements sync.DeadLetterRepository using GORM
type GormDeadLetterRepository struct {
	db *gorm.DB
}

// NewGormDeadLetterRepository creates a new GormDeadLetterRepository
func NewGormDeadLetterRepository(db *gorm.DB) *GormDeadLetterRepository {
	return &GormDeadLetterRepository{db: db}
}

// Create inserts a new entry; never deduplicates
func (r *GormDeadLetterRepository) Create(ctx context.Context, entry *domainsync.DeadLetterEntry) error {
	model := models.DeadLetterModelFromDomain(entry)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByID finds an entry by ID
func (r *GormDeadLetterRepository) FindByID(ctx context.Context, id uuid.UUID) (*domainsync.DeadLetterEntry, error) {
	var model models.DeadLetterModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainsync.ErrEntryNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindUnresolved lists unresolved entries, newest first
func (r *GormDeadLetterRepository) FindUnresolved(ctx context.Context, filter domainsync.DeadLetterFilter) ([]domainsync.DeadLetterEntry, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.DeadLetterModel{}).
		Where("resolved = ?", false)
	if filter.VendorID != "" {
		query = query.Where("vendor_id = ?", filter.VendorID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var rows []models.DeadLetterModel
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	entries := make([]domainsync.DeadLetterEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, *rows[i].ToDomain())
	}
	return entries, total, nil
}

// ExistsForJob reports whether an entry already exists for the job
func (r *GormDeadLetterRepository) ExistsForJob(ctx context.Context, jobID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.DeadLetterModel{}).
		Where("job_id = ?", jobID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountUnresolved counts unresolved entries, optionally per vendor
func (r *GormDeadLetterRepository) CountUnresolved(ctx context.Context, vendorID string) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.DeadLetterModel{}).
		Where("resolved = ?", false)
	if vendorID != "" {
		query = query.Where("vendor_id = ?", vendorID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Save updates an existing entry
func (r *GormDeadLetterRepository) Save(ctx context.Context, entry *domainsync.DeadLetterEntry) error {
	model := models.DeadLetterModelFromDomain(entry)
	return r.db.WithContext(ctx).Save(model).Error
}

// DeleteResolvedBefore purges resolved entries older than the cutoff
func (r *GormDeadLetterRepository) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("resolved = ?", true).
		Where("resolved_at < ?", cutoff).
		Delete(&models.DeadLetterModel{})
	return result.RowsAffected, result.Error
}

// Ensure GormDeadLetterRepository implements sync.DeadLetterRepository
var _ domainsync.DeadLetterRepository = (*GormDeadLetterRepository)(nil)
