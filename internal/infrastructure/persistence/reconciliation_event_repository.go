package persistence

import (
	"context"
	"time"

	"gorm.io/gorm"

	domainsync "github.com/erp/agentsync/internal/domain/sync"
	"github.com/erp/agentsync/internal/infrastructure/persistence/models"
)

// GormReconciliationEventRepository implements
// sync.ReconciliationEventRepository using GORM
type GormReconciliationEventRepository struct {
	db *gorm.DB
}

// NewGormReconciliationEventRepository creates a new GormReconciliationEventRepository
func NewGormReconciliationEventRepository(db *gorm.DB) *GormReconciliationEventRepository {
	return &GormReconciliationEventRepository{db: db}
}

// Append inserts a new event
func (r *GormReconciliationEventRepository) Append(ctx context.Context, event *domainsync.ReconciliationEvent) error {
	model := models.ReconciliationEventModelFromDomain(event)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByVendor lists recent events for a vendor, newest first
func (r *GormReconciliationEventRepository) FindByVendor(ctx context.Context, vendorID string, limit int) ([]domainsync.ReconciliationEvent, error) {
	var rows []models.ReconciliationEventModel
	query := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	events := make([]domainsync.ReconciliationEvent, 0, len(rows))
	for i := range rows {
		events = append(events, *rows[i].ToDomain())
	}
	return events, nil
}

// ArchiveBefore marks events older than the cutoff as archived
func (r *GormReconciliationEventRepository) ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ReconciliationEventModel{}).
		Where("archived = ?", false).
		Where("created_at < ?", cutoff).
		Update("archived", true)
	return result.RowsAffected, result.Error
}

// Ensure interface compliance
var _ domainsync.ReconciliationEventRepository = (*GormReconciliationEventRepository)(nil)
