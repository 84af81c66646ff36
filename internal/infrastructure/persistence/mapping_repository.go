package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/agentsync/internal/domain/mapping"
	"github.com/erp/agentsync/internal/infrastructure/persistence/models"
)

// GormMappingRepository implements mapping.Repository using GORM
type GormMappingRepository struct {
	db *gorm.DB
}

// NewGormMappingRepository creates a new GormMappingRepository
func NewGormMappingRepository(db *gorm.DB) *GormMappingRepository {
	return &GormMappingRepository{db: db}
}

// FindActive finds the active entry for (vendor, type, external code)
func (r *GormMappingRepository) FindActive(ctx context.Context, vendorID string, mappingType mapping.Type, externalCode string) (*mapping.Entry, error) {
	var model models.MappingEntryModel
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND type = ? AND external_code = ? AND active = ?",
			vendorID, mappingType.String(), externalCode, true).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mapping.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByID finds an entry by ID
func (r *GormMappingRepository) FindByID(ctx context.Context, id uuid.UUID) (*mapping.Entry, error) {
	var model models.MappingEntryModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mapping.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByVendor lists entries for a vendor, optionally by type
func (r *GormMappingRepository) FindByVendor(ctx context.Context, vendorID string, mappingType *mapping.Type) ([]mapping.Entry, error) {
	query := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID)
	if mappingType != nil {
		query = query.Where("type = ?", mappingType.String())
	}
	var rows []models.MappingEntryModel
	if err := query.
		Order("type ASC, external_code ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]mapping.Entry, 0, len(rows))
	for i := range rows {
		entries = append(entries, *rows[i].ToDomain())
	}
	return entries, nil
}

// Save creates or updates an entry, upserting on the natural key
func (r *GormMappingRepository) Save(ctx context.Context, entry *mapping.Entry) error {
	model := models.MappingEntryModelFromDomain(entry)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "vendor_id"}, {Name: "type"}, {Name: "external_code"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"canonical_code", "canonical_label", "active", "updated_at",
			}),
		}).
		Create(model).Error
}

// SaveBatch creates or updates multiple entries
func (r *GormMappingRepository) SaveBatch(ctx context.Context, entries []*mapping.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]models.MappingEntryModel, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, *models.MappingEntryModelFromDomain(e))
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "vendor_id"}, {Name: "type"}, {Name: "external_code"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"canonical_code", "canonical_label", "active", "updated_at",
			}),
		}).
		Create(&rows).Error
}

// Ensure GormMappingRepository implements mapping.Repository
var _ mapping.Repository = (*GormMappingRepository)(nil)
