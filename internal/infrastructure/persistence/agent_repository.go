package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/agentsync/internal/domain/agent"
	"github.com/erp/agentsync/internal/infrastructure/persistence/models"
)

// GormAgentRepository implements agent.Repository using GORM
type GormAgentRepository struct {
	db *gorm.DB
}

// NewGormAgentRepository creates a new GormAgentRepository
func NewGormAgentRepository(db *gorm.DB) *GormAgentRepository {
	return &GormAgentRepository{db: db}
}

// Save creates or updates an agent, upserting on vendor ID
func (r *GormAgentRepository) Save(ctx context.Context, a *agent.Agent) error {
	model := models.AgentModelFromDomain(a)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "vendor_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"base_url", "token_hash", "version", "status",
				"last_heartbeat_at", "updated_at",
			}),
		}).
		Create(model).Error
}

// FindByVendor finds an agent by vendor identifier
func (r *GormAgentRepository) FindByVendor(ctx context.Context, vendorID string) (*agent.Agent, error) {
	var model models.AgentModel
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, agent.ErrAgentNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns all registered agents
func (r *GormAgentRepository) FindAll(ctx context.Context) ([]agent.Agent, error) {
	var rows []models.AgentModel
	if err := r.db.WithContext(ctx).
		Order("vendor_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	agents := make([]agent.Agent, 0, len(rows))
	for i := range rows {
		agents = append(agents, *rows[i].ToDomain())
	}
	return agents, nil
}

// FindByStatuses returns agents whose status is one of the given values
func (r *GormAgentRepository) FindByStatuses(ctx context.Context, statuses []agent.AgentStatus) ([]agent.Agent, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	var rows []models.AgentModel
	if err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("vendor_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	agents := make([]agent.Agent, 0, len(rows))
	for i := range rows {
		agents = append(agents, *rows[i].ToDomain())
	}
	return agents, nil
}

// Delete hard-deletes an agent
func (r *GormAgentRepository) Delete(ctx context.Context, vendorID string) error {
	result := r.db.WithContext(ctx).
		Delete(&models.AgentModel{}, "vendor_id = ?", vendorID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return agent.ErrAgentNotFound
	}
	return nil
}

// Ensure GormAgentRepository implements agent.Repository
var _ agent.Repository = (*GormAgentRepository)(nil)
