package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/erp/agentsync/internal/domain/agent"
)

// AgentModel is the persistence model for the Agent domain entity.
type AgentModel struct {
	ID              uuid.UUID         `gorm:"type:uuid;primary_key"`
	VendorID        string            `gorm:"type:varchar(64);not null;uniqueIndex:idx_agents_vendor"`
	BaseURL         string            `gorm:"type:varchar(255);not null"`
	TokenHash       string            `gorm:"type:varchar(128);not null"`
	Version         string            `gorm:"type:varchar(32)"`
	Status          agent.AgentStatus `gorm:"type:varchar(16);not null;index"`
	LastHeartbeatAt time.Time         `gorm:"not null;index"`
	CreatedAt       time.Time         `gorm:"not null"`
	UpdatedAt       time.Time         `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AgentModel) TableName() string {
	return "agents"
}

// ToDomain converts the persistence model to a domain Agent entity.
func (m *AgentModel) ToDomain() *agent.Agent {
	return &agent.Agent{
		ID:              m.ID,
		VendorID:        m.VendorID,
		BaseURL:         m.BaseURL,
		TokenHash:       m.TokenHash,
		Version:         m.Version,
		Status:          m.Status,
		LastHeartbeatAt: m.LastHeartbeatAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// AgentModelFromDomain creates a persistence model from a domain Agent entity.
func AgentModelFromDomain(a *agent.Agent) *AgentModel {
	return &AgentModel{
		ID:              a.ID,
		VendorID:        a.VendorID,
		BaseURL:         a.BaseURL,
		TokenHash:       a.TokenHash,
		Version:         a.Version,
		Status:          a.Status,
		LastHeartbeatAt: a.LastHeartbeatAt,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}
