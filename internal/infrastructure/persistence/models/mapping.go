package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/erp/agentsync/internal/domain/mapping"
)

// MappingEntryModel is the persistence model for the mapping Entry entity.
type MappingEntryModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key"`
	VendorID       string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_mapping_entries_key,priority:1"`
	Type           string    `gorm:"type:varchar(16);not null;uniqueIndex:idx_mapping_entries_key,priority:2"`
	ExternalCode   string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_mapping_entries_key,priority:3"`
	CanonicalCode  string    `gorm:"type:varchar(64);not null"`
	CanonicalLabel string    `gorm:"type:varchar(255)"`
	Active         bool      `gorm:"not null;default:true"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MappingEntryModel) TableName() string {
	return "mapping_entries"
}

// ToDomain converts the persistence model to a domain Entry entity.
func (m *MappingEntryModel) ToDomain() *mapping.Entry {
	return &mapping.Entry{
		ID:             m.ID,
		VendorID:       m.VendorID,
		Type:           mapping.Type(m.Type),
		ExternalCode:   m.ExternalCode,
		CanonicalCode:  m.CanonicalCode,
		CanonicalLabel: m.CanonicalLabel,
		Active:         m.Active,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// MappingEntryModelFromDomain creates a persistence model from a domain Entry.
func MappingEntryModelFromDomain(e *mapping.Entry) *MappingEntryModel {
	return &MappingEntryModel{
		ID:             e.ID,
		VendorID:       e.VendorID,
		Type:           e.Type.String(),
		ExternalCode:   e.ExternalCode,
		CanonicalCode:  e.CanonicalCode,
		CanonicalLabel: e.CanonicalLabel,
		Active:         e.Active,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}
