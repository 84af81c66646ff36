package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/agentsync/internal/domain/catalog"
)

// CatalogItemModel is the persistence model for the catalog Item entity.
type CatalogItemModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key"`
	VendorID      string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_catalog_items_vendor_sku,priority:1"`
	SKU           string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_catalog_items_vendor_sku,priority:2"`
	Name          string          `gorm:"type:varchar(255)"`
	UnitCode      string          `gorm:"type:varchar(32)"`
	VATCode       string          `gorm:"type:varchar(32)"`
	FamilyCode    string          `gorm:"type:varchar(32)"`
	SubfamilyCode string          `gorm:"type:varchar(32)"`
	Price         decimal.Decimal `gorm:"type:decimal(18,4)"`
	ContentHash   string          `gorm:"type:varchar(64);not null"`
	LastSyncedAt  time.Time       `gorm:"not null"`
	CreatedAt     time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CatalogItemModel) TableName() string {
	return "catalog_items"
}

// ToDomain converts the persistence model to a domain Item entity.
func (m *CatalogItemModel) ToDomain() *catalog.Item {
	return &catalog.Item{
		ID:            m.ID,
		VendorID:      m.VendorID,
		SKU:           m.SKU,
		Name:          m.Name,
		UnitCode:      m.UnitCode,
		VATCode:       m.VATCode,
		FamilyCode:    m.FamilyCode,
		SubfamilyCode: m.SubfamilyCode,
		Price:         m.Price,
		ContentHash:   m.ContentHash,
		LastSyncedAt:  m.LastSyncedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// CatalogItemModelFromDomain creates a persistence model from a domain Item.
func CatalogItemModelFromDomain(item *catalog.Item) *CatalogItemModel {
	return &CatalogItemModel{
		ID:            item.ID,
		VendorID:      item.VendorID,
		SKU:           item.SKU,
		Name:          item.Name,
		UnitCode:      item.UnitCode,
		VATCode:       item.VATCode,
		FamilyCode:    item.FamilyCode,
		SubfamilyCode: item.SubfamilyCode,
		Price:         item.Price,
		ContentHash:   item.ContentHash,
		LastSyncedAt:  item.LastSyncedAt,
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
	}
}

// WarehouseModel is the persistence model for the Warehouse entity.
type WarehouseModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key"`
	VendorID       string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_warehouses_vendor_erp,priority:1"`
	ERPWarehouseID string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_warehouses_vendor_erp,priority:2"`
	Name           string    `gorm:"type:varchar(255)"`
	ContentHash    string    `gorm:"type:varchar(64);not null"`
	LastSyncedAt   time.Time `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WarehouseModel) TableName() string {
	return "warehouses"
}

// ToDomain converts the persistence model to a domain Warehouse entity.
func (m *WarehouseModel) ToDomain() *catalog.Warehouse {
	return &catalog.Warehouse{
		ID:             m.ID,
		VendorID:       m.VendorID,
		ERPWarehouseID: m.ERPWarehouseID,
		Name:           m.Name,
		ContentHash:    m.ContentHash,
		LastSyncedAt:   m.LastSyncedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// WarehouseModelFromDomain creates a persistence model from a domain Warehouse.
func WarehouseModelFromDomain(w *catalog.Warehouse) *WarehouseModel {
	return &WarehouseModel{
		ID:             w.ID,
		VendorID:       w.VendorID,
		ERPWarehouseID: w.ERPWarehouseID,
		Name:           w.Name,
		ContentHash:    w.ContentHash,
		LastSyncedAt:   w.LastSyncedAt,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
	}
}

// StockLevelModel is the persistence model for the StockLevel entity.
type StockLevelModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key"`
	VendorID       string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_stock_levels_key,priority:1"`
	SKU            string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_stock_levels_key,priority:2"`
	ERPWarehouseID string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_stock_levels_key,priority:3"`
	Quantity       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ContentHash    string          `gorm:"type:varchar(64);not null"`
	LastSyncedAt   time.Time       `gorm:"not null"`
	CreatedAt      time.Time       `gorm:"not null"`
	UpdatedAt      time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockLevelModel) TableName() string {
	return "stock_levels"
}

// ToDomain converts the persistence model to a domain StockLevel entity.
func (m *StockLevelModel) ToDomain() *catalog.StockLevel {
	return &catalog.StockLevel{
		ID:             m.ID,
		VendorID:       m.VendorID,
		SKU:            m.SKU,
		ERPWarehouseID: m.ERPWarehouseID,
		Quantity:       m.Quantity,
		ContentHash:    m.ContentHash,
		LastSyncedAt:   m.LastSyncedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// StockLevelModelFromDomain creates a persistence model from a domain StockLevel.
func StockLevelModelFromDomain(s *catalog.StockLevel) *StockLevelModel {
	return &StockLevelModel{
		ID:             s.ID,
		VendorID:       s.VendorID,
		SKU:            s.SKU,
		ERPWarehouseID: s.ERPWarehouseID,
		Quantity:       s.Quantity,
		ContentHash:    s.ContentHash,
		LastSyncedAt:   s.LastSyncedAt,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}
