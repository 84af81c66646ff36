package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	ErrItemNotFound      = errors.New("catalog: item not found")
	ErrWarehouseNotFound = errors.New("catalog: warehouse not found")
	ErrInvalidSKU        = errors.New("catalog: invalid SKU")
	ErrInvalidVendorID   = errors.New("catalog: invalid vendor ID")
	ErrEmptyContentHash  = errors.New("catalog: empty content hash")
)

// ---------------------------------------------------------------------------
// Item Entity
// ---------------------------------------------------------------------------

// Item is one canonical catalog item owned jointly by the ingest pipeline
// (writes on agent push) and the reconciliation engine (overwrites on
// detected drift, agent data wins). Natural key is (vendor, SKU).
type Item struct {
	// ID is the unique identifier of this record
	ID uuid.UUID
	// VendorID identifies the owning vendor agent
	VendorID string
	// SKU is the vendor-scoped stock keeping unit
	SKU string
	// Name is the item display name
	Name string
	// UnitCode is the canonical unit of measure code
	UnitCode string
	// VATCode is the canonical VAT rate code
	VATCode string
	// FamilyCode is the canonical product family code
	FamilyCode string
	// SubfamilyCode is the canonical product subfamily code
	SubfamilyCode string
	// Price is the unit price
	Price decimal.Decimal
	// ContentHash is the digest of the item's meaningful fields
	ContentHash string
	// LastSyncedAt is the agent-side timestamp of the accepted version
	LastSyncedAt time.Time
	// CreatedAt is when this record was created
	CreatedAt time.Time
	// UpdatedAt is when this record was last updated
	UpdatedAt time.Time
}

// Warehouse is one agent-reported warehouse. Natural key is
// (vendor, ERPWarehouseID).
type Warehouse struct {
	// ID is the unique identifier of this record
	ID uuid.UUID
	// VendorID identifies the owning vendor agent
	VendorID string
	// ERPWarehouseID is the warehouse identifier on the agent side
	ERPWarehouseID string
	// Name is the warehouse display name
	Name string
	// ContentHash is the digest of the warehouse's meaningful fields
	ContentHash string
	// LastSyncedAt is the agent-side timestamp of the accepted version
	LastSyncedAt time.Time
	// CreatedAt is when this record was created
	CreatedAt time.Time
	// UpdatedAt is when this record was last updated
	UpdatedAt time.Time
}

// StockLevel is the stock quantity of one item in one warehouse. Natural
// key is (vendor, SKU, ERPWarehouseID).
type StockLevel struct {
	// ID is the unique identifier of this record
	ID uuid.UUID
	// VendorID identifies the owning vendor agent
	VendorID string
	// SKU is the vendor-scoped stock keeping unit
	SKU string
	// ERPWarehouseID is the warehouse identifier on the agent side
	ERPWarehouseID string
	// Quantity is the available quantity
	Quantity decimal.Decimal
	// ContentHash is the digest of the record's meaningful fields
	ContentHash string
	// LastSyncedAt is the agent-side timestamp of the accepted version
	LastSyncedAt time.Time
	// CreatedAt is when this record was created
	CreatedAt time.Time
	// UpdatedAt is when this record was last updated
	UpdatedAt time.Time
}
