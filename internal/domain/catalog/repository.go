package catalog

import "context"

// SKURange is the inclusive-start, exclusive-end SKU range of a vendor's
// catalog. An empty End means unbounded.
type SKURange struct {
	Start string
	End   string
}

// ItemRepository defines the interface for persisting catalog items.
// All writes are row-level upserts keyed on (vendor, SKU).
type ItemRepository interface {
	// FindBySKU finds an item by its natural key
	FindBySKU(ctx context.Context, vendorID, sku string) (*Item, error)

	// FindBySKUs finds items for the given SKUs, keyed by SKU
	FindBySKUs(ctx context.Context, vendorID string, skus []string) (map[string]Item, error)

	// FindInRange returns items whose SKU falls in [start, end), sorted by
	// SKU ascending. An empty end means unbounded.
	FindInRange(ctx context.Context, vendorID, startSKU, endSKU string) ([]Item, error)

	// Bounds returns the min and max SKU of the vendor's catalog
	Bounds(ctx context.Context, vendorID string) (SKURange, error)

	// FindAll returns every item of the vendor, sorted by SKU ascending
	FindAll(ctx context.Context, vendorID string) ([]Item, error)

	// UpsertBatch inserts or updates items on their natural key
	UpsertBatch(ctx context.Context, items []Item) error

	// DeleteBySKUs removes the vendor's items with the given SKUs and
	// returns how many rows were deleted
	DeleteBySKUs(ctx context.Context, vendorID string, skus []string) (int64, error)
}

// WarehouseRepository defines the interface for persisting warehouses
type WarehouseRepository interface {
	// FindByERPID finds a warehouse by its natural key
	FindByERPID(ctx context.Context, vendorID, erpWarehouseID string) (*Warehouse, error)

	// FindByERPIDs finds warehouses for the given IDs, keyed by ERP ID
	FindByERPIDs(ctx context.Context, vendorID string, erpIDs []string) (map[string]Warehouse, error)

	// UpsertBatch inserts or updates warehouses on their natural key
	UpsertBatch(ctx context.Context, warehouses []Warehouse) error
}

// StockRepository defines the interface for persisting stock levels
type StockRepository interface {
	// FindByKeys finds stock levels for the given (SKU, warehouse) pairs,
	// keyed by SKU + "/" + ERPWarehouseID
	FindByKeys(ctx context.Context, vendorID string, keys []StockKey) (map[string]StockLevel, error)

	// UpsertBatch inserts or updates stock levels on their natural key
	UpsertBatch(ctx context.Context, levels []StockLevel) error
}

// StockKey is the natural key of a stock level within a vendor
type StockKey struct {
	SKU            string
	ERPWarehouseID string
}

// String returns the lookup key used by StockRepository.FindByKeys
func (k StockKey) String() string {
	return k.SKU + "/" + k.ERPWarehouseID
}
