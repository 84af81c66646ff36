package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/agentsync/internal/domain/catalog"
	"github.com/erp/agentsync/internal/infrastructure/persistence/models"
)

// ---------------------------------------------------------------------------
// Items
// ---------------------------------------------------------------------------

// GormCatalogItemRepository implements catalog.ItemRepository using GORM
type GormCatalogItemRepository struct {
	db *gorm.DB
}

// NewGormCatalogItemRepository creates a new GormCatalogItemRepository
func NewGormCatalogItemRepository(db *gorm.DB) *GormCatalogItemRepository {
	return &GormCatalogItemRepository{db: db}
}

// FindBySKU finds an item by its natural key
func (r *GormCatalogItemRepository) FindBySKU(ctx context.Context, vendorID, sku string) (*catalog.Item, error) {
	var model models.CatalogItemModel
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND sku = ?", vendorID, sku).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrItemNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindBySKUs finds items for the given SKUs, keyed by SKU
func (r *GormCatalogItemRepository) FindBySKUs(ctx context.Context, vendorID string, skus []string) (map[string]catalog.Item, error) {
	result := make(map[string]catalog.Item, len(skus))
	if len(skus) == 0 {
		return result, nil
	}
	var rows []models.CatalogItemModel
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND sku IN ?", vendorID, skus).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		result[rows[i].SKU] = *rows[i].ToDomain()
	}
	return result, nil
}

// FindInRange returns items whose SKU falls in [start, end), sorted by SKU
// ascending. An empty end means unbounded.
func (r *GormCatalogItemRepository) FindInRange(ctx context.Context, vendorID, startSKU, endSKU string) ([]catalog.Item, error) {
	query := r.db.WithContext(ctx).
		Where("vendor_id = ? AND sku >= ?", vendorID, startSKU)
	if endSKU != "" {
		query = query.Where("sku < ?", endSKU)
	}
	var rows []models.CatalogItemModel
	if err := query.Order("sku ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]catalog.Item, 0, len(rows))
	for i := range rows {
		items = append(items, *rows[i].ToDomain())
	}
	return items, nil
}

// Bounds returns the min and max SKU of the vendor's catalog
func (r *GormCatalogItemRepository) Bounds(ctx context.Context, vendorID string) (catalog.SKURange, error) {
	var bounds struct {
		MinSKU string
		MaxSKU string
	}
	if err := r.db.WithContext(ctx).
		Model(&models.CatalogItemModel{}).
		Select("MIN(sku) AS min_sku, MAX(sku) AS max_sku").
		Where("vendor_id = ?", vendorID).
		Scan(&bounds).Error; err != nil {
		return catalog.SKURange{}, err
	}
	return catalog.SKURange{Start: bounds.MinSKU, End: bounds.MaxSKU}, nil
}

// FindAll returns every item of the vendor, sorted by SKU ascending
func (r *GormCatalogItemRepository) FindAll(ctx context.Context, vendorID string) ([]catalog.Item, error) {
	var rows []models.CatalogItemModel
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("sku ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]catalog.Item, 0, len(rows))
	for i := range rows {
		items = append(items, *rows[i].ToDomain())
	}
	return items, nil
}

// UpsertBatch inserts or updates items on their natural key
func (r *GormCatalogItemRepository) UpsertBatch(ctx context.Context, items []catalog.Item) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]models.CatalogItemModel, 0, len(items))
	for i := range items {
		rows = append(rows, *models.CatalogItemModelFromDomain(&items[i]))
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "vendor_id"}, {Name: "sku"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "unit_code", "vat_code", "family_code",
				"subfamily_code", "price", "content_hash",
				"last_synced_at", "updated_at",
			}),
		}).
		Create(&rows).Error
}

// DeleteBySKUs removes the vendor's items with the given SKUs
func (r *GormCatalogItemRepository) DeleteBySKUs(ctx context.Context, vendorID string, skus []string) (int64, error) {
	if len(skus) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Where("vendor_id = ? AND sku IN ?", vendorID, skus).
		Delete(&models.CatalogItemModel{})
	return result.RowsAffected, result.Error
}

// Ensure GormCatalogItemRepository implements catalog.ItemRepository
var _ catalog.ItemRepository = (*GormCatalogItemRepository)(nil)

// ---------------------------------------------------------------------------
// Warehouses
// ---------------------------------------------------------------------------

// GormWarehouseRepository implements catalog.WarehouseRepository using GORM
type GormWarehouseRepository struct {
	db *gorm.DB
}

// NewGormWarehouseRepository creates a new GormWarehouseRepository
func NewGormWarehouseRepository(db *gorm.DB) *GormWarehouseRepository {
	return &GormWarehouseRepository{db: db}
}

// FindByERPID finds a warehouse by its natural key
func (r *GormWarehouseRepository) FindByERPID(ctx context.Context, vendorID, erpWarehouseID string) (*catalog.Warehouse, error) {
	var model models.WarehouseModel
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND erp_warehouse_id = ?", vendorID, erpWarehouseID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrWarehouseNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByERPIDs finds warehouses for the given IDs, keyed by ERP ID
func (r *GormWarehouseRepository) FindByERPIDs(ctx context.Context, vendorID string, erpIDs []string) (map[string]catalog.Warehouse, error) {
	result := make(map[string]catalog.Warehouse, len(erpIDs))
	if len(erpIDs) == 0 {
		return result, nil
	}
	var rows []models.WarehouseModel
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND erp_warehouse_id IN ?", vendorID, erpIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		result[rows[i].ERPWarehouseID] = *rows[i].ToDomain()
	}
	return result, nil
}

// UpsertBatch inserts or updates warehouses on their natural key
func (r *GormWarehouseRepository) UpsertBatch(ctx context.Context, warehouses []catalog.Warehouse) error {
	if len(warehouses) == 0 {
		return nil
	}
	rows := make([]models.WarehouseModel, 0, len(warehouses))
	for i := range warehouses {
		rows = append(rows, *models.WarehouseModelFromDomain(&warehouses[i]))
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "vendor_id"}, {Name: "erp_warehouse_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "content_hash", "last_synced_at", "updated_at",
			}),
		}).
		Create(&rows).Error
}

// Ensure GormWarehouseRepository implements catalog.WarehouseRepository
var _ catalog.WarehouseRepository = (*GormWarehouseRepository)(nil)

// ---------------------------------------------------------------------------
// Stock levels
// ---------------------------------------------------------------------------

// GormStockRepository implements catalog.StockRepository using GORM
type GormStockRepository struct {
	db *gorm.DB
}

// NewGormStockRepository creates a new GormStockRepository
func NewGormStockRepository(db *gorm.DB) *GormStockRepository {
	return &GormStockRepository{db: db}
}

// FindByKeys finds stock levels for the given (SKU, warehouse) pairs
func (r *GormStockRepository) FindByKeys(ctx context.Context, vendorID string, keys []catalog.StockKey) (map[string]catalog.StockLevel, error) {
	result := make(map[string]catalog.StockLevel, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	// Over-fetch on SKU and filter the exact pairs in memory; key lists are
	// batch-sized so the candidate set stays small.
	skus := make([]string, 0, len(keys))
	wanted := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		skus = append(skus, k.SKU)
		wanted[k.String()] = struct{}{}
	}
	var rows []models.StockLevelModel
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND sku IN ?", vendorID, skus).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		key := catalog.StockKey{SKU: rows[i].SKU, ERPWarehouseID: rows[i].ERPWarehouseID}.String()
		if _, ok := wanted[key]; ok {
			result[key] = *rows[i].ToDomain()
		}
	}
	return result, nil
}

// UpsertBatch inserts or updates stock levels on their natural key
func (r *GormStockRepository) UpsertBatch(ctx context.Context, levels []catalog.StockLevel) error {
	if len(levels) == 0 {
		return nil
	}
	rows := make([]models.StockLevelModel, 0, len(levels))
	for i := range levels {
		rows = append(rows, *models.StockLevelModelFromDomain(&levels[i]))
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "vendor_id"}, {Name: "sku"}, {Name: "erp_warehouse_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"quantity", "content_hash", "last_synced_at", "updated_at",
			}),
		}).
		Create(&rows).Error
}

// Ensure GormStockRepository implements catalog.StockRepository
var _ catalog.StockRepository = (*GormStockRepository)(nil)
