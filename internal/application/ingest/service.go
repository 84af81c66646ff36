// Package ingest implements the inbound pipeline that accepts catalog data
// pushed by vendor agents.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/erp/agentsync/internal/domain/catalog"
	domainmapping "github.com/erp/agentsync/internal/domain/mapping"
	"github.com/erp/agentsync/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Modes and limits
// ---------------------------------------------------------------------------

// Mode selects the batch size ceiling of a push
type Mode string

const (
	// ModeIncremental is the regular small-delta push
	ModeIncremental Mode = "incremental"
	// ModeBulk is the initial-load or backfill push
	ModeBulk Mode = "bulk"
)

// IsValid returns true if the mode is valid
func (m Mode) IsValid() bool {
	return m == ModeIncremental || m == ModeBulk
}

// Limits holds the ingest batch ceilings and flush chunk size
type Limits struct {
	// IncrementalBatchLimit is the record ceiling for incremental pushes
	IncrementalBatchLimit int
	// BulkBatchLimit is the record ceiling for bulk pushes
	BulkBatchLimit int
	// FlushChunkSize is the upsert chunk size for staged records
	FlushChunkSize int
}

// ---------------------------------------------------------------------------
// Records and results
// ---------------------------------------------------------------------------

// ItemRecord is one pushed catalog item in vendor-native codes
type ItemRecord struct {
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	UnitCode      string          `json:"unitCode"`
	VATCode       string          `json:"vatCode"`
	FamilyCode    string          `json:"familyCode"`
	SubfamilyCode string          `json:"subfamilyCode"`
	Price         decimal.Decimal `json:"price"`
	ContentHash   string          `json:"contentHash"`
	LastSyncedAt  time.Time       `json:"lastSyncedAt"`
}

// WarehouseRecord is one pushed warehouse
type WarehouseRecord struct {
	ERPWarehouseID string    `json:"erpWarehouseId"`
	Name           string    `json:"name"`
	ContentHash    string    `json:"contentHash"`
	LastSyncedAt   time.Time `json:"lastSyncedAt"`
}

// StockRecord is one pushed stock level
type StockRecord struct {
	SKU            string          `json:"sku"`
	ERPWarehouseID string          `json:"erpWarehouseId"`
	Quantity       decimal.Decimal `json:"quantity"`
	ContentHash    string          `json:"contentHash"`
	LastSyncedAt   time.Time       `json:"lastSyncedAt"`
}

// Outcome classifies the result of one pushed record
type Outcome string

const (
	// OutcomeApplied means the record was upserted
	OutcomeApplied Outcome = "applied"
	// OutcomeNoChanges means the stored content hash already matches
	OutcomeNoChanges Outcome = "no_changes"
	// OutcomeStaleData means the record is older than the stored version
	OutcomeStaleData Outcome = "stale_data"
	// OutcomeMissingMapping means a vendor code has no active translation
	OutcomeMissingMapping Outcome = "missing_mapping"
	// OutcomeInvalid means the record failed basic validation
	OutcomeInvalid Outcome = "invalid"
)

// RecordResult is the per-record outcome of a push
type RecordResult struct {
	// Key is the record's natural key within the batch
	Key string `json:"key"`
	// Outcome classifies the result
	Outcome Outcome `json:"outcome"`
	// Detail carries the failure detail, if any
	Detail string `json:"detail,omitempty"`
}

// BatchResult aggregates a whole push
type BatchResult struct {
	// Results holds the per-record outcomes in input order
	Results []RecordResult `json:"results"`
	// Applied is the number of upserted records
	Applied int `json:"applied"`
	// Skipped is the number of no-change records
	Skipped int `json:"skipped"`
	// Failed is the number of stale, invalid and missing-mapping records
	Failed int `json:"failed"`
}

func (r *BatchResult) add(result RecordResult) {
	r.Results = append(r.Results, result)
	switch result.Outcome {
	case OutcomeApplied:
		r.Applied++
	case OutcomeNoChanges:
		r.Skipped++
	default:
		// stale_data is a data-integrity rejection, same bucket as
		// missing_mapping and invalid
		r.Failed++
	}
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service ingests catalog data pushed by agents
type Service struct {
	items      catalog.ItemRepository
	warehouses catalog.WarehouseRepository
	stock      catalog.StockRepository
	resolver   domainmapping.Resolver
	limits     Limits
	logger     *zap.Logger
}

// NewService creates a new ingest service
func NewService(
	items catalog.ItemRepository,
	warehouses catalog.WarehouseRepository,
	stock catalog.StockRepository,
	resolver domainmapping.Resolver,
	limits Limits,
	logger *zap.Logger,
) *Service {
	return &Service{
		items:      items,
		warehouses: warehouses,
		stock:      stock,
		resolver:   resolver,
		limits:     limits,
		logger:     logger,
	}
}

// checkBatch validates the mode and the batch size ceiling
func (s *Service) checkBatch(mode Mode, size int) error {
	if !mode.IsValid() {
		return shared.ErrInvalidInput
	}
	limit := s.limits.IncrementalBatchLimit
	if mode == ModeBulk {
		limit = s.limits.BulkBatchLimit
	}
	if size > limit {
		return shared.ErrBatchTooLarge
	}
	return nil
}

// IngestItems processes one batch of pushed items. Records are judged
// individually; accepted records are flushed in chunks so one bad record
// never fails the batch.
func (s *Service) IngestItems(ctx context.Context, vendorID string, mode Mode, records []ItemRecord) (*BatchResult, error) {
	if err := s.checkBatch(mode, len(records)); err != nil {
		return nil, err
	}

	skus := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.SKU != "" {
			skus = append(skus, rec.SKU)
		}
	}
	existing, err := s.items.FindBySKUs(ctx, vendorID, skus)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	staged := make([]catalog.Item, 0, len(records))
	for _, rec := range records {
		outcome := s.judgeItem(ctx, vendorID, rec, existing)
		result.add(outcome.result)
		if outcome.item != nil {
			staged = append(staged, *outcome.item)
		}
	}

	if err := s.flushItems(ctx, staged); err != nil {
		return nil, err
	}

	s.logger.Info("item batch ingested",
		zap.String("vendor_id", vendorID),
		zap.String("mode", string(mode)),
		zap.Int("applied", result.Applied),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

// judgedItem pairs the per-record result with the staged row, if accepted
type judgedItem struct {
	result RecordResult
	item   *catalog.Item
}

func (s *Service) judgeItem(ctx context.Context, vendorID string, rec ItemRecord, existing map[string]catalog.Item) judgedItem {
	if rec.SKU == "" || rec.ContentHash == "" {
		return judgedItem{result: RecordResult{
			Key:     rec.SKU,
			Outcome: OutcomeInvalid,
			Detail:  "missing SKU or content hash",
		}}
	}

	if prev, ok := existing[rec.SKU]; ok {
		if rec.LastSyncedAt.Before(prev.LastSyncedAt) {
			return judgedItem{result: RecordResult{Key: rec.SKU, Outcome: OutcomeStaleData}}
		}
		if rec.ContentHash == prev.ContentHash {
			return judgedItem{result: RecordResult{Key: rec.SKU, Outcome: OutcomeNoChanges}}
		}
	}

	translated, missing, err := s.translateCodes(ctx, vendorID, rec)
	if err != nil {
		return judgedItem{result: RecordResult{
			Key:     rec.SKU,
			Outcome: OutcomeInvalid,
			Detail:  err.Error(),
		}}
	}
	if missing != "" {
		return judgedItem{result: RecordResult{
			Key:     rec.SKU,
			Outcome: OutcomeMissingMapping,
			Detail:  missing,
		}}
	}

	now := time.Now()
	item := &catalog.Item{
		ID:            uuid.New(),
		VendorID:      vendorID,
		SKU:           rec.SKU,
		Name:          rec.Name,
		UnitCode:      translated.unit,
		VATCode:       translated.vat,
		FamilyCode:    translated.family,
		SubfamilyCode: translated.subfamily,
		Price:         rec.Price,
		ContentHash:   rec.ContentHash,
		LastSyncedAt:  rec.LastSyncedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if prev, ok := existing[rec.SKU]; ok {
		item.ID = prev.ID
		item.CreatedAt = prev.CreatedAt
	}
	return judgedItem{
		result: RecordResult{Key: rec.SKU, Outcome: OutcomeApplied},
		item:   item,
	}
}

// translatedCodes holds the canonical side of one item's vendor codes
type translatedCodes struct {
	unit, vat, family, subfamily string
}

// translateCodes resolves every non-empty vendor code. The first missing
// translation aborts the record with its description.
func (s *Service) translateCodes(ctx context.Context, vendorID string, rec ItemRecord) (translatedCodes, string, error) {
	var out translatedCodes
	codes := []struct {
		mappingType domainmapping.Type
		external    string
		target      *string
	}{
		{domainmapping.TypeUnit, rec.UnitCode, &out.unit},
		{domainmapping.TypeVAT, rec.VATCode, &out.vat},
		{domainmapping.TypeFamily, rec.FamilyCode, &out.family},
		{domainmapping.TypeSubfamily, rec.SubfamilyCode, &out.subfamily},
	}
	for _, c := range codes {
		if c.external == "" {
			continue
		}
		resolution, err := s.resolver.Resolve(ctx, vendorID, c.mappingType, c.external)
		if err != nil {
			return out, "", err
		}
		if resolution == nil {
			return out, "no active " + c.mappingType.String() + " mapping for code " + c.external, nil
		}
		*c.target = resolution.CanonicalCode
	}
	return out, "", nil
}

// flushItems upserts staged items in chunks
func (s *Service) flushItems(ctx context.Context, staged []catalog.Item) error {
	for start := 0; start < len(staged); start += s.limits.FlushChunkSize {
		end := start + s.limits.FlushChunkSize
		if end > len(staged) {
			end = len(staged)
		}
		if err := s.items.UpsertBatch(ctx, staged[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// IngestWarehouses processes one batch of pushed warehouses
func (s *Service) IngestWarehouses(ctx context.Context, vendorID string, mode Mode, records []WarehouseRecord) (*BatchResult, error) {
	if err := s.checkBatch(mode, len(records)); err != nil {
		return nil, err
	}

	erpIDs := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.ERPWarehouseID != "" {
			erpIDs = append(erpIDs, rec.ERPWarehouseID)
		}
	}
	existing, err := s.warehouses.FindByERPIDs(ctx, vendorID, erpIDs)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	staged := make([]catalog.Warehouse, 0, len(records))
	now := time.Now()
	for _, rec := range records {
		if rec.ERPWarehouseID == "" || rec.ContentHash == "" {
			result.add(RecordResult{
				Key:     rec.ERPWarehouseID,
				Outcome: OutcomeInvalid,
				Detail:  "missing warehouse ID or content hash",
			})
			continue
		}
		if prev, ok := existing[rec.ERPWarehouseID]; ok {
			if rec.LastSyncedAt.Before(prev.LastSyncedAt) {
				result.add(RecordResult{Key: rec.ERPWarehouseID, Outcome: OutcomeStaleData})
				continue
			}
			if rec.ContentHash == prev.ContentHash {
				result.add(RecordResult{Key: rec.ERPWarehouseID, Outcome: OutcomeNoChanges})
				continue
			}
		}
		w := catalog.Warehouse{
			ID:             uuid.New(),
			VendorID:       vendorID,
			ERPWarehouseID: rec.ERPWarehouseID,
			Name:           rec.Name,
			ContentHash:    rec.ContentHash,
			LastSyncedAt:   rec.LastSyncedAt,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if prev, ok := existing[rec.ERPWarehouseID]; ok {
			w.ID = prev.ID
			w.CreatedAt = prev.CreatedAt
		}
		staged = append(staged, w)
		result.add(RecordResult{Key: rec.ERPWarehouseID, Outcome: OutcomeApplied})
	}

	for start := 0; start < len(staged); start += s.limits.FlushChunkSize {
		end := start + s.limits.FlushChunkSize
		if end > len(staged) {
			end = len(staged)
		}
		if err := s.warehouses.UpsertBatch(ctx, staged[start:end]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// IngestStock processes one batch of pushed stock levels
func (s *Service) IngestStock(ctx context.Context, vendorID string, mode Mode, records []StockRecord) (*BatchResult, error) {
	if err := s.checkBatch(mode, len(records)); err != nil {
		return nil, err
	}

	keys := make([]catalog.StockKey, 0, len(records))
	for _, rec := range records {
		if rec.SKU != "" && rec.ERPWarehouseID != "" {
			keys = append(keys, catalog.StockKey{SKU: rec.SKU, ERPWarehouseID: rec.ERPWarehouseID})
		}
	}
	existing, err := s.stock.FindByKeys(ctx, vendorID, keys)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	staged := make([]catalog.StockLevel, 0, len(records))
	now := time.Now()
	for _, rec := range records {
		key := catalog.StockKey{SKU: rec.SKU, ERPWarehouseID: rec.ERPWarehouseID}.String()
		if rec.SKU == "" || rec.ERPWarehouseID == "" || rec.ContentHash == "" {
			result.add(RecordResult{
				Key:     key,
				Outcome: OutcomeInvalid,
				Detail:  "missing SKU, warehouse ID or content hash",
			})
			continue
		}
		if prev, ok := existing[key]; ok {
			if rec.LastSyncedAt.Before(prev.LastSyncedAt) {
				result.add(RecordResult{Key: key, Outcome: OutcomeStaleData})
				continue
			}
			if rec.ContentHash == prev.ContentHash {
				result.add(RecordResult{Key: key, Outcome: OutcomeNoChanges})
				continue
			}
		}
		level := catalog.StockLevel{
			ID:             uuid.New(),
			VendorID:       vendorID,
			SKU:            rec.SKU,
			ERPWarehouseID: rec.ERPWarehouseID,
			Quantity:       rec.Quantity,
			ContentHash:    rec.ContentHash,
			LastSyncedAt:   rec.LastSyncedAt,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if prev, ok := existing[key]; ok {
			level.ID = prev.ID
			level.CreatedAt = prev.CreatedAt
		}
		staged = append(staged, level)
		result.add(RecordResult{Key: key, Outcome: OutcomeApplied})
	}

	for start := 0; start < len(staged); start += s.limits.FlushChunkSize {
		end := start + s.limits.FlushChunkSize
		if end > len(staged) {
			end = len(staged)
		}
		if err := s.stock.UpsertBatch(ctx, staged[start:end]); err != nil {
			return nil, err
		}
	}
	return result, nil
}
