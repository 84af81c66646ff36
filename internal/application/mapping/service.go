// Package mapping implements vendor code translation with a read-through
// cache in front of the mapping repository.
package mapping

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainmapping "github.com/erp/agentsync/internal/domain/mapping"
	"github.com/erp/agentsync/internal/infrastructure/cache"
)

// Service resolves and administers mapping entries. It implements
// mapping.Resolver for the ingest pipeline.
type Service struct {
	repo   domainmapping.Repository
	cache  cache.TranslationCache
	logger *zap.Logger
}

// NewService creates a new mapping service
func NewService(repo domainmapping.Repository, translationCache cache.TranslationCache, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  translationCache,
		logger: logger,
	}
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

// Resolve translates a vendor code to its canonical form. Cache hits skip
// the repository; misses fall through and populate the cache. Returns nil
// when no active mapping exists.
func (s *Service) Resolve(ctx context.Context, vendorID string, mappingType domainmapping.Type, externalCode string) (*domainmapping.Resolution, error) {
	key := cache.Key(vendorID, mappingType, externalCode)

	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("translation cache read failed",
			zap.String("key", key),
			zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}

	entry, err := s.repo.FindActive(ctx, vendorID, mappingType, externalCode)
	if err != nil {
		if errors.Is(err, domainmapping.ErrMappingNotFound) {
			return nil, nil
		}
		return nil, err
	}

	resolution := &domainmapping.Resolution{
		CanonicalCode:  entry.CanonicalCode,
		CanonicalLabel: entry.CanonicalLabel,
	}
	if err := s.cache.Set(ctx, key, resolution); err != nil {
		s.logger.Warn("translation cache write failed",
			zap.String("key", key),
			zap.Error(err))
	}
	return resolution, nil
}

// CacheStats returns the translation cache counters
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// ---------------------------------------------------------------------------
// Administration
// ---------------------------------------------------------------------------

// Create creates or replaces the mapping for a (vendor, type, code) key and
// invalidates its cached translation
func (s *Service) Create(ctx context.Context, vendorID string, mappingType domainmapping.Type, externalCode, canonicalCode, canonicalLabel string) (*domainmapping.Entry, error) {
	entry, err := domainmapping.NewEntry(vendorID, mappingType, externalCode, canonicalCode, canonicalLabel)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, entry); err != nil {
		return nil, err
	}
	s.invalidate(ctx, vendorID, mappingType, externalCode)
	return entry, nil
}

// Update rewrites the canonical side of an existing entry and invalidates
// its cached translation
func (s *Service) Update(ctx context.Context, id uuid.UUID, canonicalCode, canonicalLabel string) (*domainmapping.Entry, error) {
	if canonicalCode == "" {
		return nil, domainmapping.ErrInvalidCanonicalCode
	}
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	entry.CanonicalCode = canonicalCode
	entry.CanonicalLabel = canonicalLabel
	if err := s.repo.Save(ctx, entry); err != nil {
		return nil, err
	}
	s.invalidate(ctx, entry.VendorID, entry.Type, entry.ExternalCode)
	return entry, nil
}

// Delete soft-deletes an entry and invalidates its cached translation
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	entry.Deactivate()
	if err := s.repo.Save(ctx, entry); err != nil {
		return err
	}
	s.invalidate(ctx, entry.VendorID, entry.Type, entry.ExternalCode)
	return nil
}

// List returns a vendor's entries, optionally filtered by type
func (s *Service) List(ctx context.Context, vendorID string, mappingType *domainmapping.Type) ([]domainmapping.Entry, error) {
	return s.repo.FindByVendor(ctx, vendorID, mappingType)
}

// SeedEntry is one row of a bulk mapping seed
type SeedEntry struct {
	Type           domainmapping.Type
	ExternalCode   string
	CanonicalCode  string
	CanonicalLabel string
}

// Seed bulk-loads mappings for a vendor and clears the whole translation
// cache. Seeding typically rewrites enough keys that per-key invalidation
// is not worth tracking.
func (s *Service) Seed(ctx context.Context, vendorID string, seeds []SeedEntry) (int, error) {
	entries := make([]*domainmapping.Entry, 0, len(seeds))
	for _, seed := range seeds {
		entry, err := domainmapping.NewEntry(vendorID, seed.Type, seed.ExternalCode, seed.CanonicalCode, seed.CanonicalLabel)
		if err != nil {
			return 0, err
		}
		entries = append(entries, entry)
	}
	if err := s.repo.SaveBatch(ctx, entries); err != nil {
		return 0, err
	}
	if err := s.cache.Clear(ctx); err != nil {
		s.logger.Warn("translation cache clear failed", zap.Error(err))
	}
	s.logger.Info("mappings seeded",
		zap.String("vendor_id", vendorID),
		zap.Int("count", len(entries)))
	return len(entries), nil
}

// invalidate drops one cached translation
func (s *Service) invalidate(ctx context.Context, vendorID string, mappingType domainmapping.Type, externalCode string) {
	key := cache.Key(vendorID, mappingType, externalCode)
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("translation cache invalidation failed",
			zap.String("key", key),
			zap.Error(err))
	}
}

// Ensure Service implements mapping.Resolver
var _ domainmapping.Resolver = (*Service)(nil)
