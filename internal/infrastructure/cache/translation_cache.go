// Package cache implements the translation cache in front of the mapping
// repository. An in-memory L1 always runs; a Redis L2 is layered in when
// Redis is enabled so instances share warm translations.
package cache

import (
	"context"

	"github.com/erp/agentsync/internal/domain/mapping"
)

// Key builds the cache key of one vendor code translation
func Key(vendorID string, mappingType mapping.Type, externalCode string) string {
	return vendorID + ":" + mappingType.String() + ":" + externalCode
}

// Stats holds cache effectiveness counters
type Stats struct {
	// Hits is the number of lookups served from cache
	Hits int64 `json:"hits"`
	// Misses is the number of lookups that fell through
	Misses int64 `json:"misses"`
	// Evictions is the number of entries dropped at capacity
	Evictions int64 `json:"evictions"`
	// Size is the current entry count
	Size int `json:"size"`
}

// HitRate returns the hit percentage over all lookups
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// TranslationCache caches mapping resolutions by composite key. Lookup
// misses return nil without error; cache failures never block resolution.
type TranslationCache interface {
	// Get returns the cached resolution, or nil on miss
	Get(ctx context.Context, key string) (*mapping.Resolution, error)

	// Set stores a resolution under the key
	Set(ctx context.Context, key string, resolution *mapping.Resolution) error

	// Delete removes one key
	Delete(ctx context.Context, key string) error

	// Clear removes every entry
	Clear(ctx context.Context) error

	// Stats returns effectiveness counters
	Stats() Stats
}
