package cache

import (
	"context"

	"go.uber.org/zap"

	"github.com/erp/agentsync/internal/domain/mapping"
)

// TieredTranslationCache layers the in-memory L1 in front of the Redis L2.
// L2 failures are logged and swallowed so resolution keeps working on L1
// plus the repository.
type TieredTranslationCache struct {
	l1     TranslationCache
	l2     TranslationCache
	logger *zap.Logger
}

// NewTieredTranslationCache creates a tiered cache from L1 and L2
func NewTieredTranslationCache(l1, l2 TranslationCache, logger *zap.Logger) *TieredTranslationCache {
	return &TieredTranslationCache{l1: l1, l2: l2, logger: logger}
}

// Get checks L1 first, then L2, promoting L2 hits into L1
func (c *TieredTranslationCache) Get(ctx context.Context, key string) (*mapping.Resolution, error) {
	resolution, err := c.l1.Get(ctx, key)
	if err == nil && resolution != nil {
		return resolution, nil
	}

	resolution, err = c.l2.Get(ctx, key)
	if err != nil {
		c.logger.Warn("L2 translation cache read failed",
			zap.String("key", key),
			zap.Error(err))
		return nil, nil
	}
	if resolution != nil {
		if err := c.l1.Set(ctx, key, resolution); err != nil {
			c.logger.Warn("L1 translation cache promote failed",
				zap.String("key", key),
				zap.Error(err))
		}
	}
	return resolution, nil
}

// Set writes both tiers
func (c *TieredTranslationCache) Set(ctx context.Context, key string, resolution *mapping.Resolution) error {
	if err := c.l1.Set(ctx, key, resolution); err != nil {
		return err
	}
	if err := c.l2.Set(ctx, key, resolution); err != nil {
		c.logger.Warn("L2 translation cache write failed",
			zap.String("key", key),
			zap.Error(err))
	}
	return nil
}

// Delete removes the key from both tiers
func (c *TieredTranslationCache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	if err := c.l2.Delete(ctx, key); err != nil {
		c.logger.Warn("L2 translation cache delete failed",
			zap.String("key", key),
			zap.Error(err))
	}
	return nil
}

// Clear empties both tiers
func (c *TieredTranslationCache) Clear(ctx context.Context) error {
	if err := c.l1.Clear(ctx); err != nil {
		return err
	}
	if err := c.l2.Clear(ctx); err != nil {
		c.logger.Warn("L2 translation cache clear failed", zap.Error(err))
	}
	return nil
}

// Stats reports the L1 counters; L2 round trips are counted as L1 misses
func (c *TieredTranslationCache) Stats() Stats {
	return c.l1.Stats()
}

// Ensure TieredTranslationCache implements TranslationCache
var _ TranslationCache = (*TieredTranslationCache)(nil)
