package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/erp/agentsync/internal/domain/mapping"
)

// defaultKeyPrefix namespaces translation keys in a shared Redis
const defaultKeyPrefix = "mapping:translation:"

// RedisTranslationCache implements TranslationCache backed by Redis. It is
// used as the L2 tier in distributed deployments.
type RedisTranslationCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisTranslationCache creates a Redis translation cache with an
// existing client
func NewRedisTranslationCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisTranslationCache {
	return &RedisTranslationCache{
		client:    client,
		ttl:       ttl,
		keyPrefix: defaultKeyPrefix,
		logger:    logger,
	}
}

// Get returns the cached resolution, or nil on miss
func (c *RedisTranslationCache) Get(ctx context.Context, key string) (*mapping.Resolution, error) {
	raw, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: redis get failed: %w", err)
	}
	var resolution mapping.Resolution
	if err := json.Unmarshal(raw, &resolution); err != nil {
		return nil, fmt.Errorf("cache: corrupt cached resolution: %w", err)
	}
	return &resolution, nil
}

// Set stores a resolution under the key
func (c *RedisTranslationCache) Set(ctx context.Context, key string, resolution *mapping.Resolution) error {
	if resolution == nil {
		return nil
	}
	raw, err := json.Marshal(resolution)
	if err != nil {
		return fmt.Errorf("cache: failed to encode resolution: %w", err)
	}
	if err := c.client.Set(ctx, c.keyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set failed: %w", err)
	}
	return nil
}

// Delete removes one key
func (c *RedisTranslationCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("cache: redis delete failed: %w", err)
	}
	return nil
}

// Clear removes every entry under the translation prefix using SCAN to
// avoid blocking Redis on large keyspaces
func (c *RedisTranslationCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("cache: redis clear failed: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache: redis scan failed: %w", err)
	}
	return nil
}

// Stats returns effectiveness counters. Redis-side hit rates are tracked by
// the tiered wrapper; the L2 itself reports no counters.
func (c *RedisTranslationCache) Stats() Stats {
	return Stats{}
}

// Ensure RedisTranslationCache implements TranslationCache
var _ TranslationCache = (*RedisTranslationCache)(nil)
