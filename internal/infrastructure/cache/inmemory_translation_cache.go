package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erp/agentsync/internal/domain/mapping"
)

// cleanupInterval is how often expired entries are swept
const cleanupInterval = 30 * time.Second

// entry wraps a cached resolution with its expiry and the insertion
// sequence it was admitted under
type entry struct {
	resolution mapping.Resolution
	expiresAt  time.Time
	seq        uint64
}

// orderRef is one insertion-order slot. A ref whose seq no longer matches
// the live entry is stale and skipped on eviction.
type orderRef struct {
	key string
	seq uint64
}

// InMemoryTranslationCache implements TranslationCache with per-entry TTL
// and insertion-order eviction once the capacity is reached.
type InMemoryTranslationCache struct {
	ttl        time.Duration
	maxEntries int
	logger     *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
	order   []orderRef
	seq     uint64

	hits      int64
	misses    int64
	evictions int64

	stopCh  chan struct{}
	stopped bool
}

// NewInMemoryTranslationCache creates an in-memory translation cache
func NewInMemoryTranslationCache(ttl time.Duration, maxEntries int, logger *zap.Logger) *InMemoryTranslationCache {
	c := &InMemoryTranslationCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		logger:     logger,
		entries:    make(map[string]*entry),
		stopCh:     make(chan struct{}),
	}
	go c.cleanupExpired()
	return c
}

// Get returns the cached resolution, or nil on miss
func (c *InMemoryTranslationCache) Get(ctx context.Context, key string) (*mapping.Resolution, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && time.Now().Before(e.expiresAt) {
		c.hits++
		resolution := e.resolution
		return &resolution, nil
	}
	if ok {
		delete(c.entries, key)
	}
	c.misses++
	return nil, nil
}

// Set stores a resolution under the key
func (c *InMemoryTranslationCache) Set(ctx context.Context, key string, resolution *mapping.Resolution) error {
	if resolution == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// overwriting a live key keeps its insertion position; only a genuinely
	// new key (or one re-inserted after delete/expiry) takes a new slot
	seq := c.seq
	if existing, ok := c.entries[key]; ok {
		seq = existing.seq
	} else {
		c.seq++
		seq = c.seq
		c.order = append(c.order, orderRef{key: key, seq: seq})
	}
	c.entries[key] = &entry{
		resolution: *resolution,
		expiresAt:  time.Now().Add(c.ttl),
		seq:        seq,
	}
	c.evictOverCapacity()
	c.compactOrder()
	return nil
}

// Delete removes one key
func (c *InMemoryTranslationCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Clear removes every entry
func (c *InMemoryTranslationCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.order = nil
	return nil
}

// Stats returns effectiveness counters
func (c *InMemoryTranslationCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.entries),
	}
}

// Close stops the background sweep
func (c *InMemoryTranslationCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stopped {
		c.stopped = true
		close(c.stopCh)
	}
	return nil
}

// evictOverCapacity drops the oldest live entries until the cache fits.
// Refs whose sequence no longer matches the live entry are stale leftovers
// of a delete-and-reinsert and are discarded without evicting anything.
// Caller holds the lock.
func (c *InMemoryTranslationCache) evictOverCapacity() {
	for len(c.entries) > c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if e, ok := c.entries[oldest.key]; ok && e.seq == oldest.seq {
			delete(c.entries, oldest.key)
			c.evictions++
		}
	}
}

// compactOrder rebuilds the insertion order once stale refs dominate it,
// keeping the slice proportional to the live entry count under churn.
// Caller holds the lock.
func (c *InMemoryTranslationCache) compactOrder() {
	if len(c.order) <= 2*len(c.entries)+16 {
		return
	}
	live := c.order[:0]
	for _, ref := range c.order {
		if e, ok := c.entries[ref.key]; ok && e.seq == ref.seq {
			live = append(live, ref)
		}
	}
	c.order = live
}

// cleanupExpired periodically removes expired entries
func (c *InMemoryTranslationCache) cleanupExpired() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			removed := 0
			c.mu.Lock()
			for key, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, key)
					removed++
				}
			}
			c.compactOrder()
			c.mu.Unlock()
			if removed > 0 {
				c.logger.Debug("swept expired translation cache entries",
					zap.Int("removed", removed))
			}
		}
	}
}

// Ensure InMemoryTranslationCache implements TranslationCache
var _ TranslationCache = (*InMemoryTranslationCache)(nil)
