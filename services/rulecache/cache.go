// Package rulecache holds short-lived, per-scope snapshots of rule tables.
package rulecache

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CacheKey identifies the tenant/plan pair a snapshot was loaded for
type CacheKey struct {
	TenantID *uuid.UUID
	PlanID   *uuid.UUID
}

// NewCacheKey builds a key from optional ids
func NewCacheKey(tenantID, planID *uuid.UUID) CacheKey {
	return CacheKey{TenantID: tenantID, PlanID: planID}
}

// String returns a string representation of the cache key
func (k CacheKey) String() string {
	return idOrWildcard(k.TenantID) + ":" + idOrWildcard(k.PlanID)
}

func idOrWildcard(id *uuid.UUID) string {
	if id == nil {
		return "*"
	}
	return id.String()
}

// cacheEntry represents a single cache entry with TTL
type cacheEntry[T any] struct {
	key        CacheKey
	rules      []T
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

func (e *cacheEntry[T]) isExpired(ttl time.Duration) bool {
	return time.Since(e.insertedAt) > ttl
}

// RuleCache is an in-memory LRU cache with TTL.
// Thread-safe implementation using sync.RWMutex.
type RuleCache[T any] struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry[T] // Key: CacheKey.String()
	lruList *list.List
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
}

// New creates a RuleCache with the given max size and TTL
func New[T any](maxSize int, ttl time.Duration) *RuleCache[T] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &RuleCache[T]{
		entries: make(map[string]*cacheEntry[T]),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get returns the cached snapshot. An empty snapshot is a valid hit.
func (c *RuleCache[T]) Get(key CacheKey) ([]T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keyStr := key.String()
	entry, exists := c.entries[keyStr]

	if !exists || entry.isExpired(c.ttl) {
		c.misses++
		if exists {
			c.removeEntry(keyStr)
		}
		return nil, false
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++

	return entry.rules, true
}

// Set stores a snapshot
func (c *RuleCache[T]) Set(key CacheKey, rules []T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keyStr := key.String()

	if entry, exists := c.entries[keyStr]; exists {
		entry.rules = rules
		entry.insertedAt = time.Now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry[T]{
		key:        key,
		rules:      rules,
		insertedAt: time.Now(),
	}
	entry.element = c.lruList.PushFront(keyStr)
	c.entries[keyStr] = entry
}

// Invalidate removes a specific cache entry
func (c *RuleCache[T]) Invalidate(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeEntry(key.String())
}

// InvalidateTenant removes every snapshot loaded for the tenant
func (c *RuleCache[T]) InvalidateTenant(tenantID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for keyStr, entry := range c.entries {
		if entry.key.TenantID != nil && *entry.key.TenantID == tenantID {
			c.removeEntry(keyStr)
		}
	}
}

// InvalidatePlan removes every snapshot loaded for the plan
func (c *RuleCache[T]) InvalidatePlan(planID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for keyStr, entry := range c.entries {
		if entry.key.PlanID != nil && *entry.key.PlanID == planID {
			c.removeEntry(keyStr)
		}
	}
}

// InvalidateScope drops what a write to a rule with the given scope can affect.
// Global rules reach every snapshot.
func (c *RuleCache[T]) InvalidateScope(tenantID, planID *uuid.UUID) {
	switch {
	case tenantID == nil && planID == nil:
		c.Clear()
	case tenantID != nil:
		c.InvalidateTenant(*tenantID)
	default:
		c.InvalidatePlan(*planID)
	}
}

// Clear removes all entries from the cache
func (c *RuleCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry[T])
	c.lruList.Init()
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns cache statistics
func (c *RuleCache[T]) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: c.calculateHitRate(),
	}
}

func (c *RuleCache[T]) calculateHitRate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// removeEntry must be called with lock held
func (c *RuleCache[T]) removeEntry(keyStr string) {
	if entry, exists := c.entries[keyStr]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, keyStr)
	}
}

// evictLRU must be called with lock held
func (c *RuleCache[T]) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	keyStr := back.Value.(string)
	c.lruList.Remove(back)
	delete(c.entries, keyStr)
}

// CleanupExpired removes all expired entries and returns how many were dropped
func (c *RuleCache[T]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiredKeys := make([]string, 0)
	for keyStr, entry := range c.entries {
		if entry.isExpired(c.ttl) {
			expiredKeys = append(expiredKeys, keyStr)
		}
	}
	for _, keyStr := range expiredKeys {
		c.removeEntry(keyStr)
	}

	return len(expiredKeys)
}

// StartCleanupWorker periodically drops expired entries until stopCh closes
func (c *RuleCache[T]) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}
