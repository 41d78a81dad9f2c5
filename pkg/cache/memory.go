// Package cache holds small in-process caches for hot, rarely-written data.
package cache

import (
	"sync"
	"time"
)

// MemoryCache is a TTL cache of string values
type MemoryCache struct {
	mu      sync.RWMutex
	data    map[string]cacheEntry
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryCache creates a cache. maxSize <= 0 means unbounded.
func NewMemoryCache(ttl time.Duration, maxSize int) *MemoryCache {
	return &MemoryCache{
		data:    make(map[string]cacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Set stores value under key for the cache TTL
func (mc *MemoryCache) Set(key, value string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, exists := mc.data[key]; !exists && mc.maxSize > 0 && len(mc.data) >= mc.maxSize {
		mc.evictLocked()
	}
	mc.data[key] = cacheEntry{value: value, expiresAt: mc.now().Add(mc.ttl)}
}

// Get returns the value for key if present and not expired
func (mc *MemoryCache) Get(key string) (string, bool) {
	mc.mu.RLock()
	entry, exists := mc.data[key]
	mc.mu.RUnlock()

	if !exists || !mc.now().Before(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

// Delete removes key
func (mc *MemoryCache) Delete(key string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.data, key)
}

// Size returns the number of stored entries, expired ones included
func (mc *MemoryCache) Size() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.data)
}

// evictLocked drops expired entries, or the one closest to expiry if none are
func (mc *MemoryCache) evictLocked() {
	now := mc.now()
	var oldestKey string
	var oldest time.Time
	for key, entry := range mc.data {
		if !now.Before(entry.expiresAt) {
			delete(mc.data, key)
			continue
		}
		if oldestKey == "" || entry.expiresAt.Before(oldest) {
			oldestKey, oldest = key, entry.expiresAt
		}
	}
	if len(mc.data) >= mc.maxSize && oldestKey != "" {
		delete(mc.data, oldestKey)
	}
}
