package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wadesk-backend/pkg/logger"
)

// SettingsStore is the backing key/value store
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// SettingsCache is a read-through cache in front of a SettingsStore.
// Writes through this instance are visible immediately; writes made by
// other processes are seen once the entry expires. Misses and errors
// are never cached.
type SettingsCache struct {
	store SettingsStore
	cache *MemoryCache
}

// NewSettingsCache wraps store with a TTL cache
func NewSettingsCache(store SettingsStore, ttl time.Duration) *SettingsCache {
	return &SettingsCache{
		store: store,
		cache: NewMemoryCache(ttl, 64),
	}
}

// Get returns the cached value or loads it from the store
func (s *SettingsCache) Get(ctx context.Context, key string) (string, error) {
	if value, ok := s.cache.Get(key); ok {
		return value, nil
	}

	value, err := s.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	s.cache.Set(key, value)
	return value, nil
}

// Set writes through to the store
func (s *SettingsCache) Set(ctx context.Context, key, value string) error {
	if err := s.store.Set(ctx, key, value); err != nil {
		s.cache.Delete(key)
		return err
	}
	s.cache.Set(key, value)
	logger.Debug("Setting updated", zap.String("key", key))
	return nil
}
