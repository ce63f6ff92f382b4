package cache

import (
	"context"
	"errors"
	"time"

	"github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/internal/observability"
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key was not found in the store.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheDisabled indicates that caching is disabled.
	ErrCacheDisabled = errors.New("cache disabled")

	// ErrInvalidConfig indicates that the cache configuration is invalid.
	ErrInvalidConfig = errors.New("invalid cache configuration")
)

// Store is the byte-level cache backend. Entries carry their own
// freshness metadata; the store only enforces the retention TTL.
type Store interface {
	// Get retrieves a value. Returns ErrCacheMiss if the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given retention TTL. A TTL of 0 means
	// the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// Exists checks whether a key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases the store's resources.
	Close() error
}

// StoreStats contains store statistics.
type StoreStats struct {
	Hits   int64
	Misses int64
	Size   int64
}

// HitRate returns the hit rate as a percentage.
func (s StoreStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// StoreWithStats extends Store with statistics.
type StoreWithStats interface {
	Store

	Stats() StoreStats
}

// NewStore creates a store from the configuration.
func NewStore(cfg *config.CacheConfig, logger observability.Logger) (Store, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}

	if !cfg.Enabled {
		return newDisabledStore(), nil
	}

	if logger == nil {
		logger = observability.NopLogger()
	}

	switch cfg.Type {
	case config.CacheTypeMemory, "":
		return newMemoryStore(cfg, logger)
	case config.CacheTypeRedis:
		return newRedisStore(cfg, logger)
	default:
		return nil, errors.New("unknown cache type: " + cfg.Type)
	}
}

// disabledStore rejects every operation so that cache rules degrade to
// pass-through invocation.
type disabledStore struct{}

func newDisabledStore() Store {
	return &disabledStore{}
}

func (s *disabledStore) Get(_ context.Context, _ string) ([]byte, error) {
	return nil, ErrCacheDisabled
}

func (s *disabledStore) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return ErrCacheDisabled
}

func (s *disabledStore) Delete(_ context.Context, _ string) error {
	return ErrCacheDisabled
}

func (s *disabledStore) Exists(_ context.Context, _ string) (bool, error) {
	return false, ErrCacheDisabled
}

func (s *disabledStore) Close() error {
	return nil
}
