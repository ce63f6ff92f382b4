package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routefs/routefs/internal/config"
)

func TestNewStore(t *testing.T) {
	t.Parallel()

	t.Run("nil config", func(t *testing.T) {
		t.Parallel()
		_, err := NewStore(nil, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		store, err := NewStore(&config.CacheConfig{Enabled: false}, nil)
		require.NoError(t, err)

		_, err = store.Get(context.Background(), "k")
		assert.ErrorIs(t, err, ErrCacheDisabled)
		assert.ErrorIs(t, store.Set(context.Background(), "k", []byte("v"), 0), ErrCacheDisabled)
		assert.NoError(t, store.Close())
	})

	t.Run("memory default type", func(t *testing.T) {
		t.Parallel()
		store, err := NewStore(&config.CacheConfig{Enabled: true}, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })

		require.NoError(t, store.Set(context.Background(), "k", []byte("v"), time.Minute))
		got, err := store.Get(context.Background(), "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)
	})

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()
		_, err := NewStore(&config.CacheConfig{Enabled: true, Type: "bogus"}, nil)
		assert.Error(t, err)
	})

	t.Run("redis without url", func(t *testing.T) {
		t.Parallel()
		_, err := NewStore(&config.CacheConfig{Enabled: true, Type: config.CacheTypeRedis}, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestStoreStatsHitRate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, float64(0), StoreStats{}.HitRate())
	assert.Equal(t, float64(75), StoreStats{Hits: 3, Misses: 1}.HitRate())
}
