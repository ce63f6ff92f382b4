package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/internal/observability"
)

// redisStore implements a Redis-backed store.
type redisStore struct {
	logger     observability.Logger
	client     *redis.Client
	keyPrefix  string
	defaultTTL time.Duration
	ttlJitter  float64

	hits   int64
	misses int64
}

// newRedisStore creates a Redis-backed store from the configuration.
func newRedisStore(cfg *config.CacheConfig, logger observability.Logger) (*redisStore, error) {
	if cfg.Redis == nil || cfg.Redis.URL == "" {
		return nil, fmt.Errorf("%w: redis cache requires a url", ErrInvalidConfig)
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	if cfg.Redis.PoolSize > 0 {
		opts.PoolSize = cfg.Redis.PoolSize
	}
	if d := cfg.Redis.ConnectTimeout.Duration(); d > 0 {
		opts.DialTimeout = d
	}
	if d := cfg.Redis.ReadTimeout.Duration(); d > 0 {
		opts.ReadTimeout = d
	}
	if d := cfg.Redis.WriteTimeout.Duration(); d > 0 {
		opts.WriteTimeout = d
	}

	s := &redisStore{
		logger:     logger,
		client:     redis.NewClient(opts),
		keyPrefix:  cfg.Redis.KeyPrefix,
		defaultTTL: cfg.TTL.Duration(),
		ttlJitter:  cfg.Redis.TTLJitter,
	}

	logger.Info("redis cache store initialized",
		observability.String("addr", opts.Addr),
		observability.String("keyPrefix", s.keyPrefix))

	return s, nil
}

// resolveKey applies the configured key prefix.
func (s *redisStore) resolveKey(key string) string {
	return s.keyPrefix + key
}

// applyTTLJitter randomizes a TTL by up to ±jitterFactor to avoid
// synchronized expiry across keys written in the same burst.
func applyTTLJitter(ttl time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 || ttl <= 0 {
		return ttl
	}
	if jitterFactor > 1.0 {
		jitterFactor = 1.0
	}
	//nolint:gosec // G404: TTL jitter does not require cryptographic randomness
	jitter := time.Duration(float64(ttl) * jitterFactor * (2*rand.Float64() - 1))
	result := ttl + jitter
	if result <= 0 {
		return ttl
	}
	return result
}

// Get retrieves a value from Redis.
func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cache.Get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", "redis"),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		GetMetrics().operationDuration.WithLabelValues(
			"redis", "get",
		).Observe(time.Since(start).Seconds())
	}()

	value, err := s.client.Get(ctx, s.resolveKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		atomic.AddInt64(&s.misses, 1)
		GetMetrics().missesTotal.WithLabelValues("redis").Inc()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}
	if err != nil {
		GetMetrics().errorsTotal.WithLabelValues("redis", "get").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("redis get: %w", err)
	}

	atomic.AddInt64(&s.hits, 1)
	GetMetrics().hitsTotal.WithLabelValues("redis").Inc()
	span.SetAttributes(
		attribute.Bool("cache.hit", true),
		attribute.Int("cache.value_size", len(value)),
	)

	return value, nil
}

// Set stores a value in Redis with the jittered retention TTL.
func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cache.Set",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", "redis"),
			attribute.String("cache.key", key),
			attribute.Int("cache.value_size", len(value)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		GetMetrics().operationDuration.WithLabelValues(
			"redis", "set",
		).Observe(time.Since(start).Seconds())
	}()

	if ttl == 0 {
		ttl = s.defaultTTL
	}
	ttl = applyTTLJitter(ttl, s.ttlJitter)

	if err := s.client.Set(ctx, s.resolveKey(key), value, ttl).Err(); err != nil {
		GetMetrics().errorsTotal.WithLabelValues("redis", "set").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a value from Redis.
func (s *redisStore) Delete(ctx context.Context, key string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cache.Delete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", "redis"),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		GetMetrics().operationDuration.WithLabelValues(
			"redis", "delete",
		).Observe(time.Since(start).Seconds())
	}()

	if err := s.client.Del(ctx, s.resolveKey(key)).Err(); err != nil {
		GetMetrics().errorsTotal.WithLabelValues("redis", "delete").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("redis delete: %w", err)
	}

	return nil
}

// Exists checks whether a key is present in Redis.
func (s *redisStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cache.Exists",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", "redis"),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	n, err := s.client.Exists(ctx, s.resolveKey(key)).Result()
	if err != nil {
		GetMetrics().errorsTotal.WithLabelValues("redis", "exists").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("redis exists: %w", err)
	}

	span.SetAttributes(attribute.Bool("cache.exists", n > 0))
	return n > 0, nil
}

// Close closes the Redis client.
func (s *redisStore) Close() error {
	s.logger.Info("redis cache store closed")
	return s.client.Close()
}

// Stats returns store statistics. Size reflects prefixed keys only when
// a prefix is configured, and is left at zero otherwise to avoid a full
// keyspace scan.
func (s *redisStore) Stats() StoreStats {
	return StoreStats{
		Hits:   atomic.LoadInt64(&s.hits),
		Misses: atomic.LoadInt64(&s.misses),
	}
}
