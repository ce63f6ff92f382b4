package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/internal/observability"
)

// tracerName is the OpenTelemetry tracer name for cache operations.
const tracerName = "routefs/cache"

// memoryStore implements an in-memory LRU store.
type memoryStore struct {
	logger     observability.Logger
	maxEntries int
	defaultTTL time.Duration

	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List

	hits   int64
	misses int64

	stopCh chan struct{}
}

// memoryEntry is one stored value with its retention deadline.
type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// newMemoryStore creates an in-memory store.
//
//nolint:unparam // error return is for interface consistency with the redis store
func newMemoryStore(cfg *config.CacheConfig, logger observability.Logger) (*memoryStore, error) {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 10000
	}

	s := &memoryStore{
		logger:     logger,
		maxEntries: maxEntries,
		defaultTTL: cfg.TTL.Duration(),
		items:      make(map[string]*list.Element),
		eviction:   list.New(),
		stopCh:     make(chan struct{}),
	}

	go s.cleanupLoop()

	logger.Info("memory cache store initialized",
		observability.Int("maxEntries", maxEntries),
		observability.Duration("defaultTTL", s.defaultTTL))

	return s, nil
}

// Get retrieves a value from the store.
func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "cache.Get",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", "memory"),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		GetMetrics().operationDuration.WithLabelValues(
			"memory", "get",
		).Observe(time.Since(start).Seconds())
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, exists := s.items[key]
	if !exists {
		atomic.AddInt64(&s.misses, 1)
		GetMetrics().missesTotal.WithLabelValues("memory").Inc()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}

	entry := elem.Value.(*memoryEntry)

	// Past the retention deadline the entry is gone, stale window included.
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		s.removeElement(elem)
		atomic.AddInt64(&s.misses, 1)
		GetMetrics().missesTotal.WithLabelValues("memory").Inc()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}

	s.eviction.MoveToFront(elem)

	atomic.AddInt64(&s.hits, 1)
	GetMetrics().hitsTotal.WithLabelValues("memory").Inc()

	span.SetAttributes(
		attribute.Bool("cache.hit", true),
		attribute.Int("cache.value_size", len(entry.value)),
	)

	return entry.value, nil
}

// Set stores a value in the store.
func (s *memoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "cache.Set",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", "memory"),
			attribute.String("cache.key", key),
			attribute.Int("cache.value_size", len(value)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		GetMetrics().operationDuration.WithLabelValues(
			"memory", "set",
		).Observe(time.Since(start).Seconds())
	}()

	if ttl == 0 {
		ttl = s.defaultTTL
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	entry := &memoryEntry{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, exists := s.items[key]; exists {
		s.eviction.MoveToFront(elem)
		elem.Value = entry
		return nil
	}

	elem := s.eviction.PushFront(entry)
	s.items[key] = elem

	for s.eviction.Len() > s.maxEntries {
		s.evictOldest()
	}

	GetMetrics().sizeGauge.WithLabelValues("memory").Set(float64(s.eviction.Len()))

	s.logger.Debug("cache set",
		observability.String("key", key),
		observability.Duration("ttl", ttl),
		observability.Int("size", s.eviction.Len()))

	return nil
}

// Delete removes a value from the store.
func (s *memoryStore) Delete(ctx context.Context, key string) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "cache.Delete",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", "memory"),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		GetMetrics().operationDuration.WithLabelValues(
			"memory", "delete",
		).Observe(time.Since(start).Seconds())
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, exists := s.items[key]; exists {
		s.removeElement(elem)
	}

	return nil
}

// Exists checks if a key exists in the store.
func (s *memoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "cache.Exists",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", "memory"),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, exists := s.items[key]
	if !exists {
		span.SetAttributes(attribute.Bool("cache.exists", false))
		return false, nil
	}

	entry := elem.Value.(*memoryEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		s.removeElement(elem)
		span.SetAttributes(attribute.Bool("cache.exists", false))
		return false, nil
	}

	span.SetAttributes(attribute.Bool("cache.exists", true))
	return true, nil
}

// Close stops the cleanup goroutine and drops all entries.
func (s *memoryStore) Close() error {
	close(s.stopCh)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*list.Element)
	s.eviction.Init()

	s.logger.Info("memory cache store closed")

	return nil
}

// Stats returns store statistics.
func (s *memoryStore) Stats() StoreStats {
	s.mu.Lock()
	size := int64(s.eviction.Len())
	s.mu.Unlock()

	return StoreStats{
		Hits:   atomic.LoadInt64(&s.hits),
		Misses: atomic.LoadInt64(&s.misses),
		Size:   size,
	}
}

// evictOldest removes the least recently used entry.
// Must be called with the lock held.
func (s *memoryStore) evictOldest() {
	elem := s.eviction.Back()
	if elem != nil {
		s.removeElement(elem)
		GetMetrics().evictionsTotal.WithLabelValues("memory").Inc()
	}
}

// removeElement removes an element from the store.
// Must be called with the lock held.
func (s *memoryStore) removeElement(elem *list.Element) {
	s.eviction.Remove(elem)
	entry := elem.Value.(*memoryEntry)
	delete(s.items, entry.key)
}

// cleanupLoop periodically removes entries past their retention deadline.
func (s *memoryStore) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup removes expired entries under a single lock so that entries
// cannot change between the scan and the removal.
func (s *memoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element

	for elem := s.eviction.Back(); elem != nil; elem = elem.Prev() {
		entry := elem.Value.(*memoryEntry)
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}

	for _, elem := range toRemove {
		s.removeElement(elem)
	}

	if len(toRemove) > 0 {
		s.logger.Debug("cache cleanup completed",
			observability.Int("removed", len(toRemove)))
	}
}
