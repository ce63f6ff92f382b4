package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/internal/observability"
	"github.com/routefs/routefs/internal/pipeline"
)

// DefaultStaleRetention is how long an entry stays in the store past its
// freshness window so stale-while-revalidate has something to serve.
const DefaultStaleRetention = time.Hour

// Decorator wraps handler invocations with a stale-while-revalidate
// response cache. It is safe for concurrent use; the single-flight group
// collapses concurrent cold misses and the in-flight table guarantees at
// most one background revalidation per key at a time.
type Decorator struct {
	store          Store
	logger         observability.Logger
	staleRetention time.Duration

	flight singleflight.Group

	mu           sync.Mutex
	revalidating map[string]struct{}
}

// DecoratorOption configures a Decorator.
type DecoratorOption func(*Decorator)

// WithStaleRetention sets how long stale entries are retained for SWR.
func WithStaleRetention(d time.Duration) DecoratorOption {
	return func(dec *Decorator) {
		if d > 0 {
			dec.staleRetention = d
		}
	}
}

// NewDecorator creates a Decorator over the given store.
func NewDecorator(store Store, logger observability.Logger, opts ...DecoratorOption) *Decorator {
	if logger == nil {
		logger = observability.NopLogger()
	}
	d := &Decorator{
		store:          store,
		logger:         logger,
		staleRetention: DefaultStaleRetention,
		revalidating:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Invalidate drops the entry for a key built with BuildKey. The next
// request for that key takes the cold-miss path.
func (d *Decorator) Invalidate(ctx context.Context, key string) error {
	return d.store.Delete(ctx, key)
}

// Wrap returns a handler that serves from the cache when it can and
// delegates to the wrapped handler otherwise. A maxAge of 0 without SWR
// disables caching entirely for the route.
func (d *Decorator) Wrap(handler pipeline.Handler, opts *config.RuleCacheOptions) pipeline.Handler {
	if opts == nil || (opts.MaxAge <= 0 && !opts.SWR) {
		return handler
	}

	keyCfg := KeyConfig{
		VaryHeaders: opts.VaryHeaders,
		VaryQuery:   opts.VaryQuery,
	}

	return func(c *pipeline.Context) (any, error) {
		key := BuildKey(c.Request(), keyCfg)
		ctx := c.Context()

		raw, err := d.store.Get(ctx, key)
		if err == nil {
			if entry, decodeErr := DecodeEntry(raw); decodeErr == nil {
				return d.serveEntry(c, handler, opts, key, entry)
			}
			// Undecodable entries are dropped and treated as misses.
			_ = d.store.Delete(ctx, key)
		} else if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		return d.invokeShared(c, handler, opts, key)
	}
}

// serveEntry resolves a store hit: fresh entries are returned as-is,
// stale ones are either served while a background refresh runs (SWR) or
// refreshed synchronously.
func (d *Decorator) serveEntry(
	c *pipeline.Context,
	handler pipeline.Handler,
	opts *config.RuleCacheOptions,
	key string,
	entry *Entry,
) (any, error) {
	now := time.Now()
	if entry.Fresh(now) {
		return entry.Response(), nil
	}

	if !opts.SWR {
		return d.invokeShared(c, handler, opts, key)
	}

	d.revalidate(c, handler, opts, key)
	GetMetrics().staleServedTotal.Inc()
	d.logger.Debug("serving stale cache entry",
		observability.String("key", key),
		observability.Duration("age", entry.Age(now)))

	return entry.Response(), nil
}

// revalidate starts one background refresh for the key unless one is
// already in flight. The refresh runs on a detached context so an
// aborted client request cannot cancel it.
func (d *Decorator) revalidate(
	c *pipeline.Context,
	handler pipeline.Handler,
	opts *config.RuleCacheOptions,
	key string,
) {
	d.mu.Lock()
	if _, inflight := d.revalidating[key]; inflight {
		d.mu.Unlock()
		return
	}
	d.revalidating[key] = struct{}{}
	d.mu.Unlock()

	detached := c.Detach()
	GetMetrics().revalidationsTotal.Inc()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("cache revalidation panicked",
					observability.String("key", key),
					observability.Any("panic", r))
			}
			d.mu.Lock()
			delete(d.revalidating, key)
			d.mu.Unlock()
		}()

		if _, err := d.invokeAndStore(detached, handler, opts, key); err != nil {
			d.logger.Warn("cache revalidation failed",
				observability.String("key", key),
				observability.Error(err))
		}
	}()
}

// invokeShared collapses concurrent misses for one key into a single
// handler invocation; the other callers wait for its result.
func (d *Decorator) invokeShared(
	c *pipeline.Context,
	handler pipeline.Handler,
	opts *config.RuleCacheOptions,
	key string,
) (any, error) {
	result, err, shared := d.flight.Do(key, func() (any, error) {
		return d.invokeAndStore(c, handler, opts, key)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		GetMetrics().collapsedMissesTotal.Inc()
	}

	// Flight results are shared across callers; hand each its own copy.
	return result.(*pipeline.Response).Clone(), nil
}

// invokeAndStore runs the handler and stores the materialized response.
// Store failures are logged, not surfaced: caching is best-effort.
func (d *Decorator) invokeAndStore(
	c *pipeline.Context,
	handler pipeline.Handler,
	opts *config.RuleCacheOptions,
	key string,
) (*pipeline.Response, error) {
	result, err := handler(c)
	if err != nil {
		return nil, err
	}

	resp, err := pipeline.Materialize(c, result)
	if err != nil {
		return nil, err
	}

	d.storeEntry(c.Context(), key, resp, opts)
	return resp, nil
}

func (d *Decorator) storeEntry(
	ctx context.Context,
	key string,
	resp *pipeline.Response,
	opts *config.RuleCacheOptions,
) {
	// Failed responses are not worth caching.
	if resp.Status >= 500 {
		return
	}

	entry := NewEntry(resp, opts.MaxAge, time.Now())
	raw, err := entry.Encode()
	if err != nil {
		d.logger.Warn("cache entry encode failed",
			observability.String("key", key),
			observability.Error(err))
		return
	}

	ttl := time.Duration(opts.MaxAge) * time.Second
	if opts.SWR {
		ttl += d.staleRetention
	}

	if err := d.store.Set(ctx, key, raw, ttl); err != nil {
		d.logger.Warn("cache store failed",
			observability.String("key", key),
			observability.Error(err))
	}
}
