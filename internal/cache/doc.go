// Package cache wraps handler invocations with a stale-while-revalidate
// response cache backed by a byte store.
//
// The package has two layers. The Store interface is a byte-level
// backend with two implementations:
//
//   - In-memory LRU store with a background cleanup loop
//   - Redis store with key prefixing and TTL jitter
//
// On top of it, Decorator implements the caching policy: a request
// fingerprint built from method, normalized path and configured vary
// inputs selects an Entry; fresh entries are served without invoking
// the handler, stale entries are served immediately while exactly one
// background revalidation refreshes them, and cold misses for the same
// key collapse into a single handler invocation.
//
// # Example Usage
//
//	store, err := cache.NewStore(cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	dec := cache.NewDecorator(store, logger)
//	cached := dec.Wrap(handler, &config.RuleCacheOptions{MaxAge: 60, SWR: true})
//
// # Thread Safety
//
// Stores and the Decorator are safe for concurrent use. Caching is
// best-effort: store failures fall back to direct handler invocation.
package cache
