// Package cache provides the response cache for the API proxy.
//
// Upstream payloads are stored verbatim under deterministic keys built from
// the resource type and the normalized clan or player tag. Every entry
// carries its own expiry and is never returned once that expiry has passed.
//
// Three Store implementations are available:
//
//   - MemoryStore: in-process cache backed by bigcache, with a janitor that
//     sweeps expired entries periodically
//   - RedisStore: shared cache in Redis, for running several proxy instances
//   - NoopStore: caching disabled; every lookup misses
//
// # Basic Usage
//
//	store, err := cache.NewMemoryStore(cache.DefaultMemoryConfig())
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	key := cache.CacheKey{Resource: "clan", Tag: "#2L0QRVR2V"}
//
//	data, err := store.Get(ctx, key.String())
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from upstream, then
//		_ = store.Set(ctx, key.String(), body)
//	}
//
// # Keys
//
// Tags are normalized with NormalizeTag before use, so "#ABC123" and
// "%23ABC123" share an entry:
//
//	clan_%23ABC123
//	members_%23ABC123
//	raids_%23ABC123_10
//
// # Metrics
//
//   - coc_cache_hits_total{backend} - Cache hits
//   - coc_cache_misses_total{backend} - Cache misses (absent or expired)
//   - coc_cache_errors_total{backend,operation} - Backend errors
//   - coc_cache_evictions_total{backend} - Expired entries removed by sweeps
//   - coc_cache_flushes_total{backend} - Flush operations
package cache
