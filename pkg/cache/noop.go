package cache

import (
	"context"
	"sync/atomic"
	"time"
)

// Ensure NoopStore implements Store
var _ Store = (*NoopStore)(nil)

// NoopStore is used when caching is disabled. Every lookup misses and writes
// are discarded.
type NoopStore struct {
	misses atomic.Int64
}

// NewNoopStore creates a store that caches nothing.
func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

// Get always returns ErrCacheMiss.
func (n *NoopStore) Get(ctx context.Context, key string) ([]byte, error) {
	n.misses.Add(1)
	CacheMisses.WithLabelValues(n.Backend()).Inc()
	return nil, ErrCacheMiss
}

// Set discards the value.
func (n *NoopStore) Set(ctx context.Context, key string, value []byte) error {
	return nil
}

// SetWithTTL discards the value.
func (n *NoopStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

// Keys always returns 0.
func (n *NoopStore) Keys(ctx context.Context) (int, error) {
	return 0, nil
}

// FlushAll always returns 0.
func (n *NoopStore) FlushAll(ctx context.Context) (int, error) {
	CacheFlushes.WithLabelValues(n.Backend()).Inc()
	return 0, nil
}

// Stats reports misses only.
func (n *NoopStore) Stats() Stats {
	return Stats{Misses: n.misses.Load()}
}

// Backend returns "noop".
func (n *NoopStore) Backend() string {
	return "noop"
}

// Close is a no-op.
func (n *NoopStore) Close() error {
	return nil
}
