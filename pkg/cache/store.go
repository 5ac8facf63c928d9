package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache or has expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

const (
	// DefaultTTL applies when the caller does not override the TTL
	DefaultTTL = 5 * time.Minute

	// WarTTL is the shorter TTL used for current war data
	WarTTL = 2 * time.Minute
)

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Store is the response cache contract.
//
// Implementations must be safe for concurrent use; a write racing a read on
// the same key yields either the old or the new value, never a mix.
type Store interface {
	// Get returns the cached value, or ErrCacheMiss if absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the default TTL, overwriting any entry.
	Set(ctx context.Context, key string, value []byte) error

	// SetWithTTL stores value under key with an explicit TTL.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Keys returns the number of live entries.
	Keys(ctx context.Context) (int, error)

	// FlushAll removes every entry and returns how many were removed.
	FlushAll(ctx context.Context) (int, error)

	// Stats returns hit and miss counters.
	Stats() Stats

	// Backend names the implementation ("memory", "redis", "noop").
	Backend() string

	Close() error
}
