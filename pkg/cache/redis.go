package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)

// DefaultRedisPrefix namespaces proxy keys inside a shared Redis database.
const DefaultRedisPrefix = "coc:"

// scanBatch is the SCAN COUNT hint used by Keys and FlushAll.
const scanBatch = 500

// RedisConfig configures the Redis store.
type RedisConfig struct {
	// DefaultTTL applies to Set
	DefaultTTL time.Duration

	// Prefix is prepended to every key
	Prefix string

	// Clock is the time source (default: wall clock)
	Clock clock.Clock
}

// RedisStore handles caching operations with a Redis backend, so several
// proxy instances can share one cache.
type RedisStore struct {
	redis      redis.UniversalClient
	prefix     string
	defaultTTL time.Duration
	clock      clock.Clock
	logger     zerolog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisStore creates a new cache store with Redis backend.
func NewRedisStore(redisClient redis.UniversalClient, cfg RedisConfig) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultRedisPrefix
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &RedisStore{
		redis:      redisClient,
		prefix:     cfg.Prefix,
		defaultTTL: cfg.DefaultTTL,
		clock:      cfg.Clock,
		logger:     log.With().Str("component", "cache").Str("backend", "redis").Logger(),
	}
}

// Get retrieves a value by key.
// Returns ErrCacheMiss if the key doesn't exist or the entry is expired.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.redis.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, r.miss()
		}
		CacheErrors.WithLabelValues(r.Backend(), "get").Inc()
		r.misses.Add(1)
		CacheMisses.WithLabelValues(r.Backend()).Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues(r.Backend(), "get").Inc()
		_ = r.redis.Del(ctx, r.prefix+key).Err()
		_ = r.miss()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis TTL and our clock can disagree by a little; the entry's own
	// expiry wins.
	if entry.IsExpired(r.clock.Now()) {
		_ = r.redis.Del(ctx, r.prefix+key).Err()
		return nil, r.miss()
	}

	r.hits.Add(1)
	CacheHits.WithLabelValues(r.Backend()).Inc()
	return entry.Data, nil
}

func (r *RedisStore) miss() error {
	r.misses.Add(1)
	CacheMisses.WithLabelValues(r.Backend()).Inc()
	return ErrCacheMiss
}

// Set stores a value with the default TTL.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return r.SetWithTTL(ctx, key, value, r.defaultTTL)
}

// SetWithTTL stores a value with an explicit TTL. Redis removes the key when
// it expires. A non-positive TTL stores nothing.
func (r *RedisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(newEntry(value, r.clock.Now(), ttl))
	if err != nil {
		CacheErrors.WithLabelValues(r.Backend(), "set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := r.redis.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues(r.Backend(), "set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a single entry.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.redis.Del(ctx, r.prefix+key).Err(); err != nil {
		CacheErrors.WithLabelValues(r.Backend(), "delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Keys returns the number of keys under the store prefix.
func (r *RedisStore) Keys(ctx context.Context) (int, error) {
	n := 0
	iter := r.redis.Scan(ctx, 0, r.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues(r.Backend(), "keys").Inc()
		return 0, fmt.Errorf("redis scan: %w", err)
	}
	return n, nil
}

// FlushAll deletes every key under the store prefix and returns how many
// were removed. Other keys in the database are left alone.
func (r *RedisStore) FlushAll(ctx context.Context) (int, error) {
	var removed int64
	batch := make([]string, 0, scanBatch)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.redis.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		removed += n
		batch = batch[:0]
		return nil
	}

	iter := r.redis.Scan(ctx, 0, r.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				CacheErrors.WithLabelValues(r.Backend(), "flush").Inc()
				return int(removed), fmt.Errorf("redis del: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues(r.Backend(), "flush").Inc()
		return int(removed), fmt.Errorf("redis scan: %w", err)
	}
	if err := flush(); err != nil {
		CacheErrors.WithLabelValues(r.Backend(), "flush").Inc()
		return int(removed), fmt.Errorf("redis del: %w", err)
	}

	CacheFlushes.WithLabelValues(r.Backend()).Inc()
	r.logger.Info().Int64("keys_cleared", removed).Msg("Cache flushed")
	return int(removed), nil
}

// Stats returns hit and miss counters for this process.
func (r *RedisStore) Stats() Stats {
	return Stats{
		Hits:   r.hits.Load(),
		Misses: r.misses.Load(),
	}
}

// Backend returns "redis".
func (r *RedisStore) Backend() string {
	return "redis"
}

// Ping checks the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.redis.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *RedisStore) Close() error {
	return r.redis.Close()
}
