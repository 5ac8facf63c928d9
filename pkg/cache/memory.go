package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// MemoryConfig configures the in-process store.
type MemoryConfig struct {
	// DefaultTTL applies to Set
	DefaultTTL time.Duration

	// CheckPeriod is how often the janitor sweeps expired entries.
	// Zero disables the janitor; expiry is still enforced on read.
	CheckPeriod time.Duration

	// MaxTTL bounds how long bigcache keeps any entry. Entries stored with a
	// longer TTL may be dropped early, which only causes an extra miss.
	MaxTTL time.Duration

	// HardMaxCacheSize limits the cache size in MB (0 = unlimited)
	HardMaxCacheSize int

	// Clock is the time source (default: wall clock)
	Clock clock.Clock
}

// DefaultMemoryConfig returns the production configuration.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		DefaultTTL:  DefaultTTL,
		CheckPeriod: 60 * time.Second,
		MaxTTL:      time.Hour,
	}
}

// MemoryStore keeps entries in a bigcache instance.
type MemoryStore struct {
	cache      *bigcache.BigCache
	clock      clock.Clock
	defaultTTL time.Duration
	logger     zerolog.Logger

	// flushMu lets FlushAll count and reset without concurrent writers
	flushMu sync.RWMutex

	hits   atomic.Int64
	misses atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMemoryStore creates a new in-process store and starts its janitor.
func NewMemoryStore(cfg MemoryConfig) (*MemoryStore, error) {
	if cfg.DefaultTTL <= 0 {
		return nil, fmt.Errorf("default ttl must be positive (got %s)", cfg.DefaultTTL)
	}
	if cfg.MaxTTL < cfg.DefaultTTL {
		cfg.MaxTTL = cfg.DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	bcfg := bigcache.DefaultConfig(cfg.MaxTTL)
	bcfg.CleanWindow = 0 // expiry is per entry; the janitor sweeps
	bcfg.HardMaxCacheSize = cfg.HardMaxCacheSize
	// initial allocation sizing; entries may grow past these
	bcfg.Shards = 64
	bcfg.MaxEntriesInWindow = 1024
	bcfg.MaxEntrySize = 8 * 1024
	bcfg.Verbose = false

	bc, err := bigcache.New(context.Background(), bcfg)
	if err != nil {
		return nil, fmt.Errorf("create bigcache: %w", err)
	}

	m := &MemoryStore{
		cache:      bc,
		clock:      cfg.Clock,
		defaultTTL: cfg.DefaultTTL,
		logger:     log.With().Str("component", "cache").Str("backend", "memory").Logger(),
		stop:       make(chan struct{}),
	}

	if cfg.CheckPeriod > 0 {
		m.startJanitor(cfg.CheckPeriod)
	}

	return m, nil
}

// Get retrieves a value by key.
// Returns ErrCacheMiss if the key doesn't exist or the entry is expired.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.flushMu.RLock()
	defer m.flushMu.RUnlock()

	data, err := m.cache.Get(key)
	if err != nil {
		if !errors.Is(err, bigcache.ErrEntryNotFound) {
			CacheErrors.WithLabelValues(m.Backend(), "get").Inc()
		}
		return nil, m.miss()
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues(m.Backend(), "get").Inc()
		m.logger.Warn().Err(err).Str("cache_key", key).Msg("Dropping corrupted cache entry")
		_ = m.cache.Delete(key)
		_ = m.miss()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired(m.clock.Now()) {
		_ = m.cache.Delete(key)
		return nil, m.miss()
	}

	m.hits.Add(1)
	CacheHits.WithLabelValues(m.Backend()).Inc()
	return entry.Data, nil
}

func (m *MemoryStore) miss() error {
	m.misses.Add(1)
	CacheMisses.WithLabelValues(m.Backend()).Inc()
	return ErrCacheMiss
}

// Set stores a value with the default TTL.
func (m *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	return m.SetWithTTL(ctx, key, value, m.defaultTTL)
}

// SetWithTTL stores a value with an explicit TTL. A non-positive TTL stores
// nothing.
func (m *MemoryStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(newEntry(value, m.clock.Now(), ttl))
	if err != nil {
		CacheErrors.WithLabelValues(m.Backend(), "set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	m.flushMu.RLock()
	defer m.flushMu.RUnlock()

	if err := m.cache.Set(key, data); err != nil {
		CacheErrors.WithLabelValues(m.Backend(), "set").Inc()
		return fmt.Errorf("bigcache set: %w", err)
	}
	return nil
}

// Keys returns the number of entries that have not expired.
func (m *MemoryStore) Keys(ctx context.Context) (int, error) {
	m.flushMu.RLock()
	defer m.flushMu.RUnlock()

	live, _ := m.scan()
	return live, nil
}

// FlushAll removes every entry and returns how many live entries were removed.
func (m *MemoryStore) FlushAll(ctx context.Context) (int, error) {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	live, _ := m.scan()
	if err := m.cache.Reset(); err != nil {
		CacheErrors.WithLabelValues(m.Backend(), "flush").Inc()
		return 0, fmt.Errorf("bigcache reset: %w", err)
	}

	CacheFlushes.WithLabelValues(m.Backend()).Inc()
	m.logger.Info().Int("keys_cleared", live).Msg("Cache flushed")
	return live, nil
}

// Sweep deletes expired entries and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.flushMu.RLock()
	defer m.flushMu.RUnlock()

	_, expired := m.scan()
	for _, key := range expired {
		_ = m.cache.Delete(key)
	}

	if len(expired) > 0 {
		CacheEvictions.WithLabelValues(m.Backend()).Add(float64(len(expired)))
		m.logger.Debug().Int("expired", len(expired)).Msg("Swept expired cache entries")
	}
	return len(expired)
}

// scan walks the cache, counting live entries and collecting expired keys.
// Callers must hold flushMu.
func (m *MemoryStore) scan() (live int, expired []string) {
	now := m.clock.Now()
	it := m.cache.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			continue
		}
		var entry CacheEntry
		if err := json.Unmarshal(info.Value(), &entry); err != nil || entry.IsExpired(now) {
			expired = append(expired, info.Key())
			continue
		}
		live++
	}
	return live, expired
}

// Stats returns hit and miss counters.
func (m *MemoryStore) Stats() Stats {
	return Stats{
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
	}
}

// Backend returns "memory".
func (m *MemoryStore) Backend() string {
	return "memory"
}

// Close stops the janitor and releases the cache.
func (m *MemoryStore) Close() error {
	var err error
	m.stopOnce.Do(func() {
		close(m.stop)
		m.wg.Wait()
		err = m.cache.Close()
	})
	return err
}

func (m *MemoryStore) startJanitor(period time.Duration) {
	ticker := m.clock.Ticker(period)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
	m.logger.Debug().Dur("check_period", period).Msg("Started cache janitor")
}
