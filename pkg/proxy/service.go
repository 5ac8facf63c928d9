// Package proxy implements the cache-aware request path shared by every
// proxied resource: build the cache key and upstream path, serve from cache
// when possible, otherwise call upstream and store successful answers.
package proxy

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/coc-api-proxy/pkg/cache"
	"github.com/Sternrassler/coc-api-proxy/pkg/client"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "coc_proxy_requests_total",
	Help: "Total proxied resource requests by resource and outcome",
}, []string{"resource", "outcome"})

// Upstream performs a single upstream call.
type Upstream interface {
	Call(ctx context.Context, path string) client.Result
}

// Config holds the TTL policy.
type Config struct {
	// DefaultTTL applies to every resource except current war
	DefaultTTL time.Duration

	// WarTTL applies to current war data
	WarTTL time.Duration
}

// DefaultConfig returns the production TTL policy.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: cache.DefaultTTL,
		WarTTL:     cache.WarTTL,
	}
}

// Service fetches resources through the response cache.
type Service struct {
	store    cache.Store
	upstream Upstream
	config   Config
	logger   zerolog.Logger
}

// NewService creates a Service. Zero TTLs fall back to the defaults.
func NewService(store cache.Store, upstream Upstream, cfg Config) *Service {
	if store == nil {
		panic("cache store cannot be nil")
	}
	if upstream == nil {
		panic("upstream cannot be nil")
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = cache.DefaultTTL
	}
	if cfg.WarTTL <= 0 {
		cfg.WarTTL = cache.WarTTL
	}
	return &Service{
		store:    store,
		upstream: upstream,
		config:   cfg,
		logger:   log.With().Str("component", "proxy").Logger(),
	}
}

// Fetch returns a resource for tag. For RaidSeasons the default limit is
// used; call FetchRaidSeasons to choose one.
func (s *Service) Fetch(ctx context.Context, res Resource, tag string) (client.Result, error) {
	return s.fetch(ctx, res, tag, DefaultRaidLimit)
}

// FetchRaidSeasons returns up to limit capital raid seasons for a clan.
// Each limit is cached separately.
func (s *Service) FetchRaidSeasons(ctx context.Context, tag string, limit int) (client.Result, error) {
	if limit <= 0 {
		return client.Result{}, ErrInvalidLimit
	}
	return s.fetch(ctx, RaidSeasons, tag, limit)
}

// fetch returns an error only for caller mistakes; upstream failures are
// reported inside the Result.
func (s *Service) fetch(ctx context.Context, res Resource, tag string, limit int) (client.Result, error) {
	normalized := cache.NormalizeTag(tag)
	if normalized == "" {
		return client.Result{}, ErrInvalidTag
	}

	path, err := res.upstreamPath(normalized, limit)
	if err != nil {
		return client.Result{}, err
	}

	key := cache.CacheKey{Resource: string(res), Tag: normalized}
	if res == RaidSeasons {
		key.Params = []string{strconv.Itoa(limit)}
	}
	cacheKey := key.String()

	logger := s.logger.With().
		Str("resource", string(res)).
		Str("cache_key", cacheKey).
		Logger()

	data, err := s.store.Get(ctx, cacheKey)
	switch {
	case err == nil:
		requestsTotal.WithLabelValues(string(res), "hit").Inc()
		logger.Debug().Msg("Serving from cache")
		return client.Success(data, true), nil
	case !errors.Is(err, cache.ErrCacheMiss):
		// lookup errors degrade to a miss
		logger.Warn().Err(err).Msg("Cache lookup failed, calling upstream")
	default:
		logger.Debug().Msg("Cache miss")
	}

	result := s.upstream.Call(ctx, path)
	if !result.OK {
		requestsTotal.WithLabelValues(string(res), "error").Inc()
		return result, nil
	}
	requestsTotal.WithLabelValues(string(res), "miss").Inc()

	if err := s.store.SetWithTTL(ctx, cacheKey, result.Data, s.ttlFor(res)); err != nil {
		logger.Warn().Err(err).Msg("Failed to store response in cache")
	} else {
		logger.Debug().Dur("ttl", s.ttlFor(res)).Msg("Stored response in cache")
	}
	return result, nil
}

func (s *Service) ttlFor(res Resource) time.Duration {
	if resources[res].shortTTL {
		return s.config.WarTTL
	}
	return s.config.DefaultTTL
}

// Store returns the underlying cache.
func (s *Service) Store() cache.Store {
	return s.store
}
