package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/coc-api-proxy/internal/server"
	"github.com/Sternrassler/coc-api-proxy/pkg/cache"
	"github.com/Sternrassler/coc-api-proxy/pkg/client"
	"github.com/Sternrassler/coc-api-proxy/pkg/config"
	"github.com/Sternrassler/coc-api-proxy/pkg/credentials"
	"github.com/Sternrassler/coc-api-proxy/pkg/ipecho"
	"github.com/Sternrassler/coc-api-proxy/pkg/logging"
	"github.com/Sternrassler/coc-api-proxy/pkg/proxy"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Configuration from environment
	cfg, err := config.Load()
	if err != nil {
		var startupErr *config.StartupConfigError
		if errors.As(err, &startupErr) && errors.Is(err, config.ErrNoCredentials) {
			fmt.Fprintln(os.Stderr, "ERROR: COC_API_KEY is not set in environment variables!")
			fmt.Fprintln(os.Stderr, "Set COC_API_KEY (or COC_API_KEYS for rotation) in the environment or a .env file")
		}
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// run wires the proxy together and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, banner io.Writer) error {
	app, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.store.Close()

	printBanner(banner, cfg, app.creds)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.ListenAndServe(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutdown signal received: closing server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil {
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}

type app struct {
	creds  []string
	store  cache.Store
	server *server.Server
}

// build constructs every component from cfg.
func build(ctx context.Context, cfg *config.Config) (*app, error) {
	creds := cfg.Credentials()
	rotator, err := credentials.NewRotator(creds)
	if err != nil {
		return nil, &config.StartupConfigError{Field: "COC_API_KEY", Err: err}
	}
	tracker := credentials.NewTracker(creds, logging.NewLogger("credentials"))

	upstream, err := client.New(client.Config{
		BaseURL: cfg.UpstreamBaseURL,
		Timeout: cfg.UpstreamTimeout,
	}, rotator, tracker)
	if err != nil {
		return nil, fmt.Errorf("create upstream client: %w", err)
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	svc := proxy.NewService(store, upstream, proxy.Config{
		DefaultTTL: cfg.CacheTTL,
		WarTTL:     cfg.WarCacheTTL,
	})

	srv, err := server.New(server.Deps{
		Fetcher:     svc,
		Cache:       store,
		Credentials: tracker,
		IP:          ipecho.New(nil, cfg.IPProbeTimeout),
	}, server.Options{
		CORSOrigins: cfg.CORSOrigins,
		StaticDir:   cfg.StaticDir,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create server: %w", err)
	}

	return &app{creds: creds, store: store, server: srv}, nil
}

// newStore selects the cache backend.
func newStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	if !cfg.CacheEnabled {
		log.Info().Msg("Response caching disabled")
		return cache.NewNoopStore(), nil
	}

	switch cfg.CacheBackend {
	case config.BackendRedis:
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		store := cache.NewRedisStore(redisClient, cache.RedisConfig{DefaultTTL: cfg.CacheTTL})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			store.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisURL, err)
		}
		log.Info().Str("redis", cfg.RedisURL).Msg("Connected to Redis")
		return store, nil

	default:
		memCfg := cache.DefaultMemoryConfig()
		memCfg.DefaultTTL = cfg.CacheTTL
		memCfg.CheckPeriod = cfg.CacheCheckPeriod
		memCfg.MaxTTL = max(cfg.CacheTTL, cfg.WarCacheTTL)
		store, err := cache.NewMemoryStore(memCfg)
		if err != nil {
			return nil, fmt.Errorf("create memory cache: %w", err)
		}
		return store, nil
	}
}

// newRedisClient accepts either a redis:// URL or a bare host:port.
func newRedisClient(target string) (*redis.Client, error) {
	if strings.Contains(target, "://") {
		opts, err := redis.ParseURL(target)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: target}), nil
}

func printBanner(w io.Writer, cfg *config.Config, creds []string) {
	masked := make([]string, len(creds))
	for i, c := range creds {
		masked[i] = logging.MaskSecret(c)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "========================================")
	fmt.Fprintf(w, "   %s\n", server.Title)
	fmt.Fprintln(w, "========================================")
	fmt.Fprintf(w, "   Server:  http://localhost:%d\n", cfg.Port)
	fmt.Fprintf(w, "   API Key: %s\n", strings.Join(masked, ", "))
	fmt.Fprintf(w, "   Cache:   %s\n", cacheDescription(cfg))
	fmt.Fprintln(w, "========================================")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Available Endpoints:")
	fmt.Fprintln(w, "   GET  /                  - API info")
	fmt.Fprintln(w, "   GET  /health            - Server health")
	fmt.Fprintln(w, "   GET  /myip              - Get server IP")
	fmt.Fprintln(w, "   POST /cache/clear       - Clear cache")
	fmt.Fprintln(w, "   GET  /clan/:tag         - Clan info")
	fmt.Fprintln(w, "   GET  /clan/:tag/members - Clan members")
	fmt.Fprintln(w, "   GET  /clan/:tag/currentwar - Current war")
	fmt.Fprintln(w, "   GET  /clan/:tag/currentwar/leaguegroup - CWL")
	fmt.Fprintln(w, "   GET  /clan/:tag/capitalraidseasons - Raids")
	fmt.Fprintln(w, "   GET  /player/:tag       - Player info")
	fmt.Fprintln(w, "   GET  /metrics           - Prometheus metrics")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next Steps:")
	fmt.Fprintln(w, "   1. Visit /myip to get your server IP")
	fmt.Fprintln(w, "   2. Add IP to CoC API key at:")
	fmt.Fprintln(w, "      https://developer.clashofclans.com/")
	fmt.Fprintln(w, "   3. Test: /clan/%232L0QRVR2V")
	fmt.Fprintln(w)
}

func cacheDescription(cfg *config.Config) string {
	if !cfg.CacheEnabled {
		return "disabled"
	}
	return fmt.Sprintf("%s (ttl %s, war ttl %s)", cfg.CacheBackend, cfg.CacheTTL, cfg.WarCacheTTL)
}
