// Package config loads the proxy configuration from the environment.
//
// Values are read from process environment variables, optionally seeded from
// a .env file in the working directory. At least one upstream credential is
// required; without one Load returns a *StartupConfigError and the process
// must exit before it starts listening.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrNoCredentials indicates that neither COC_API_KEY nor COC_API_KEYS is set.
var ErrNoCredentials = errors.New("no upstream API credentials configured")

// StartupConfigError is a fatal configuration problem detected before the
// server starts.
type StartupConfigError struct {
	Field string
	Err   error
}

// Error implements the error interface.
func (e *StartupConfigError) Error() string {
	return fmt.Sprintf("startup config %s: %v", e.Field, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StartupConfigError) Unwrap() error {
	return e.Err
}

// Cache backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds the proxy configuration.
type Config struct {
	// Upstream credentials. APIKey is the single-key form, APIKeys the
	// comma-separated rotation list. Both may be set; APIKey comes first.
	APIKey  string   `env:"COC_API_KEY"`
	APIKeys []string `env:"COC_API_KEYS" envSeparator:","`

	// RotateKeys enables round-robin rotation across all credentials.
	// When false only the first credential is used.
	RotateKeys bool `env:"ROTATE_KEYS" envDefault:"true"`

	Port            int           `env:"PORT" envDefault:"5000"`
	UpstreamBaseURL string        `env:"COC_API_BASE" envDefault:"https://api.clashofclans.com/v1"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`

	// Caching
	CacheEnabled     bool          `env:"CACHE_ENABLED" envDefault:"true"`
	CacheBackend     string        `env:"CACHE_BACKEND" envDefault:"memory"`
	RedisURL         string        `env:"REDIS_URL" envDefault:"localhost:6379"`
	CacheTTL         time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	WarCacheTTL      time.Duration `env:"WAR_CACHE_TTL" envDefault:"2m"`
	CacheCheckPeriod time.Duration `env:"CACHE_CHECK_PERIOD" envDefault:"60s"`

	IPProbeTimeout time.Duration `env:"IP_PROBE_TIMEOUT" envDefault:"5s"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	StaticDir   string   `env:"STATIC_DIR"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// Load reads a .env file if one exists, then parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse builds a Config from the current process environment and validates it.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Credentials returns the configured credentials in order, without blanks or
// duplicates. When rotation is disabled only the first credential is returned.
func (c *Config) Credentials() []string {
	seen := make(map[string]struct{})
	var creds []string

	add := func(k string) {
		k = strings.TrimSpace(k)
		if k == "" {
			return
		}
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		creds = append(creds, k)
	}

	add(c.APIKey)
	for _, k := range c.APIKeys {
		add(k)
	}

	if !c.RotateKeys && len(creds) > 1 {
		creds = creds[:1]
	}
	return creds
}

// Validate checks the configuration for fatal problems.
func (c *Config) Validate() error {
	if len(c.Credentials()) == 0 {
		return &StartupConfigError{Field: "COC_API_KEY", Err: ErrNoCredentials}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return &StartupConfigError{Field: "PORT", Err: fmt.Errorf("port %d out of range", c.Port)}
	}
	switch c.CacheBackend {
	case BackendMemory, BackendRedis:
	default:
		return &StartupConfigError{
			Field: "CACHE_BACKEND",
			Err:   fmt.Errorf("unknown backend %q (want %s or %s)", c.CacheBackend, BackendMemory, BackendRedis),
		}
	}
	if c.CacheTTL <= 0 {
		return &StartupConfigError{Field: "CACHE_TTL", Err: fmt.Errorf("must be positive (got %s)", c.CacheTTL)}
	}
	if c.WarCacheTTL <= 0 {
		return &StartupConfigError{Field: "WAR_CACHE_TTL", Err: fmt.Errorf("must be positive (got %s)", c.WarCacheTTL)}
	}
	if c.UpstreamTimeout <= 0 {
		return &StartupConfigError{Field: "UPSTREAM_TIMEOUT", Err: fmt.Errorf("must be positive (got %s)", c.UpstreamTimeout)}
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
