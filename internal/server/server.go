// Package server exposes the proxy over HTTP: the resource routes, the
// operational endpoints (/health, /myip, /cache/clear, /metrics) and the
// middleware chain around them.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/coc-api-proxy/pkg/cache"
	"github.com/Sternrassler/coc-api-proxy/pkg/client"
	"github.com/Sternrassler/coc-api-proxy/pkg/credentials"
	"github.com/Sternrassler/coc-api-proxy/pkg/proxy"
)

const (
	// Title and Version are reported on the root endpoint.
	Title   = "The Mugiwara Clan API Server"
	Version = "2.0.0"
)

// Fetcher serves proxied resources, normally a *proxy.Service.
type Fetcher interface {
	Fetch(ctx context.Context, res proxy.Resource, tag string) (client.Result, error)
	FetchRaidSeasons(ctx context.Context, tag string, limit int) (client.Result, error)
}

// CredentialReporter exposes credential health, normally a
// *credentials.Tracker.
type CredentialReporter interface {
	Snapshot() []credentials.CredentialState
	Healthy() int
}

// IPDetector finds the proxy's public IP, normally an *ipecho.Prober.
type IPDetector interface {
	Detect(ctx context.Context) (string, error)
}

// Deps are the collaborators the server needs.
type Deps struct {
	Fetcher     Fetcher
	Cache       cache.Store
	Credentials CredentialReporter
	IP          IPDetector
}

// Options tune the HTTP surface.
type Options struct {
	// CORSOrigins lists allowed origins; "*" allows any
	CORSOrigins []string

	// StaticDir, when set, is served under /app/
	StaticDir string

	// Clock is the time source (default: wall clock)
	Clock clock.Clock
}

// Server is the proxy's HTTP server.
type Server struct {
	deps    Deps
	opts    Options
	clock   clock.Clock
	started time.Time
	logger  zerolog.Logger

	handler    http.Handler
	httpServer *http.Server
}

// New creates a server. Fetcher, Cache and IP are required.
func New(deps Deps, opts Options) (*Server, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if deps.Cache == nil {
		return nil, errors.New("cache store is required")
	}
	if deps.IP == nil {
		return nil, errors.New("ip detector is required")
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	s := &Server{
		deps:    deps,
		opts:    opts,
		clock:   opts.Clock,
		started: opts.Clock.Now(),
		logger:  log.With().Str("component", "http-server").Logger(),
	}
	s.handler = s.middleware(s.createRouter())
	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until Shutdown is called. It returns nil
// after a clean shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info().Msg("Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}
