// Package client provides the upstream Clash of Clans API client: bearer
// credential selection, a bounded per-call timeout, and classification of
// every outcome into a Result envelope.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/coc-api-proxy/pkg/logging"
)

// Prometheus metrics for upstream API calls.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coc_upstream_requests_total",
		Help: "Total upstream API requests by status",
	}, []string{"status"})

	upstreamRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coc_upstream_request_duration_seconds",
		Help:    "Upstream API request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coc_upstream_errors_total",
		Help: "Total upstream API errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the Clash of Clans API root. All paths are relative to it.
	DefaultBaseURL = "https://api.clashofclans.com/v1"

	// DefaultTimeout bounds every upstream call.
	DefaultTimeout = 10 * time.Second

	// maxBodyBytes caps how much of an upstream body is read.
	maxBodyBytes = 16 << 20
)

// CredentialSource hands out the credential for the next call together with
// its position in the credential set.
type CredentialSource interface {
	Pick() (int, string)
}

// StatusRecorder observes the status each credential was answered with.
type StatusRecorder interface {
	Record(index, status int)
}

// Result is the uniform outcome of an upstream call or cache lookup.
type Result struct {
	// OK is true on success; Data then holds the verbatim upstream body.
	OK   bool
	Data []byte

	// FromCache is set when Data was served from the response cache.
	FromCache bool

	// Err is set on failure.
	Err *UpstreamError
}

// Success builds a successful Result.
func Success(data []byte, fromCache bool) Result {
	return Result{OK: true, Data: data, FromCache: fromCache}
}

// Failure builds a failed Result.
func Failure(err *UpstreamError) Result {
	return Result{Err: err}
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the upstream API root, without a trailing slash.
	BaseURL string

	// Timeout bounds each call, including reading the body.
	Timeout time.Duration
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

// Client calls the upstream API. It never retries; retry policy belongs to
// the caller.
type Client struct {
	httpClient  *http.Client
	credentials CredentialSource
	recorder    StatusRecorder
	config      Config
	logger      zerolog.Logger
}

// New creates a new upstream client. recorder may be nil.
func New(cfg Config, creds CredentialSource, recorder StatusRecorder) (*Client, error) {
	if creds == nil {
		return nil, fmt.Errorf("credential source is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		credentials: creds,
		recorder:    recorder,
		config:      cfg,
		logger:      log.With().Str("component", "upstream-client").Logger(),
	}, nil
}

// Call performs a GET against path, relative to the base URL, and classifies
// the outcome. Upstream failures are returned inside the Result, never as a
// Go error.
func (c *Client) Call(ctx context.Context, path string) Result {
	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	idx, credential := c.credentials.Pick()
	logger := c.logger.With().
		Str("path", path).
		Str("credential", logging.MaskSecret(credential)).
		Logger()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build upstream request")
		return c.fail(idx, transportError(err))
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")

	logger.Debug().Msg("Calling upstream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error().Err(err).Dur("duration", time.Since(startTime)).Msg("Upstream request failed")
		return c.fail(idx, transportError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		logger.Error().Err(err).Int("status", resp.StatusCode).Msg("Failed to read upstream body")
		return c.fail(idx, transportError(fmt.Errorf("read response body: %w", err)))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		upErr := classifyStatus(resp.StatusCode, upstreamMessage(body))
		logger.Warn().
			Int("status", upErr.Status).
			Str("error_class", string(upErr.ErrorClass)).
			Str("details", upErr.Details).
			Msg("Upstream API error")
		return c.fail(idx, upErr)
	}

	c.record(idx, resp.StatusCode)
	upstreamRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	logger.Info().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(startTime)).
		Msg("Upstream call succeeded")

	return Success(body, false)
}

func (c *Client) fail(idx int, upErr *UpstreamError) Result {
	c.record(idx, upErr.Status)
	upstreamRequestsTotal.WithLabelValues(strconv.Itoa(upErr.Status)).Inc()
	upstreamErrorsTotal.WithLabelValues(string(upErr.ErrorClass)).Inc()
	return Failure(upErr)
}

func (c *Client) record(idx, status int) {
	if c.recorder != nil {
		c.recorder.Record(idx, status)
	}
}

// upstreamMessage extracts the upstream's own explanation from an error body.
// The API answers errors with {"reason": "...", "message": "..."}.
func upstreamMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Reason
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
