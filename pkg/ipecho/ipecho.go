// Package ipecho detects the proxy's public IP address by asking third-party
// IP echo services. The upstream API ties every credential to a whitelisted
// caller IP, so operators need this address when configuring a key.
package ipecho

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNoIP is returned when no service produced a usable address.
var ErrNoIP = errors.New("could not detect public IP")

// DefaultTimeout bounds each individual probe.
const DefaultTimeout = 5 * time.Second

// DefaultServices are queried in this order.
var DefaultServices = []string{
	"https://api.ipify.org?format=json",
	"https://api.my-ip.io/ip.json",
	"https://ipapi.co/json/",
}

var probesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "coc_ip_probes_total",
	Help: "Total IP echo probes by outcome",
}, []string{"outcome"})

// maxBodyBytes caps how much of an echo response is read.
const maxBodyBytes = 64 << 10

// Prober asks each configured service in turn until one answers with an IP.
// Services after the first success are never contacted.
type Prober struct {
	services   []string
	timeout    time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a prober. Empty services falls back to DefaultServices and a
// non-positive timeout to DefaultTimeout.
func New(services []string, timeout time.Duration) *Prober {
	if len(services) == 0 {
		services = DefaultServices
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		services:   append([]string(nil), services...),
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     log.With().Str("component", "ipecho").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (p *Prober) SetHTTPClient(client *http.Client) {
	p.httpClient = client
}

// Detect returns the first address reported by a service.
func (p *Prober) Detect(ctx context.Context) (string, error) {
	for _, svc := range p.services {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		ip, err := p.probe(ctx, svc)
		if err != nil {
			probesTotal.WithLabelValues("failure").Inc()
			p.logger.Debug().Err(err).Str("service", svc).Msg("IP echo service failed")
			continue
		}

		probesTotal.WithLabelValues("success").Inc()
		p.logger.Info().Str("service", svc).Str("ip", ip).Msg("Detected public IP")
		return ip, nil
	}

	p.logger.Warn().Int("services", len(p.services)).Msg("All IP echo services failed")
	return "", ErrNoIP
}

func (p *Prober) probe(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return parseIP(body)
}

// parseIP accepts {"ip": ...}, {"IP": ...} or a bare address.
func parseIP(body []byte) (string, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, field := range []string{"ip", "IP"} {
			if s, ok := payload[field].(string); ok && net.ParseIP(s) != nil {
				return s, nil
			}
		}
		return "", fmt.Errorf("no ip field in response")
	}

	s := string(bytes.TrimSpace(body))
	if net.ParseIP(s) == nil {
		return "", fmt.Errorf("response is not an IP address")
	}
	return s, nil
}
