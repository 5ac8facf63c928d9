package credentials

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/coc-api-proxy/pkg/logging"
)

// Prometheus metrics for credential usage.
var (
	credentialCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coc_credential_calls_total",
		Help: "Total upstream calls by credential index and status",
	}, []string{"credential", "status"})

	credentialHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "coc_credential_healthy",
		Help: "1 if the credential's last upstream answer was healthy, 0 otherwise",
	}, []string{"credential"})
)

// Tracker records how the upstream API answers each credential.
// It only observes; it never blocks or reorders requests.
type Tracker struct {
	mu     sync.Mutex
	states []CredentialState
	clock  clock.Clock
	logger zerolog.Logger
}

// NewTracker creates a tracker for the given credential set.
func NewTracker(creds []string, logger zerolog.Logger) *Tracker {
	return NewTrackerWithClock(creds, logger, clock.New())
}

// NewTrackerWithClock creates a tracker that reads time from clk.
func NewTrackerWithClock(creds []string, logger zerolog.Logger, clk clock.Clock) *Tracker {
	states := make([]CredentialState, len(creds))
	for i, c := range creds {
		states[i] = CredentialState{
			Index:  i,
			Masked: logging.MaskSecret(c),
			Health: HealthUnknown,
		}
		credentialHealthy.WithLabelValues(strconv.Itoa(i)).Set(1)
	}
	return &Tracker{
		states: states,
		clock:  clk,
		logger: logger,
	}
}

// Record stores the outcome of an upstream call made with credential index.
// status is the HTTP status, or 0 for a transport failure. Unknown indexes
// are ignored.
func (t *Tracker) Record(index, status int) {
	t.mu.Lock()
	if index < 0 || index >= len(t.states) {
		t.mu.Unlock()
		return
	}

	s := &t.states[index]
	prev := s.Health
	s.Uses++
	s.LastStatus = status
	s.LastUsed = t.clock.Now()
	s.Health = healthFor(status)
	switch status {
	case http.StatusForbidden:
		s.Unauthorized++
	case http.StatusTooManyRequests:
		s.RateLimited++
	}
	snapshot := *s
	t.mu.Unlock()

	label := strconv.Itoa(index)
	credentialCallsTotal.WithLabelValues(label, strconv.Itoa(status)).Inc()
	if snapshot.IsHealthy() {
		credentialHealthy.WithLabelValues(label).Set(1)
	} else {
		credentialHealthy.WithLabelValues(label).Set(0)
	}

	if prev == snapshot.Health {
		return
	}

	event := t.logger.Info()
	if !snapshot.IsHealthy() {
		event = t.logger.Warn()
	}
	event.
		Int("credential_index", index).
		Str("credential", snapshot.Masked).
		Int("status", status).
		Str("health", string(snapshot.Health)).
		Msg("Credential health changed")
}

// Snapshot returns a copy of every credential's state, in configured order.
func (t *Tracker) Snapshot() []CredentialState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]CredentialState, len(t.states))
	copy(out, t.states)
	return out
}

// Healthy returns how many credentials are currently considered healthy.
func (t *Tracker) Healthy() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for i := range t.states {
		if t.states[i].IsHealthy() {
			n++
		}
	}
	return n
}
