package credentials

import (
	"net/http"
	"time"
)

// Health describes how the upstream API last answered a credential.
type Health string

const (
	// HealthUnknown means the credential has not been used yet.
	HealthUnknown Health = "unknown"

	// HealthOK means the last call with this credential was answered normally.
	HealthOK Health = "ok"

	// HealthUnauthorized means the upstream rejected the credential with 403,
	// usually because the caller IP is not whitelisted for the key.
	HealthUnauthorized Health = "unauthorized"

	// HealthRateLimited means the last call with this credential got a 429.
	HealthRateLimited Health = "rate_limited"

	// HealthUnreachable means the last call failed before any response arrived.
	HealthUnreachable Health = "unreachable"
)

// CredentialState is the observed state of a single credential.
// It is reported on /health and never includes the secret itself.
type CredentialState struct {
	// Index is the credential's position in the configured set.
	Index int `json:"index"`

	// Masked is a recognisable prefix of the credential.
	Masked string `json:"credential"`

	// Uses counts upstream calls made with this credential.
	Uses int64 `json:"uses"`

	// Unauthorized counts 403 answers.
	Unauthorized int64 `json:"unauthorized"`

	// RateLimited counts 429 answers.
	RateLimited int64 `json:"rateLimited"`

	// LastStatus is the last HTTP status seen, 0 for transport failures.
	LastStatus int `json:"lastStatus"`

	// LastUsed is when the credential was last used.
	LastUsed time.Time `json:"lastUsed,omitempty"`

	// Health is derived from LastStatus.
	Health Health `json:"health"`
}

// healthFor maps an upstream status to a Health value.
func healthFor(status int) Health {
	switch {
	case status == 0:
		return HealthUnreachable
	case status == http.StatusForbidden:
		return HealthUnauthorized
	case status == http.StatusTooManyRequests:
		return HealthRateLimited
	default:
		return HealthOK
	}
}

// IsHealthy returns true unless the last answer rejected or throttled the
// credential. Unused credentials count as healthy.
func (s *CredentialState) IsHealthy() bool {
	switch s.Health {
	case HealthUnauthorized, HealthRateLimited, HealthUnreachable:
		return false
	default:
		return true
	}
}

// IsStale returns true if the credential has not been used within maxAge.
func (s *CredentialState) IsStale(now time.Time, maxAge time.Duration) bool {
	if s.LastUsed.IsZero() {
		return true
	}
	return now.Sub(s.LastUsed) > maxAge
}
