// Package credentials manages the upstream API credentials: round-robin
// rotation across the configured set, and passive tracking of how each
// credential is being answered by the upstream API.
package credentials

import (
	"errors"
	"strings"
	"sync/atomic"
)

// ErrNoCredentials is returned when a rotator is built from an empty set.
var ErrNoCredentials = errors.New("credential set is empty")

// Rotator hands out credentials in round-robin order.
// It is safe for concurrent use.
type Rotator struct {
	creds  []string
	cursor atomic.Uint64
}

// NewRotator creates a rotator over creds. Blank entries are ignored; the
// remaining order is preserved. The slice is copied.
func NewRotator(creds []string) (*Rotator, error) {
	kept := make([]string, 0, len(creds))
	for _, c := range creds {
		if strings.TrimSpace(c) == "" {
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return nil, ErrNoCredentials
	}
	return &Rotator{creds: kept}, nil
}

// Next returns the next credential.
func (r *Rotator) Next() string {
	_, c := r.Pick()
	return c
}

// Pick returns the next credential together with its position in the set.
func (r *Rotator) Pick() (int, string) {
	// counter starts at 1 after the first Add
	n := r.cursor.Add(1) - 1
	idx := int(n % uint64(len(r.creds)))
	return idx, r.creds[idx]
}

// Len returns the number of credentials in rotation.
func (r *Rotator) Len() int {
	return len(r.creds)
}
