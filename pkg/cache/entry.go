package cache

import (
	"time"
)

// CacheEntry is a cached upstream payload.
type CacheEntry struct {
	// Data is the verbatim upstream response body
	Data []byte `json:"data"`

	// ExpiresAt is when the entry stops being served
	ExpiresAt time.Time `json:"expires_at"`

	// CachedAt is when the entry was stored
	CachedAt time.Time `json:"cached_at"`
}

// newEntry builds an entry stored at now that lives for ttl.
func newEntry(data []byte, now time.Time, ttl time.Duration) CacheEntry {
	return CacheEntry{
		Data:      data,
		ExpiresAt: now.Add(ttl),
		CachedAt:  now,
	}
}

// IsExpired returns true if the entry has expired at now.
// An entry is expired from its ExpiresAt instant onward.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TTL returns the time left until expiration at now.
// Returns 0 if already expired.
func (e *CacheEntry) TTL(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
