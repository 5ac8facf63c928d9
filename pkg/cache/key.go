package cache

import (
	"net/url"
	"strings"
)

// NormalizeTag turns a caller-supplied clan or player tag into its URL-safe
// form, used both as an upstream path segment and as a cache key component.
//
// The tag is unescaped first, so "#ABC123" and "%23ABC123" normalize to the
// same value, then path-escaped. NormalizeTag is idempotent.
func NormalizeTag(tag string) string {
	raw, err := url.PathUnescape(tag)
	if err != nil {
		raw = tag
	}
	return url.PathEscape(strings.TrimSpace(raw))
}

// CacheKey identifies a cached upstream response.
type CacheKey struct {
	// Resource is the key namespace (e.g. "clan", "members", "war")
	Resource string

	// Tag is the clan or player tag; it is normalized by String
	Tag string

	// Params are extra discriminators, in order (e.g. a result limit)
	Params []string
}

// String generates a deterministic cache key string.
// Format: resource_tag[_param...]
//
// Example:
//
//	raids_%23ABC123_10
func (k CacheKey) String() string {
	parts := make([]string, 0, 2+len(k.Params))
	parts = append(parts, k.Resource, NormalizeTag(k.Tag))
	for _, p := range k.Params {
		if p == "" {
			continue
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "_")
}
