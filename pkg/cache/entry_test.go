package cache

import (
	"testing"
	"time"
)

func TestCacheEntry_IsExpired(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{
			name:      "expired entry",
			expiresAt: now.Add(-1 * time.Hour),
			want:      true,
		},
		{
			name:      "valid entry",
			expiresAt: now.Add(1 * time.Hour),
			want:      false,
		},
		{
			name:      "expires exactly now",
			expiresAt: now,
			want:      true,
		},
		{
			name:      "one nanosecond left",
			expiresAt: now.Add(time.Nanosecond),
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{
				ExpiresAt: tt.expiresAt,
			}
			if got := entry.IsExpired(now); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheEntry_TTL(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      time.Duration
	}{
		{
			name:      "five minutes remaining",
			expiresAt: now.Add(5 * time.Minute),
			want:      5 * time.Minute,
		},
		{
			name:      "already expired",
			expiresAt: now.Add(-1 * time.Hour),
			want:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{
				ExpiresAt: tt.expiresAt,
			}
			if got := entry.TTL(now); got != tt.want {
				t.Errorf("TTL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEntry(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	e := newEntry([]byte("payload"), now, 2*time.Minute)

	if !e.CachedAt.Equal(now) {
		t.Errorf("CachedAt = %v, want %v", e.CachedAt, now)
	}
	if !e.ExpiresAt.Equal(now.Add(2 * time.Minute)) {
		t.Errorf("ExpiresAt = %v, want %v", e.ExpiresAt, now.Add(2*time.Minute))
	}
	if string(e.Data) != "payload" {
		t.Errorf("Data = %q, want %q", e.Data, "payload")
	}
}
