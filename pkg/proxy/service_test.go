package proxy

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/Sternrassler/coc-api-proxy/pkg/cache"
	"github.com/Sternrassler/coc-api-proxy/pkg/client"
)

// fakeUpstream answers every call from a fixed table and records paths.
type fakeUpstream struct {
	mu      sync.Mutex
	paths   []string
	results map[string]client.Result
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{results: make(map[string]client.Result)}
}

func (f *fakeUpstream) Call(ctx context.Context, path string) client.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	if r, ok := f.results[path]; ok {
		return r
	}
	return client.Success([]byte(`{"path":"`+path+`"}`), false)
}

func (f *fakeUpstream) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

// failingStore fails every lookup with a non-miss error.
type failingStore struct {
	*cache.NoopStore
}

func (failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func newTestService(t *testing.T, up Upstream) (*Service, *cache.MemoryStore, *clock.Mock) {
	t.Helper()

	clk := clock.NewMock()
	clk.Set(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	cfg := cache.DefaultMemoryConfig()
	cfg.CheckPeriod = 0
	cfg.Clock = clk
	store, err := cache.NewMemoryStore(cfg)
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewService(store, up, DefaultConfig()), store, clk
}

func TestFetch_ColdThenWarm(t *testing.T) {
	up := newFakeUpstream()
	svc, store, _ := newTestService(t, up)
	ctx := context.Background()

	first, err := svc.Fetch(ctx, Clan, "%23ABC123")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !first.OK || first.FromCache {
		t.Fatalf("first Fetch() = %+v, want upstream success", first)
	}

	cached, err := store.Get(ctx, "clan_%23ABC123")
	if err != nil {
		t.Fatalf("expected entry under clan_%%23ABC123: %v", err)
	}
	if string(cached) != string(first.Data) {
		t.Errorf("cached = %s, want %s", cached, first.Data)
	}

	second, err := svc.Fetch(ctx, Clan, "%23ABC123")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !second.OK || !second.FromCache {
		t.Errorf("second Fetch() = %+v, want cache hit", second)
	}
	if string(second.Data) != string(first.Data) {
		t.Errorf("second Data = %s, want %s", second.Data, first.Data)
	}

	if got := up.calls(); len(got) != 1 || got[0] != "/clans/%23ABC123" {
		t.Errorf("upstream calls = %v, want [/clans/%%23ABC123]", got)
	}
}

func TestFetch_TagForms(t *testing.T) {
	up := newFakeUpstream()
	svc, _, _ := newTestService(t, up)
	ctx := context.Background()

	// raw and escaped forms share one cache entry
	for _, tag := range []string{"#ABC123", "%23ABC123", " #ABC123 "} {
		if _, err := svc.Fetch(ctx, Player, tag); err != nil {
			t.Fatalf("Fetch(%q) error = %v", tag, err)
		}
	}

	if got := up.calls(); len(got) != 1 || got[0] != "/players/%23ABC123" {
		t.Errorf("upstream calls = %v, want one call to /players/%%23ABC123", got)
	}
}

func TestFetch_UpstreamPaths(t *testing.T) {
	tests := []struct {
		resource Resource
		want     string
	}{
		{Clan, "/clans/%23C"},
		{Members, "/clans/%23C/members"},
		{CurrentWar, "/clans/%23C/currentwar"},
		{LeagueGroup, "/clans/%23C/currentwar/leaguegroup"},
		{RaidSeasons, "/clans/%23C/capitalraidseasons?limit=10"},
		{Player, "/players/%23C"},
	}

	for _, tt := range tests {
		t.Run(string(tt.resource), func(t *testing.T) {
			up := newFakeUpstream()
			svc, _, _ := newTestService(t, up)

			if _, err := svc.Fetch(context.Background(), tt.resource, "#C"); err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if got := up.calls(); len(got) != 1 || got[0] != tt.want {
				t.Errorf("upstream calls = %v, want [%s]", got, tt.want)
			}
		})
	}
}

func TestFetch_FailuresNotCached(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusNotFound, http.StatusTooManyRequests, http.StatusServiceUnavailable, 0} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			up := newFakeUpstream()
			up.results["/clans/%23X"] = client.Failure(&client.UpstreamError{Status: status})
			svc, store, _ := newTestService(t, up)
			ctx := context.Background()

			for i := 0; i < 2; i++ {
				res, err := svc.Fetch(ctx, Clan, "#X")
				if err != nil {
					t.Fatalf("Fetch() error = %v", err)
				}
				if res.OK {
					t.Fatal("Fetch() should relay the failure")
				}
				if res.Err.Status != status {
					t.Errorf("Status = %d, want %d", res.Err.Status, status)
				}
			}

			if got := len(up.calls()); got != 2 {
				t.Errorf("upstream called %d times, want 2", got)
			}
			if n, _ := store.Keys(ctx); n != 0 {
				t.Errorf("cache holds %d keys, want 0", n)
			}
		})
	}
}

func TestFetchRaidSeasons_KeyedByLimit(t *testing.T) {
	up := newFakeUpstream()
	svc, store, _ := newTestService(t, up)
	ctx := context.Background()

	for _, limit := range []int{5, 10, 5} {
		if _, err := svc.FetchRaidSeasons(ctx, "%23ABC123", limit); err != nil {
			t.Fatalf("FetchRaidSeasons(%d) error = %v", limit, err)
		}
	}

	want := []string{
		"/clans/%23ABC123/capitalraidseasons?limit=5",
		"/clans/%23ABC123/capitalraidseasons?limit=10",
	}
	got := up.calls()
	if len(got) != len(want) {
		t.Fatalf("upstream calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}

	for _, key := range []string{"raids_%23ABC123_5", "raids_%23ABC123_10"} {
		if _, err := store.Get(ctx, key); err != nil {
			t.Errorf("expected cache entry %s: %v", key, err)
		}
	}
}

func TestFetchRaidSeasons_InvalidLimit(t *testing.T) {
	up := newFakeUpstream()
	svc, _, _ := newTestService(t, up)

	if _, err := svc.FetchRaidSeasons(context.Background(), "#A", 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("error = %v, want ErrInvalidLimit", err)
	}
	if len(up.calls()) != 0 {
		t.Error("upstream must not be called for an invalid limit")
	}
}

func TestFetch_WarUsesShortTTL(t *testing.T) {
	up := newFakeUpstream()
	svc, _, clk := newTestService(t, up)
	ctx := context.Background()

	svc.Fetch(ctx, CurrentWar, "#W")
	svc.Fetch(ctx, Clan, "#W")

	clk.Add(cache.WarTTL)

	svc.Fetch(ctx, CurrentWar, "#W")
	svc.Fetch(ctx, Clan, "#W")

	want := []string{"/clans/%23W/currentwar", "/clans/%23W", "/clans/%23W/currentwar"}
	got := up.calls()
	if len(got) != len(want) {
		t.Fatalf("upstream calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFetch_InvalidInput(t *testing.T) {
	up := newFakeUpstream()
	svc, _, _ := newTestService(t, up)
	ctx := context.Background()

	if _, err := svc.Fetch(ctx, Clan, "   "); !errors.Is(err, ErrInvalidTag) {
		t.Errorf("blank tag error = %v, want ErrInvalidTag", err)
	}
	if _, err := svc.Fetch(ctx, Resource("league"), "#A"); !errors.Is(err, ErrUnknownResource) {
		t.Errorf("unknown resource error = %v, want ErrUnknownResource", err)
	}
	if len(up.calls()) != 0 {
		t.Error("upstream must not be called for invalid input")
	}
}

func TestFetch_CacheErrorFallsThrough(t *testing.T) {
	up := newFakeUpstream()
	svc := NewService(failingStore{cache.NewNoopStore()}, up, DefaultConfig())

	res, err := svc.Fetch(context.Background(), Clan, "#A")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !res.OK || res.FromCache {
		t.Errorf("Fetch() = %+v, want upstream success", res)
	}
	if len(up.calls()) != 1 {
		t.Errorf("upstream called %d times, want 1", len(up.calls()))
	}
}

func TestResources_AllHavePaths(t *testing.T) {
	for _, res := range Resources() {
		path, err := res.upstreamPath("%23X", DefaultRaidLimit)
		if err != nil {
			t.Errorf("upstreamPath(%s) error = %v", res, err)
			continue
		}
		if path == "" || path[0] != '/' {
			t.Errorf("upstreamPath(%s) = %q, want absolute path", res, path)
		}
	}
}

func TestService_Store(t *testing.T) {
	svc, store, _ := newTestService(t, newFakeUpstream())
	if svc.Store() != cache.Store(store) {
		t.Error("Store() should return the configured cache")
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", DefaultRaidLimit, false},
		{"5", 5, false},
		{" 25 ", 25, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"ten", 0, true},
		{"5.5", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseLimit(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidLimit) {
				t.Errorf("ParseLimit(%q) error = %v, want ErrInvalidLimit", tt.raw, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseLimit(%q) = %d, %v; want %d", tt.raw, got, err, tt.want)
		}
	}
}
