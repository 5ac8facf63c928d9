package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/coc-api-proxy/internal/testutil"
	"github.com/Sternrassler/coc-api-proxy/pkg/cache"
	"github.com/Sternrassler/coc-api-proxy/pkg/config"
)

func setupTestRedis(t *testing.T) (string, func()) {
	if testing.Short() {
		t.Skip("skipping Redis container test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Redis container not available: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cleanup := func() {
		redisC.Terminate(ctx)
	}

	return host + ":" + port.Port(), cleanup
}

// testConfig builds a Config through the real environment parser.
func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()

	t.Setenv("COC_API_KEY", "test-key-1234567890")
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := config.Parse()
	if err != nil {
		t.Fatalf("config.Parse() error = %v", err)
	}
	return cfg
}

func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestNewStore(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		wantBackend string
	}{
		{
			name:        "memory by default",
			wantBackend: "memory",
		},
		{
			name:        "caching disabled",
			env:         map[string]string{"CACHE_ENABLED": "false"},
			wantBackend: "noop",
		},
		{
			name:        "disabled wins over backend",
			env:         map[string]string{"CACHE_ENABLED": "false", "CACHE_BACKEND": "redis"},
			wantBackend: "noop",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, tt.env)

			store, err := newStore(context.Background(), cfg)
			if err != nil {
				t.Fatalf("newStore() error = %v", err)
			}
			defer store.Close()

			if store.Backend() != tt.wantBackend {
				t.Errorf("Backend() = %q, want %q", store.Backend(), tt.wantBackend)
			}
		})
	}
}

func TestNewStore_RedisUnavailable(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"CACHE_BACKEND": "redis",
		"REDIS_URL":     fmt.Sprintf("127.0.0.1:%d", freePort(t)),
	})

	if _, err := newStore(context.Background(), cfg); err == nil {
		t.Error("newStore() should fail when Redis is unreachable")
	}
}

func TestNewStore_Redis(t *testing.T) {
	addr, cleanup := setupTestRedis(t)
	defer cleanup()

	for _, target := range []string{addr, "redis://" + addr + "/0"} {
		cfg := testConfig(t, map[string]string{
			"CACHE_BACKEND": "redis",
			"REDIS_URL":     target,
		})

		store, err := newStore(context.Background(), cfg)
		if err != nil {
			t.Fatalf("newStore(%s) error = %v", target, err)
		}

		ctx := context.Background()
		if err := store.Set(ctx, "clan_%23A", []byte(`{}`)); err != nil {
			t.Errorf("Set() error = %v", err)
		}
		if _, err := store.Get(ctx, "clan_%23A"); err != nil {
			t.Errorf("Get() error = %v", err)
		}
		store.Close()
	}
}

func TestNewRedisClient_BadURL(t *testing.T) {
	if _, err := newRedisClient("redis://%zz"); err == nil {
		t.Error("newRedisClient() should reject a malformed URL")
	}
}

func TestPrintBanner(t *testing.T) {
	cfg := testConfig(t, map[string]string{"COC_API_KEYS": "second-key-abcdefgh"})

	var buf bytes.Buffer
	printBanner(&buf, cfg, cfg.Credentials())
	out := buf.String()

	if strings.Contains(out, "test-key-1234567890") || strings.Contains(out, "second-key-abcdefgh") {
		t.Error("banner must not print full credentials")
	}
	for _, want := range []string{"test-key...", "second-k...", "http://localhost:5000", "/myip", "memory (ttl 5m0s, war ttl 2m0s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("banner missing %q:\n%s", want, out)
		}
	}
}

func TestRun_ServesAndShutsDown(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.SetClanResponse("#ABC123", testutil.NewOKResponse(`{"tag":"#ABC123"}`))

	port := freePort(t)
	cfg := testConfig(t, map[string]string{
		"PORT":         fmt.Sprint(port),
		"COC_API_BASE": upstream.BaseURL(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, io.Discard)
	}()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	if err := waitForHealthy(base, 5*time.Second); err != nil {
		cancel()
		t.Fatalf("server did not become healthy: %v", err)
	}

	for i := 0; i < 2; i++ {
		resp, err := http.Get(base + "/clan/%23ABC123")
		if err != nil {
			t.Fatalf("GET /clan failed: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
		if string(body) != `{"tag":"#ABC123"}` {
			t.Errorf("body = %s", body)
		}
	}
	if upstream.RequestCount() != 1 {
		t.Errorf("upstream called %d times, want 1", upstream.RequestCount())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("run() did not return after cancellation")
	}
}

func TestBuild_WiresStore(t *testing.T) {
	cfg := testConfig(t, map[string]string{"CACHE_ENABLED": "false"})

	a, err := build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	defer a.store.Close()

	if _, ok := a.store.(*cache.NoopStore); !ok {
		t.Errorf("store = %T, want *cache.NoopStore", a.store)
	}
	if len(a.creds) != 1 {
		t.Errorf("creds = %d, want 1", len(a.creds))
	}
}

func waitForHealthy(base string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
		} else {
			lastErr = err
		}
		time.Sleep(20 * time.Millisecond)
	}
	return lastErr
}
