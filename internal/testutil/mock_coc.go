// Package testutil provides testing utilities for the Clash of Clans proxy.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// APIPrefix is the version prefix the mock serves under, matching the real
// API base URL.
const APIPrefix = "/v1"

// MockResponse defines the behavior for a mock upstream endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a configurable mock Clash of Clans API server for testing.
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	requests  []string
	authSeen  []string
	lastQuery string
}

// NewMockUpstream creates a new mock upstream server.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.EscapedPath(), APIPrefix)

		mock.mu.Lock()
		mock.requests = append(mock.requests, path)
		mock.authSeen = append(mock.authSeen, r.Header.Get("Authorization"))
		mock.lastQuery = r.URL.RawQuery
		handler, exists := mock.handlers[path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		// Default handler
		mock.defaultHandler(w, r, path)
	}))

	return mock
}

// URL returns the mock server root URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// BaseURL returns the URL to configure as the upstream API base.
func (m *MockUpstream) BaseURL() string {
	return m.server.URL + APIPrefix
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// Reset clears all tracking state.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.authSeen = nil
	m.lastQuery = ""
}

// SetHandler sets a custom handler for an escaped path relative to the API
// prefix, e.g. "/clans/%23ABC123".
func (m *MockUpstream) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetClanResponse configures the clan endpoint for tag (e.g. "#ABC123").
func (m *MockUpstream) SetClanResponse(tag string, resp MockResponse) {
	m.SetResponse("/clans/"+escapeTag(tag), resp)
}

// RequestCount returns the number of requests made to the server.
func (m *MockUpstream) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Requests returns the escaped paths requested so far, in order.
func (m *MockUpstream) Requests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.requests...)
}

// Authorizations returns the Authorization header of every request, in order.
func (m *MockUpstream) Authorizations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.authSeen...)
}

// LastQuery returns the raw query string of the latest request.
func (m *MockUpstream) LastQuery() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

// defaultHandler echoes the requested path back as a small JSON document.
func (m *MockUpstream) defaultHandler(w http.ResponseWriter, r *http.Request, path string) {
	if r.Header.Get("Authorization") == "" {
		writeJSON(w, http.StatusForbidden, `{"reason":"accessDenied","message":"Invalid authorization"}`)
		return
	}
	writeJSON(w, http.StatusOK, fmt.Sprintf(`{"path":%q,"query":%q}`, path, r.URL.RawQuery))
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func escapeTag(tag string) string {
	return strings.ReplaceAll(tag, "#", "%23")
}

// NewOKResponse creates a 200 response with a JSON body.
func NewOKResponse(body string) MockResponse {
	return MockResponse{StatusCode: http.StatusOK, Body: body}
}

// NewForbiddenResponse mimics the API's answer when the caller IP is not
// whitelisted for the key.
func NewForbiddenResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"reason":"accessDenied.invalidIp","message":"Invalid authorization: API key does not allow access from IP 203.0.113.7"}`,
	}
}

// NewNotFoundResponse creates a 404 response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"reason":"notFound"}`,
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"reason":"requestThrottled","message":"Request was throttled, because amount of requests was above the threshold defined for the used API token."}`,
	}
}

// NewMaintenanceResponse creates a 503 response.
func NewMaintenanceResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       `{"reason":"inMaintenance"}`,
	}
}
