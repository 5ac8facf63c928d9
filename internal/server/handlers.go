package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Sternrassler/coc-api-proxy/pkg/cache"
	"github.com/Sternrassler/coc-api-proxy/pkg/credentials"
	"github.com/Sternrassler/coc-api-proxy/pkg/metrics"
	"github.com/Sternrassler/coc-api-proxy/pkg/proxy"
)

const developerPortalURL = "https://developer.clashofclans.com/#/account"

type rootResponse struct {
	Message       string            `json:"message"`
	Version       string            `json:"version"`
	Status        string            `json:"status"`
	Endpoints     map[string]string `json:"endpoints"`
	Documentation string            `json:"documentation"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, rootResponse{
		Message:       Title,
		Version:       Version,
		Status:        "running",
		Endpoints:     endpoints,
		Documentation: "Visit /health for server status",
	})
}

type healthResponse struct {
	Status           string          `json:"status"`
	Timestamp        time.Time       `json:"timestamp"`
	Uptime           float64         `json:"uptime"`
	APIKeyConfigured bool            `json:"apiKeyConfigured"`
	Credentials      *credentialInfo `json:"credentials,omitempty"`
	Cache            cacheInfo       `json:"cache"`
}

type credentialInfo struct {
	Configured int                           `json:"configured"`
	Healthy    int                           `json:"healthy"`
	Keys       []credentials.CredentialState `json:"keys"`
}

type cacheInfo struct {
	Backend string      `json:"backend"`
	Keys    int         `json:"keys"`
	Stats   cache.Stats `json:"stats"`
	Error   string      `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	resp := healthResponse{
		Status:    "ok",
		Timestamp: now.UTC(),
		Uptime:    now.Sub(s.started).Seconds(),
		Cache: cacheInfo{
			Backend: s.deps.Cache.Backend(),
			Stats:   s.deps.Cache.Stats(),
		},
	}

	if s.deps.Credentials != nil {
		states := s.deps.Credentials.Snapshot()
		resp.APIKeyConfigured = len(states) > 0
		resp.Credentials = &credentialInfo{
			Configured: len(states),
			Healthy:    s.deps.Credentials.Healthy(),
			Keys:       states,
		}
	}

	keys, err := s.deps.Cache.Keys(r.Context())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to count cache keys")
		resp.Cache.Error = "cache unavailable"
	}
	resp.Cache.Keys = keys

	s.writeJSON(w, http.StatusOK, resp)
}

type myIPResponse struct {
	IP           string   `json:"ip"`
	Message      string   `json:"message"`
	URL          string   `json:"url"`
	Instructions []string `json:"instructions"`
}

func (s *Server) handleMyIP(w http.ResponseWriter, r *http.Request) {
	ip, err := s.deps.IP.Detect(r.Context())
	if err != nil {
		s.logger.Warn().Err(err).Msg("IP detection failed")
		s.writeError(w, http.StatusInternalServerError, errorResponse{Error: "Could not detect IP"})
		return
	}

	s.writeJSON(w, http.StatusOK, myIPResponse{
		IP:      ip,
		Message: "Add this IP to your API key in CoC developer portal",
		URL:     developerPortalURL,
		Instructions: []string{
			"1. Go to the URL above",
			"2. Edit your API key",
			"3. Add this IP: " + ip,
			"4. Save changes",
			"5. Wait 1-2 minutes",
			"6. Your API will work!",
		},
	})
}

type cacheClearResponse struct {
	Message     string `json:"message"`
	KeysCleared int    `json:"keysCleared"`
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Cache.FlushAll(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Cache flush failed")
		s.writeError(w, http.StatusInternalServerError, errorResponse{
			Error:   "Cache clear failed",
			Details: err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, cacheClearResponse{Message: "Cache cleared", KeysCleared: n})
}

// handleResource serves one of the tag-addressed resources.
func (s *Server) handleResource(res proxy.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tag := mux.Vars(r)["tag"]
		// the upstream call finishes and is cached even if the caller leaves
		result, err := s.deps.Fetcher.Fetch(context.WithoutCancel(r.Context()), res, tag)
		if err != nil {
			s.writeFetchError(w, err)
			return
		}
		s.writeResult(w, result)
	}
}

func (s *Server) handleRaidSeasons(w http.ResponseWriter, r *http.Request) {
	limit, err := proxy.ParseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.writeFetchError(w, err)
		return
	}

	tag := mux.Vars(r)["tag"]
	result, err := s.deps.Fetcher.FetchRaidSeasons(context.WithoutCancel(r.Context()), tag, limit)
	if err != nil {
		s.writeFetchError(w, err)
		return
	}
	s.writeResult(w, result)
}

type notFoundResponse struct {
	Error              string            `json:"error"`
	Path               string            `json:"path"`
	AvailableEndpoints map[string]string `json:"availableEndpoints"`
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	listing := make(map[string]string, len(endpoints)+1)
	listing["root"] = "/"
	for k, v := range endpoints {
		listing[k] = v
	}

	s.writeJSON(w, http.StatusNotFound, notFoundResponse{
		Error:              "Endpoint not found",
		Path:               r.URL.Path,
		AvailableEndpoints: listing,
	})
	metrics.ObserveRequest("unmatched", http.StatusNotFound, time.Since(start))
}

// writeFetchError answers errors returned by the Fetcher itself, which are
// caller mistakes or internal faults, never upstream failures.
func (s *Server) writeFetchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, proxy.ErrInvalidLimit):
		s.writeError(w, http.StatusBadRequest, errorResponse{Error: "Invalid limit", Details: err.Error()})
	case errors.Is(err, proxy.ErrInvalidTag):
		s.writeError(w, http.StatusBadRequest, errorResponse{Error: "Invalid tag", Details: err.Error()})
	default:
		s.logger.Error().Err(err).Msg("Resource fetch failed")
		s.writeError(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
	}
}
