package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Sternrassler/coc-api-proxy/pkg/metrics"
	"github.com/Sternrassler/coc-api-proxy/pkg/proxy"
)

// endpoints is the public route listing shown on / and on 404s.
var endpoints = map[string]string{
	"health":     "/health",
	"myip":       "/myip",
	"cacheClear": "POST /cache/clear",
	"clan":       "/clan/:clanTag",
	"members":    "/clan/:clanTag/members",
	"currentWar": "/clan/:clanTag/currentwar",
	"cwl":        "/clan/:clanTag/currentwar/leaguegroup",
	"raids":      "/clan/:clanTag/capitalraidseasons?limit=N",
	"player":     "/player/:playerTag",
}

// createRouter creates and configures the HTTP router
func (s *Server) createRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.metricsMiddleware)

	// Service endpoints
	router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/myip", s.handleMyIP).Methods(http.MethodGet)
	router.HandleFunc("/cache/clear", s.handleCacheClear).Methods(http.MethodPost)

	// Clan endpoints
	router.HandleFunc("/clan/{tag}", s.handleResource(proxy.Clan)).Methods(http.MethodGet)
	router.HandleFunc("/clan/{tag}/members", s.handleResource(proxy.Members)).Methods(http.MethodGet)
	router.HandleFunc("/clan/{tag}/currentwar", s.handleResource(proxy.CurrentWar)).Methods(http.MethodGet)
	router.HandleFunc("/clan/{tag}/currentwar/leaguegroup", s.handleResource(proxy.LeagueGroup)).Methods(http.MethodGet)
	router.HandleFunc("/clan/{tag}/capitalraidseasons", s.handleRaidSeasons).Methods(http.MethodGet)

	// Player endpoints
	router.HandleFunc("/player/{tag}", s.handleResource(proxy.Player)).Methods(http.MethodGet)

	// Prometheus metrics endpoint
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	if s.opts.StaticDir != "" {
		router.PathPrefix("/app/").Handler(
			http.StripPrefix("/app", http.FileServer(http.Dir(s.opts.StaticDir))),
		).Methods(http.MethodGet, http.MethodHead)
	}

	router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(s.handleNotFound)

	return router
}
