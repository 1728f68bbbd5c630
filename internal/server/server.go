// Package server exposes the workflow engine over HTTP: project intake,
// status, gate approval, artifact retrieval, dashboards, a WebSocket event
// stream, and Prometheus metrics.
package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrmohammadalamin/architect-multi-agent/internal/store"
	"github.com/mrmohammadalamin/architect-multi-agent/internal/workflow"
)

// Server serves the engine's API.
type Server struct {
	manager *workflow.Manager
	runs    *store.SQLiteStore // may be nil
	logger  *slog.Logger
	mux     *http.ServeMux
	wsHub   *WSHub
}

// New creates a server around a workflow manager.
func New(manager *workflow.Manager, runs *store.SQLiteStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		manager: manager,
		runs:    runs,
		logger:  logger,
		mux:     http.NewServeMux(),
		wsHub:   NewWSHub(manager.Events()),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/projects", s.handleProjects)
	s.mux.HandleFunc("/projects/", s.handleProject)
	s.mux.HandleFunc("/ws/events", s.wsHub.HandleWebSocket)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/healthz", s.handleHealth)
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

// Start begins serving HTTP on addr, blocking until the listener fails.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()
	s.logger.Info("http server listening", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
