// Package api provides HTTP handlers and routing for the orchestrator service.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Server holds the HTTP handlers and dependencies.
type Server struct {
	router   *mux.Router
	handlers *Handlers
}

// NewServer creates a new API server with the given handlers.
func NewServer(h *Handlers) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: h,
	}
	s.setupRoutes()
	return s
}

// Router returns the configured router for use with http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("/health", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/healthz", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/ready", s.handlers.Ready).Methods("GET")

	// API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Run management
	api.HandleFunc("/runs", s.handlers.CreateRun).Methods("POST")
	api.HandleFunc("/runs", s.handlers.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", s.handlers.GetRun).Methods("GET")
	api.HandleFunc("/runs/{id}/outputs", s.handlers.GetRunOutputs).Methods("GET")
	api.HandleFunc("/runs/{id}/artifacts", s.handlers.ListRunArtifacts).Methods("GET")
	api.HandleFunc("/runs/{id}/start", s.handlers.StartRun).Methods("POST")
	api.HandleFunc("/runs/{id}/cancel", s.handlers.CancelRun).Methods("POST")
	api.HandleFunc("/runs/{id}/events", s.handlers.StreamEvents).Methods("GET")

	// Composition and matching
	api.HandleFunc("/compose", s.handlers.Compose).Methods("POST")
	api.HandleFunc("/match", s.handlers.Match).Methods("POST")
	api.HandleFunc("/graphs/validate", s.handlers.ValidateGraph).Methods("POST")

	// Skill registry
	api.HandleFunc("/skills", s.handlers.ListSkills).Methods("GET")
	api.HandleFunc("/skills", s.handlers.RegisterSkill).Methods("POST")
	api.HandleFunc("/skills/scan", s.handlers.ScanSkills).Methods("POST")
	api.HandleFunc("/skills/{name}", s.handlers.GetSkill).Methods("GET")
	api.HandleFunc("/skills/{name}", s.handlers.UpdateSkill).Methods("PATCH")
	api.HandleFunc("/skills/{name}", s.handlers.DeleteSkill).Methods("DELETE")

	// Templates
	api.HandleFunc("/templates", s.handlers.ListTemplates).Methods("GET")
	api.HandleFunc("/templates", s.handlers.SaveTemplate).Methods("POST")
	api.HandleFunc("/templates/{name}", s.handlers.GetTemplate).Methods("GET")
	api.HandleFunc("/templates/{name}", s.handlers.UpdateTemplate).Methods("PUT")
	api.HandleFunc("/templates/{name}", s.handlers.DeleteTemplate).Methods("DELETE")
	api.HandleFunc("/templates/{name}/instantiate", s.handlers.InstantiateTemplate).Methods("POST")

	// RunStore diagnostics
	api.HandleFunc("/runstore/info", s.handlers.RunStoreInfo).Methods("GET")

	// Apply middleware
	s.router.Use(s.handlers.CORSMiddleware)
	s.router.Use(s.handlers.LoggingMiddleware)
	s.router.Use(s.handlers.RateLimitMiddleware)
	s.router.Use(s.handlers.RecoveryMiddleware)
}
