package server

import (
	"net/http"

	"github.com/cvfolio/cvfolio-portal/internal/metrics"
)

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Auth
	mux.HandleFunc("/api/auth/login", s.app.AuthHandler.HandleLogin)
	mux.HandleFunc("/api/auth/logout", s.app.AuthHandler.HandleLogout)

	// Reconciled session + profile operations (tier rate-limited)
	mux.Handle("/api/session", s.limiter.Middleware(http.HandlerFunc(s.app.ProfileHandler.HandleSession)))
	mux.Handle("/api/profile/section", s.limiter.Middleware(http.HandlerFunc(s.app.ProfileHandler.HandleUpdateSection)))
	mux.Handle("/api/profile/autosave", s.limiter.Middleware(http.HandlerFunc(s.app.ProfileHandler.HandleAutosave)))
	mux.Handle("/api/profile/apikey", s.limiter.Middleware(http.HandlerFunc(s.app.ProfileHandler.HandleAPIKey)))
	mux.Handle("/api/profile/refresh", s.limiter.Middleware(http.HandlerFunc(s.app.ProfileHandler.HandleRefresh)))

	// Operational
	mux.HandleFunc("/api/health", s.app.HealthHandler.ServeHTTP)
	mux.HandleFunc("/api/version", s.app.VersionHandler.ServeHTTP)
	if s.app.Registry != nil {
		mux.Handle("/metrics", metrics.Handler(s.app.Registry))
	}

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.handleNotFound)

	return mux
}

// handleNotFound returns a JSON 404 for unmatched API routes.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error":"Not Found","message":"The requested endpoint does not exist"}`))
}
