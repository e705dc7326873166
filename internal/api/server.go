// Package api exposes the HTTP surface: public center and office reads,
// deletion-flag submission, and the token-guarded admin routes for CSV
// uploads, refreshes, flag review and health.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"officeradar/pkg/config"
	"officeradar/pkg/match"
	"officeradar/pkg/refresh"
	"officeradar/pkg/store"
)

// Server holds the handler dependencies.
type Server struct {
	store   store.Store
	engine  *refresh.Engine
	matcher *match.Provider
	cfg     *config.Config
	started time.Time
}

// NewServer creates the API server.
func NewServer(st store.Store, engine *refresh.Engine, matcher *match.Provider, cfg *config.Config) *Server {
	return &Server{
		store:   st,
		engine:  engine,
		matcher: matcher,
		cfg:     cfg,
		started: time.Now(),
	}
}

// Router builds the route table.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     []string{s.cfg.CORS.Origin},
		AllowedMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:     []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:             300,
		OptionsPassthrough: true,
	}))
	// The CORS layer passes OPTIONS through; answer them all here so
	// preflights never hit auth or routing.
	r.Use(optionsNoContent)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/centers", s.handleListCenters)
	r.Get("/api/centers/{id}/offices", s.handleCenterOffices)
	r.Get("/api/centers/{id}/offices.geojson", s.handleCenterOfficesGeoJSON)
	r.Post("/api/offices/flag-deletion", s.handleFlagSubmission)

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(s.adminOnly)
		r.Post("/centers/upload-csv", s.handleCentersUpload)
		r.Post("/companies/upload-csv", s.handleCompaniesUpload)
		r.Post("/refresh-center/{id}", s.handleRefreshCenter)
		r.Post("/refresh-batch", s.handleRefreshBatch)
		r.Post("/refresh-all", s.handleRefreshAll)
		r.Get("/offices/deletion-flags", s.handleListFlags)
		r.Post("/offices/deletion-flags/{flagId}/decision", s.handleFlagDecision)
		r.Get("/status", s.handleStatus)
		r.Get("/logs", s.handleLogs)
	})

	return r
}

// NewHTTPServer wraps the router in an http.Server with sane timeouts.
// WriteTimeout leaves headroom for CSV uploads and synchronous refreshes.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
