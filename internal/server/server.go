// internal/server/server.go

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"airwatch/internal/config"
	"airwatch/internal/server/handlers"
	"airwatch/internal/service/bundle"
	"airwatch/internal/service/interest"
)

// Server represents the HTTP server
type Server struct {
	server *http.Server
	router *chi.Mux
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.ServerConfig,
	bundles *bundle.Manager,
	aggregator *interest.Aggregator,
	scorer *interest.Scorer,
) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Create handler dependencies
	locationHandler := handlers.NewLocationHandler(bundles, aggregator, scorer)
	alertHandler := handlers.NewAlertHandler(aggregator)
	trendHandler := handlers.NewTrendHandler(bundles)

	// Routes
	router.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		// API version
		r.Route("/v1", func(r chi.Router) {
			// Locations API
			r.Route("/locations", func(r chi.Router) {
				r.Get("/bundle", locationHandler.GetBundle)
				r.Post("/search", locationHandler.RegisterSearch)
				r.Get("/priority", locationHandler.GetPriorityLocations)
			})

			// Alerts API
			r.Route("/alerts", func(r chi.Router) {
				r.Post("/locations", alertHandler.RegisterLocations)
			})

			// Trends API
			r.Route("/trends", func(r chi.Router) {
				r.Get("/", trendHandler.GetTrendSeries)
				r.Get("/locations", trendHandler.GetTrendLocations)
			})
		})
	})

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		server: httpServer,
		router: router,
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
