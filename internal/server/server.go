// Package server provides the HTTP server and routing for chatfolio.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/quantive/chatfolio/internal/config"
	"github.com/quantive/chatfolio/internal/database"
	"github.com/quantive/chatfolio/internal/modules/analytics"
	"github.com/quantive/chatfolio/internal/modules/portfolio"
	portfoliohandlers "github.com/quantive/chatfolio/internal/modules/portfolio/handlers"
	"github.com/quantive/chatfolio/internal/modules/triage"
	triagehandlers "github.com/quantive/chatfolio/internal/modules/triage/handlers"
)

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	Config      *config.Config
	PortfolioDB *database.DB
	AnalyticsDB *database.DB
	Processor   *triage.Processor
	Users       portfolio.Store
	Guests      portfolio.Store
	Sessions    *portfolio.SessionStore
	Recorder    *analytics.Recorder
	Port        int
	DevMode     bool
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	portfolioDB    *database.DB
	analyticsDB    *database.DB
	processor      *triage.Processor
	users          portfolio.Store
	guests         portfolio.Store
	sessions       *portfolio.SessionStore
	recorder       *analytics.Recorder
	systemHandlers *SystemHandlers
	startedAt      time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		cfg:         cfg.Config,
		portfolioDB: cfg.PortfolioDB,
		analyticsDB: cfg.AnalyticsDB,
		processor:   cfg.Processor,
		users:       cfg.Users,
		guests:      cfg.Guests,
		sessions:    cfg.Sessions,
		recorder:    cfg.Recorder,
		startedAt:   time.Now(),
	}

	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.PortfolioDB, cfg.AnalyticsDB, cfg.Sessions, s.startedAt)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check (outside /api for load balancers)
	s.router.Get("/health", s.systemHandlers.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Chat triage pipeline
		triageHandler := triagehandlers.NewHandler(s.processor, s.log)
		triageHandler.RegisterRoutes(r)

		// Portfolio reads
		portfolioHandler := portfoliohandlers.NewHandler(s.users, s.guests, s.log)
		portfolioHandler.RegisterRoutes(r)

		// Triage traces
		tracesHandler := NewTracesHandler(s.recorder, s.log)
		r.Route("/traces", func(r chi.Router) {
			r.Get("/recent", tracesHandler.HandleRecent)
			r.Get("/stream", tracesHandler.HandleStream)
		})

		// System monitoring
		r.Route("/system", func(r chi.Router) {
			r.Get("/info", s.systemHandlers.HandleSystemInfo)
		})
		r.Get("/health", s.systemHandlers.HandleHealth)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
