// Package server provides the HTTP server and routing for papertrader.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/papertrader/internal/database"
	"github.com/aristath/papertrader/internal/di"
	historicalhandlers "github.com/aristath/papertrader/internal/modules/historical/handlers"
	ledgerhandlers "github.com/aristath/papertrader/internal/modules/ledger/handlers"
	portfoliohandlers "github.com/aristath/papertrader/internal/modules/portfolio/handlers"
	tradinghandlers "github.com/aristath/papertrader/internal/modules/trading/handlers"
	valuationhandlers "github.com/aristath/papertrader/internal/modules/valuation/handlers"
)

// Version is reported by /health; overridden at build time with -ldflags
var Version = "dev"

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Container *di.Container
	Port      int
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	container      *di.Container
	systemHandlers *SystemHandlers
	eventsStream   *EventsStreamHandler
	port           int
	log            zerolog.Logger
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	c := cfg.Container

	s := &Server{
		router:         chi.NewRouter(),
		container:      c,
		systemHandlers: NewSystemHandlers([]*database.DB{c.PortfolioDB, c.CacheDB}, c.Scheduler, cfg.Log),
		eventsStream:   NewEventsStreamHandler(c.EventBus, cfg.Log),
		port:           cfg.Port,
		log:            cfg.Log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the event streams are long-lived
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5, "application/json"))
	}
}

// setupRoutes configures all routes. Module routes are served both at the
// root and under /api.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		s.registerModuleRoutes(r)
	})

	s.router.Route("/api", func(r chi.Router) {
		// Streams run without the request timeout
		r.Get("/events/stream", s.eventsStream.ServeSSE)
		r.Get("/events/ws", s.eventsStream.ServeWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			s.registerModuleRoutes(r)

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.systemHandlers.HandleSystemStatus)
				r.Get("/jobs", s.systemHandlers.HandleJobsStatus)
				r.Post("/jobs/{job}", s.systemHandlers.HandleRunJob)
			})
		})
	})
}

func (s *Server) registerModuleRoutes(r chi.Router) {
	c := s.container
	currency := c.Config.Currency

	portfoliohandlers.NewHandler(c.PortfolioService, currency, s.log).RegisterRoutes(r)
	tradinghandlers.NewHandler(c.TradingService, s.log).RegisterRoutes(r)
	historicalhandlers.NewHandler(c.HistoricalService, c.PriceService, s.log).RegisterRoutes(r)
	ledgerhandlers.NewHandler(c.TransactionRepo, s.log).RegisterRoutes(r)
	valuationhandlers.NewHandler(c.ValuationService, s.log).RegisterRoutes(r)
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"service": "papertrader",
	}, s.log)
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

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
