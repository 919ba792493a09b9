package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/ledger-balancer/internal/adapters/rpc"
	"github.com/eshaffer321/ledger-balancer/internal/api/handlers"
	"github.com/eshaffer321/ledger-balancer/internal/api/middleware"
	"github.com/eshaffer321/ledger-balancer/internal/application/service"
	"github.com/eshaffer321/ledger-balancer/internal/infrastructure/storage"
	"github.com/eshaffer321/ledger-balancer/internal/observability"
	"github.com/eshaffer321/ledger-balancer/internal/realtime"
)

// Config holds API server configuration.
type Config struct {
	Host              string
	Port              int
	AllowedOrigins    []string
	Precision         int
	MarketplacePrefix string
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Host:              "127.0.0.1",
		Port:              8085,
		AllowedOrigins:    middleware.DefaultCORSConfig().AllowedOrigins,
		Precision:         2,
		MarketplacePrefix: "eBay",
	}
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Dependencies are the services the routes are served from. Nil members
// switch their routes off: no balance service means no /api/jobs, no hub
// means no /ws, /api/events or slideshow processing, no gateway means no
// back office routes, no metrics means no /metrics.
type Dependencies struct {
	Repo           storage.Repository
	BalanceService *service.BalanceService
	Hub            *realtime.Hub
	Gateway        rpc.Gateway
	Metrics        *observability.Metrics
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	deps       Dependencies
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config, deps Dependencies, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		router: chi.NewRouter(),
		logger: logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	// CORS
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = s.config.AllowedOrigins
	s.router.Use(middleware.CORS(corsConfig))

	// Request logging
	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	healthHandler := handlers.NewHealthHandler()
	s.router.Get("/health", healthHandler.ServeHTTP)

	if s.deps.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	if s.deps.Hub != nil {
		s.router.Method(http.MethodGet, "/ws", realtime.NewWebSocketHandler(s.deps.Hub, s.config.AllowedOrigins, s.logger))
	}

	s.router.Route("/api", func(r chi.Router) {
		// Stateless calculations
		divideHandler := handlers.NewDivideHandler(s.deps.Metrics)
		r.Post("/divide", divideHandler.Divide)
		r.Post("/allocate", divideHandler.Allocate)

		invoicesHandler := handlers.NewInvoicesHandler(s.deps.Metrics, s.config.Precision, s.config.MarketplacePrefix)
		r.Post("/invoices/balance", invoicesHandler.Balance)

		feesHandler := handlers.NewFeesHandler(s.deps.Metrics)
		r.Post("/fees/convert", feesHandler.Convert)

		// Recorded runs
		if s.deps.Repo != nil {
			runsHandler := handlers.NewRunsHandler(s.deps.Repo)
			r.Get("/runs", runsHandler.List)
			r.Get("/runs/{id}", runsHandler.Get)
		}

		// Balance jobs
		if s.deps.BalanceService != nil {
			jobsHandler := handlers.NewJobsHandler(s.deps.BalanceService)
			r.Post("/jobs", jobsHandler.Start)
			r.Get("/jobs", jobsHandler.List)
			r.Get("/jobs/{id}", jobsHandler.Get)
			r.Delete("/jobs/{id}", jobsHandler.Cancel)
		}

		// Backend progress relayed to /ws
		if s.deps.Hub != nil {
			eventsHandler := handlers.NewEventsHandler(s.deps.Hub)
			r.Post("/events", eventsHandler.Publish)
		}

		// Item and slideshow forms
		if s.deps.Gateway != nil {
			backOffice := handlers.NewBackOfficeHandler(s.deps.Gateway, s.deps.Hub)
			if s.deps.Hub != nil {
				r.Post("/slideshows/process", backOffice.ProcessSlideshow)
			}
			r.Post("/slideshows/save", backOffice.SaveSlideshow)
			r.Get("/items/{code}/platforms", backOffice.Platforms)
			r.Post("/categories", backOffice.Categories)
			r.Post("/categories/update", backOffice.UpdateCategories)
		}
	})
}

// Start starts the HTTP server and blocks until it stops. It returns nil
// after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
