package api

import (
	"context"
	"net/http"
	"time"

	"example.com/backstage/allegro/config"
	"example.com/backstage/allegro/internal/api/handlers"
	"example.com/backstage/allegro/internal/metrics"
	"example.com/backstage/allegro/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Dependencies are the collaborators the HTTP endpoints read from
type Dependencies struct {
	Stats  *metrics.Metrics
	Prom   *metrics.ProcessorMetrics
	Orders handlers.OrderCounter
	Jobs   handlers.JobLister
	Checks map[string]handlers.Pinger
	Tracer tracing.Tracer
}

// Server represents the HTTP server
type Server struct {
	config     config.ServerConfig
	router     *gin.Engine
	httpServer *http.Server
	deps       Dependencies
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, deps Dependencies) *Server {
	if deps.Tracer == nil {
		deps.Tracer = tracing.Noop()
	}
	if deps.Stats == nil {
		deps.Stats = metrics.NewMetrics()
	}

	server := &Server{
		config: cfg,
		deps:   deps,
	}
	server.router = server.setupRouter()
	server.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      server.router,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	if app := s.deps.Tracer.Application(); app != nil {
		router.Use(nrgin.Middleware(app))
	}

	handlers.NewMetricsHandler(s.deps.Stats, s.deps.Prom, s.deps.Orders, s.deps.Checks, s.deps.Tracer).
		RegisterRoutes(router, s.config.MetricsEnabled)
	if s.deps.Jobs != nil {
		handlers.NewProcessorsHandler(s.deps.Jobs).RegisterRoutes(router)
	}

	return router
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Address).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	}
}
