package handlers

import (
	"context"
	"net/http"
	"runtime"

	"example.com/backstage/allegro/internal/metrics"
	"example.com/backstage/allegro/internal/models"
	"example.com/backstage/allegro/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// OrderCounter reports how many orders sit in each status
type OrderCounter interface {
	CountByStatus(ctx context.Context) (map[models.OrderStatus]int64, error)
}

// Pinger checks a backing dependency
type Pinger func(ctx context.Context) error

// MetricsHandler handles metrics-related HTTP requests
type MetricsHandler struct {
	metrics *metrics.Metrics
	prom    *metrics.ProcessorMetrics
	orders  OrderCounter
	checks  map[string]Pinger
	tracer  tracing.Tracer
}

// NewMetricsHandler creates a new metrics handler. checks are probed on every /health request.
func NewMetricsHandler(stats *metrics.Metrics, prom *metrics.ProcessorMetrics, orders OrderCounter, checks map[string]Pinger, tracer tracing.Tracer) *MetricsHandler {
	if tracer == nil {
		tracer = tracing.Noop()
	}
	return &MetricsHandler{
		metrics: stats,
		prom:    prom,
		orders:  orders,
		checks:  checks,
		tracer:  tracer,
	}
}

// HandleGetStats returns the in-process counters together with order totals
func (h *MetricsHandler) HandleGetStats(c *gin.Context) {
	ctx, txn := h.tracer.StartTransaction(c.Request.Context(), "get-stats")
	defer h.tracer.EndTransaction(txn)

	h.metrics.SetGauge("goroutines", int64(runtime.NumGoroutine()))
	body := h.metrics.GetAllMetrics()

	if h.orders != nil {
		counts, err := h.orders.CountByStatus(ctx)
		if err != nil {
			h.tracer.RecordError(txn, err)
			log.Error().Err(err).Msg("Failed to count orders")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count orders"})
			return
		}

		orders := make(map[string]int64, len(counts))
		for status, n := range counts {
			orders[status.String()] = n
		}
		body["orders"] = orders
	}

	c.JSON(http.StatusOK, body)
}

// HandleGetHealthCheck returns a simplified health status
func (h *MetricsHandler) HandleGetHealthCheck(c *gin.Context) {
	for name, check := range h.checks {
		err := check(c.Request.Context())
		if err != nil {
			log.Warn().Err(err).Str("component", name).Msg("Health check failed")
		}
		h.metrics.SetHealth(name, err == nil)
	}

	healthChecks := h.metrics.GetHealthChecks()
	healthy := h.metrics.Healthy()

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":  healthy,
		"details": healthChecks,
	})
}

// RegisterRoutes registers the handler's routes
func (h *MetricsHandler) RegisterRoutes(router *gin.Engine, exposeMetrics bool) {
	router.GET("/health", h.HandleGetHealthCheck)
	router.GET("/stats", h.HandleGetStats)
	if exposeMetrics && h.prom != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.prom.Registry(), promhttp.HandlerOpts{})))
	}
}
