package handlers

import (
	"context"
	"net/http"

	"example.com/backstage/allegro/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// JobLister lists the persisted processor schedule
type JobLister interface {
	List(ctx context.Context) ([]models.ProcessorJob, error)
}

// ProcessorsHandler exposes the state of every periodic processor
type ProcessorsHandler struct {
	jobs JobLister
}

func NewProcessorsHandler(jobs JobLister) *ProcessorsHandler {
	return &ProcessorsHandler{jobs: jobs}
}

// HandleListProcessors returns one row per processor with its state and next run
func (h *ProcessorsHandler) HandleListProcessors(c *gin.Context) {
	jobs, err := h.jobs.List(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list processors")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list processors"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"processors": jobs})
}

func (h *ProcessorsHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/processors", h.HandleListProcessors)
}
