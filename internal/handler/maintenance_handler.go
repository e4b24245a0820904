package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/pkg/jobs"
	"github.com/noah-isme/ecole-api/pkg/response"
)

type maintenanceService interface {
	Enqueue(ctx context.Context, task string) (*dto.MaintenanceJob, error)
	Status(ctx context.Context, jobID string) (*jobs.Status, error)
}

// MaintenanceHandler queues enrollment reconciliation tasks.
type MaintenanceHandler struct {
	service maintenanceService
}

// NewMaintenanceHandler builds the handler.
func NewMaintenanceHandler(svc maintenanceService) *MaintenanceHandler {
	return &MaintenanceHandler{service: svc}
}

// Enqueue godoc
// @Summary Queue an enrollment reconciliation task
// @Tags Maintenance
// @Produce json
// @Param task path string true "backfill, dedupe, orphans, populate or check"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /maintenance/enrollments/{task} [post]
func (h *MaintenanceHandler) Enqueue(c *gin.Context) {
	job, err := h.service.Enqueue(c.Request.Context(), c.Param("task"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Status godoc
// @Summary Get the state and report of a queued task
// @Tags Maintenance
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /maintenance/jobs/{id} [get]
func (h *MaintenanceHandler) Status(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, status)
}
