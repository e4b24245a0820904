package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/models"
	"github.com/noah-isme/ecole-api/internal/service"
	appErrors "github.com/noah-isme/ecole-api/pkg/errors"
	"github.com/noah-isme/ecole-api/pkg/response"
)

type planningService interface {
	List(ctx context.Context, actor *models.JWTClaims, filter models.PlanningFilter) ([]models.CourseSessionDetail, error)
	Get(ctx context.Context, id string) (*models.CourseSession, error)
	BulkCreate(ctx context.Context, actor *models.JWTClaims, req dto.BulkCreateSessionsRequest) (*dto.BulkCreateSessionsReport, error)
	Update(ctx context.Context, id string, req dto.UpdateSessionRequest) (*models.CourseSession, error)
	Delete(ctx context.Context, id string) error
}

// PlanningHandler exposes course session scheduling.
type PlanningHandler struct {
	service planningService
}

// NewPlanningHandler builds the handler.
func NewPlanningHandler(svc planningService) *PlanningHandler {
	return &PlanningHandler{service: svc}
}

// List godoc
// @Summary List course sessions
// @Description Professors see their own sessions, students those of their sub-groups.
// @Tags Planning
// @Produce json
// @Param academicYearId query string false "Defaults to the current year"
// @Param session query string false "Session whose current year is listed when no year is given" Enums(octobre, fevrier)
// @Param professorId query string false "Professor filter (staff only)"
// @Param from query string false "Start bound (YYYY-MM-DD or RFC3339)"
// @Param to query string false "End bound (YYYY-MM-DD or RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /planning [get]
func (h *PlanningHandler) List(c *gin.Context) {
	from, err := queryTime(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := queryTime(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}
	var session models.AcademicSession
	if raw := c.Query("session"); raw != "" {
		parsed, ok := models.ParseAcademicSession(raw)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "session must be octobre or fevrier"))
			return
		}
		session = parsed
	}
	filter := models.PlanningFilter{
		AcademicYearID: c.Query("academicYearId"),
		Session:        session,
		ProfessorID:    c.Query("professorId"),
		From:           from,
		To:             to,
	}
	sessions, err := h.service.List(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sessions)
}

// Get godoc
// @Summary Get a course session
// @Tags Planning
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /planning/{id} [get]
func (h *PlanningHandler) Get(c *gin.Context) {
	session, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, session)
}

// BulkCreate godoc
// @Summary Schedule several sessions
// @Description Items are created independently; failed items are reported with their booking conflicts.
// @Tags Planning
// @Accept json
// @Produce json
// @Param payload body dto.BulkCreateSessionsRequest true "Sessions"
// @Success 201 {object} response.Envelope
// @Success 207 {object} response.Envelope
// @Router /planning [post]
func (h *PlanningHandler) BulkCreate(c *gin.Context) {
	var req dto.BulkCreateSessionsRequest
	if !bindJSON(c, &req, "invalid planning payload") {
		return
	}
	report, err := h.service.BulkCreate(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusCreated
	if report.Failed > 0 {
		status = http.StatusMultiStatus
	}
	response.JSON(c, status, report, nil)
}

// Update godoc
// @Summary Update a course session
// @Tags Planning
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.UpdateSessionRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /planning/{id} [put]
func (h *PlanningHandler) Update(c *gin.Context) {
	var req dto.UpdateSessionRequest
	if !bindJSON(c, &req, "invalid session payload") {
		return
	}
	session, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondBookingError(c, err)
		return
	}
	response.OK(c, session)
}

// Delete godoc
// @Summary Delete a course session and its presences
// @Tags Planning
// @Param id path string true "Session ID"
// @Success 204
// @Router /planning/{id} [delete]
func (h *PlanningHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// respondBookingError exposes the overlapping sessions in meta.conflicts.
func respondBookingError(c *gin.Context, err error) {
	var conflictErr *service.BookingConflictError
	if errors.As(err, &conflictErr) {
		response.Error(c, err, map[string]interface{}{"conflicts": conflictErr.Conflicts()})
		return
	}
	response.Error(c, err)
}
