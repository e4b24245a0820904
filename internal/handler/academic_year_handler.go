package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/models"
	"github.com/noah-isme/ecole-api/pkg/response"
)

type academicYearService interface {
	List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, error)
	Get(ctx context.Context, id string) (*models.AcademicYear, error)
	GetCurrent(ctx context.Context, rawSession string) (*models.AcademicYear, error)
	Finished(ctx context.Context) ([]models.AcademicYear, error)
	Create(ctx context.Context, req dto.CreateAcademicYearRequest) (*models.AcademicYear, error)
	Update(ctx context.Context, id string, req dto.UpdateAcademicYearRequest) (*models.AcademicYear, error)
	SetCurrent(ctx context.Context, id string) (*models.AcademicYear, error)
	Archive(ctx context.Context, id string, force bool, actor *models.JWTClaims) (*models.AcademicYear, error)
	Unarchive(ctx context.Context, id string, actor *models.JWTClaims) (*models.AcademicYear, error)
	Delete(ctx context.Context, id string) error
	Recompute(ctx context.Context, now time.Time) (*dto.RecomputeResult, error)
	CloneStructure(ctx context.Context, targetYearID string, req dto.CloneStructureRequest) (*dto.CloneReport, error)
}

// AcademicYearHandler exposes the academic year lifecycle.
type AcademicYearHandler struct {
	service academicYearService
}

// NewAcademicYearHandler builds the handler.
func NewAcademicYearHandler(svc academicYearService) *AcademicYearHandler {
	return &AcademicYearHandler{service: svc}
}

// List godoc
// @Summary List academic years
// @Tags AcademicYears
// @Produce json
// @Param session query string false "octobre or fevrier"
// @Param isCurrent query bool false "Current flag"
// @Param isArchived query bool false "Archived flag"
// @Success 200 {object} response.Envelope
// @Router /academic-years [get]
func (h *AcademicYearHandler) List(c *gin.Context) {
	isCurrent, err := queryBool(c, "isCurrent")
	if err != nil {
		response.Error(c, err)
		return
	}
	isArchived, err := queryBool(c, "isArchived")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.AcademicYearFilter{
		Session:    models.AcademicSession(c.Query("session")),
		IsCurrent:  isCurrent,
		IsArchived: isArchived,
	}
	years, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, years)
}

// Get godoc
// @Summary Get an academic year
// @Tags AcademicYears
// @Produce json
// @Param id path string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /academic-years/{id} [get]
func (h *AcademicYearHandler) Get(c *gin.Context) {
	year, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, year)
}

// Current godoc
// @Summary Get the current academic year
// @Description Without a session the most recent current year of any session is returned.
// @Tags AcademicYears
// @Produce json
// @Param session query string false "octobre or fevrier"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /academic-years/current [get]
func (h *AcademicYearHandler) Current(c *gin.Context) {
	year, err := h.service.GetCurrent(c.Request.Context(), c.Query("session"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, year)
}

// Finished godoc
// @Summary List finished academic years
// @Tags AcademicYears
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /academic-years/finished [get]
func (h *AcademicYearHandler) Finished(c *gin.Context) {
	years, err := h.service.Finished(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, years)
}

// Create godoc
// @Summary Create an academic year
// @Tags AcademicYears
// @Accept json
// @Produce json
// @Param payload body dto.CreateAcademicYearRequest true "Academic year"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /academic-years [post]
func (h *AcademicYearHandler) Create(c *gin.Context) {
	var req dto.CreateAcademicYearRequest
	if !bindJSON(c, &req, "invalid academic year payload") {
		return
	}
	year, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, year)
}

// Update godoc
// @Summary Update an academic year
// @Tags AcademicYears
// @Accept json
// @Produce json
// @Param id path string true "Academic year ID"
// @Param payload body dto.UpdateAcademicYearRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /academic-years/{id} [put]
func (h *AcademicYearHandler) Update(c *gin.Context) {
	var req dto.UpdateAcademicYearRequest
	if !bindJSON(c, &req, "invalid academic year payload") {
		return
	}
	year, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, year)
}

// SetCurrent godoc
// @Summary Mark a year as current for its session
// @Tags AcademicYears
// @Produce json
// @Param id path string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /academic-years/{id}/set-current [post]
func (h *AcademicYearHandler) SetCurrent(c *gin.Context) {
	year, err := h.service.SetCurrent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, year)
}

// Archive godoc
// @Summary Archive an academic year
// @Description Archiving the current year requires force=true.
// @Tags AcademicYears
// @Accept json
// @Produce json
// @Param id path string true "Academic year ID"
// @Param payload body dto.ArchiveAcademicYearRequest false "Override flag"
// @Param force query bool false "Override flag"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /academic-years/{id}/archive [post]
func (h *AcademicYearHandler) Archive(c *gin.Context) {
	var req dto.ArchiveAcademicYearRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "invalid archive payload") {
		return
	}
	force, err := queryBool(c, "force")
	if err != nil {
		response.Error(c, err)
		return
	}
	if force != nil {
		req.Force = req.Force || *force
	}
	year, err := h.service.Archive(c.Request.Context(), c.Param("id"), req.Force, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, year)
}

// Unarchive godoc
// @Summary Unarchive an academic year
// @Tags AcademicYears
// @Produce json
// @Param id path string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /academic-years/{id}/unarchive [post]
func (h *AcademicYearHandler) Unarchive(c *gin.Context) {
	year, err := h.service.Unarchive(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, year)
}

// Delete godoc
// @Summary Delete an academic year
// @Tags AcademicYears
// @Param id path string true "Academic year ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /academic-years/{id} [delete]
func (h *AcademicYearHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Recompute godoc
// @Summary Demote expired current years
// @Tags AcademicYears
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /academic-years/recompute [post]
func (h *AcademicYearHandler) Recompute(c *gin.Context) {
	result, err := h.service.Recompute(c.Request.Context(), time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Clone godoc
// @Summary Clone groups or courses from another year
// @Tags AcademicYears
// @Accept json
// @Produce json
// @Param id path string true "Target academic year ID"
// @Param payload body dto.CloneStructureRequest true "Source and scope"
// @Success 200 {object} response.Envelope
// @Router /academic-years/{id}/clone [post]
func (h *AcademicYearHandler) Clone(c *gin.Context) {
	var req dto.CloneStructureRequest
	if !bindJSON(c, &req, "invalid clone payload") {
		return
	}
	report, err := h.service.CloneStructure(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
