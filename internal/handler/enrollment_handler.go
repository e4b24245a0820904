package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ecole-api/internal/models"
	"github.com/noah-isme/ecole-api/pkg/response"
)

type enrollmentService interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error)
}

// EnrollmentHandler lists enrollments.
type EnrollmentHandler struct {
	service enrollmentService
}

// NewEnrollmentHandler builds the handler.
func NewEnrollmentHandler(svc enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param academicYearId query string false "Academic year filter"
// @Param studentId query string false "User filter"
// @Param role query string false "Role filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	role, err := queryRole(c, "role")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.EnrollmentFilter{
		AcademicYearID: c.Query("academicYearId"),
		StudentID:      c.Query("studentId"),
		Role:           role,
		Page:           queryInt(c, "page"),
		PageSize:       queryInt(c, "page_size"),
	}
	rows, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}
