package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/models"
	"github.com/noah-isme/ecole-api/internal/service"
	"github.com/noah-isme/ecole-api/pkg/response"
)

type attendanceService interface {
	MarkSession(ctx context.Context, actor *models.JWTClaims, sessionID string, req dto.MarkSessionRequest) ([]models.PresenceDetail, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.PresenceDetail, error)
	ListByStudent(ctx context.Context, actor *models.JWTClaims, studentID string) ([]models.PresenceDetail, error)
	Summary(ctx context.Context, sessionID string) (*models.SessionAttendanceSummary, error)
	Justify(ctx context.Context, presenceID string, req dto.JustifyPresenceRequest) (*models.Presence, error)
	AttendanceSheet(ctx context.Context, sessionID, format string) ([]byte, string, error)
}

// AttendanceHandler exposes presence marking and absence follow-up.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler builds the handler.
func NewAttendanceHandler(svc attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// MarkSession godoc
// @Summary Record the presences of a session
// @Description Replaces every mark of the session in one transaction.
// @Tags Absences
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param payload body dto.MarkSessionRequest true "Marks"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /absences/sessions/{sessionId} [put]
func (h *AttendanceHandler) MarkSession(c *gin.Context) {
	var req dto.MarkSessionRequest
	if !bindJSON(c, &req, "invalid presences payload") {
		return
	}
	presences, err := h.service.MarkSession(c.Request.Context(), claimsFromContext(c), c.Param("sessionId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, presences)
}

// ListBySession godoc
// @Summary List the presences of a session
// @Tags Absences
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /absences/sessions/{sessionId} [get]
func (h *AttendanceHandler) ListBySession(c *gin.Context) {
	presences, err := h.service.ListBySession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, presences)
}

// Summary godoc
// @Summary Count presences by status
// @Tags Absences
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /absences/sessions/{sessionId}/summary [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, summary)
}

// Sheet godoc
// @Summary Download the attendance sheet
// @Tags Absences
// @Produce octet-stream
// @Param sessionId path string true "Session ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /absences/sessions/{sessionId}/sheet [get]
func (h *AttendanceHandler) Sheet(c *gin.Context) {
	format := c.DefaultQuery("format", service.SheetFormatCSV)
	content, filename, err := h.service.AttendanceSheet(c.Request.Context(), c.Param("sessionId"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	contentType := "text/csv; charset=utf-8"
	if format == service.SheetFormatPDF {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, content)
}

// ListByStudent godoc
// @Summary List the presences of a student
// @Description Students may only read their own record.
// @Tags Absences
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /absences/students/{studentId} [get]
func (h *AttendanceHandler) ListByStudent(c *gin.Context) {
	presences, err := h.service.ListByStudent(c.Request.Context(), claimsFromContext(c), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, presences)
}

// Justify godoc
// @Summary Validate or refuse an absence justification
// @Tags Absences
// @Accept json
// @Produce json
// @Param id path string true "Presence ID"
// @Param payload body dto.JustifyPresenceRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /absences/{id}/justify [post]
func (h *AttendanceHandler) Justify(c *gin.Context) {
	var req dto.JustifyPresenceRequest
	if !bindJSON(c, &req, "invalid justification payload") {
		return
	}
	presence, err := h.service.Justify(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, presence)
}
