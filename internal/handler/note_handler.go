package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/models"
	"github.com/noah-isme/ecole-api/pkg/response"
)

type noteService interface {
	RecordNote(ctx context.Context, req dto.CreateNoteRequest) (*models.Note, error)
	Update(ctx context.Context, id string, req dto.UpdateNoteRequest) (*models.Note, error)
	Delete(ctx context.Context, id string) error
	ListByStudent(ctx context.Context, actor *models.JWTClaims, studentID string) ([]models.NoteDetail, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.NoteDetail, error)
}

// NoteHandler exposes grades.
type NoteHandler struct {
	service noteService
}

// NewNoteHandler builds the handler.
func NewNoteHandler(svc noteService) *NoteHandler {
	return &NoteHandler{service: svc}
}

// Create godoc
// @Summary Record a grade
// @Tags Notes
// @Accept json
// @Produce json
// @Param payload body dto.CreateNoteRequest true "Grade"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /notes [post]
func (h *NoteHandler) Create(c *gin.Context) {
	var req dto.CreateNoteRequest
	if !bindJSON(c, &req, "invalid note payload") {
		return
	}
	note, err := h.service.RecordNote(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, note)
}

// Update godoc
// @Summary Update a grade
// @Tags Notes
// @Accept json
// @Produce json
// @Param id path string true "Note ID"
// @Param payload body dto.UpdateNoteRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /notes/{id} [put]
func (h *NoteHandler) Update(c *gin.Context) {
	var req dto.UpdateNoteRequest
	if !bindJSON(c, &req, "invalid note payload") {
		return
	}
	note, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, note)
}

// Delete godoc
// @Summary Delete a grade
// @Tags Notes
// @Param id path string true "Note ID"
// @Success 204
// @Router /notes/{id} [delete]
func (h *NoteHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListByStudent godoc
// @Summary List the grades of a student
// @Tags Notes
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /notes/students/{studentId} [get]
func (h *NoteHandler) ListByStudent(c *gin.Context) {
	notes, err := h.service.ListByStudent(c.Request.Context(), claimsFromContext(c), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, notes)
}

// ListByCourse godoc
// @Summary List the grades of a course
// @Tags Notes
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /notes/courses/{courseId} [get]
func (h *NoteHandler) ListByCourse(c *gin.Context) {
	notes, err := h.service.ListByCourse(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, notes)
}
