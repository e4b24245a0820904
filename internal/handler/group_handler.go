package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/middleware"
	"github.com/noah-isme/ecole-api/internal/models"
	"github.com/noah-isme/ecole-api/pkg/response"
)

type groupService interface {
	List(ctx context.Context, filter models.GroupFilter) ([]models.Group, bool, error)
	Get(ctx context.Context, id string) (*models.Group, error)
	Create(ctx context.Context, req dto.CreateGroupRequest) (*models.Group, error)
	Update(ctx context.Context, id string, req dto.UpdateGroupRequest) (*models.Group, error)
	Delete(ctx context.Context, id string) error
	GetSubGroup(ctx context.Context, id string) (*models.SubGroupWithYear, error)
	CreateSubGroup(ctx context.Context, req dto.SubGroupRequest) (*models.SubGroup, error)
	UpdateSubGroup(ctx context.Context, id string, req dto.SubGroupRequest) (*models.SubGroup, error)
	DeleteSubGroup(ctx context.Context, id string) error
	ListStudents(ctx context.Context, subGroupID string) ([]models.User, error)
	AddStudents(ctx context.Context, subGroupID string, req dto.SubGroupStudentsRequest) error
	RemoveStudent(ctx context.Context, subGroupID, userID string) error
}

// GroupHandler exposes groups and their sub-groups.
type GroupHandler struct {
	service groupService
}

// NewGroupHandler builds the handler.
func NewGroupHandler(svc groupService) *GroupHandler {
	return &GroupHandler{service: svc}
}

// List godoc
// @Summary List groups with their sub-groups
// @Description The unfiltered listing is served from cache when available; meta.cache_hit reports it.
// @Tags Groups
// @Produce json
// @Param academicYearId query string false "Academic year filter"
// @Success 200 {object} response.Envelope
// @Router /groups [get]
func (h *GroupHandler) List(c *gin.Context) {
	groups, hit, err := h.service.List(c.Request.Context(), models.GroupFilter{AcademicYearID: c.Query("academicYearId")})
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, groups, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get a group
// @Tags Groups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /groups/{id} [get]
func (h *GroupHandler) Get(c *gin.Context) {
	group, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, group)
}

// Create godoc
// @Summary Create a group
// @Tags Groups
// @Accept json
// @Produce json
// @Param payload body dto.CreateGroupRequest true "Group"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /groups [post]
func (h *GroupHandler) Create(c *gin.Context) {
	var req dto.CreateGroupRequest
	if !bindJSON(c, &req, "invalid group payload") {
		return
	}
	group, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// Update godoc
// @Summary Update a group
// @Tags Groups
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body dto.UpdateGroupRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /groups/{id} [put]
func (h *GroupHandler) Update(c *gin.Context) {
	var req dto.UpdateGroupRequest
	if !bindJSON(c, &req, "invalid group payload") {
		return
	}
	group, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, group)
}

// Delete godoc
// @Summary Delete a group and its sub-groups
// @Tags Groups
// @Param id path string true "Group ID"
// @Success 204
// @Router /groups/{id} [delete]
func (h *GroupHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// GetSubGroup godoc
// @Summary Get a sub-group
// @Tags SubGroups
// @Produce json
// @Param id path string true "Sub-group ID"
// @Success 200 {object} response.Envelope
// @Router /subgroups/{id} [get]
func (h *GroupHandler) GetSubGroup(c *gin.Context) {
	sg, err := h.service.GetSubGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sg)
}

// CreateSubGroup godoc
// @Summary Create a sub-group
// @Tags SubGroups
// @Accept json
// @Produce json
// @Param payload body dto.SubGroupRequest true "Sub-group"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /subgroups [post]
func (h *GroupHandler) CreateSubGroup(c *gin.Context) {
	var req dto.SubGroupRequest
	if !bindJSON(c, &req, "invalid sub-group payload") {
		return
	}
	sg, err := h.service.CreateSubGroup(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sg)
}

// UpdateSubGroup godoc
// @Summary Replace a sub-group
// @Tags SubGroups
// @Accept json
// @Produce json
// @Param id path string true "Sub-group ID"
// @Param payload body dto.SubGroupRequest true "Sub-group"
// @Success 200 {object} response.Envelope
// @Router /subgroups/{id} [put]
func (h *GroupHandler) UpdateSubGroup(c *gin.Context) {
	var req dto.SubGroupRequest
	if !bindJSON(c, &req, "invalid sub-group payload") {
		return
	}
	sg, err := h.service.UpdateSubGroup(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sg)
}

// DeleteSubGroup godoc
// @Summary Delete a sub-group
// @Tags SubGroups
// @Param id path string true "Sub-group ID"
// @Success 204
// @Router /subgroups/{id} [delete]
func (h *GroupHandler) DeleteSubGroup(c *gin.Context) {
	if err := h.service.DeleteSubGroup(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListStudents godoc
// @Summary List the students of a sub-group
// @Tags SubGroups
// @Produce json
// @Param id path string true "Sub-group ID"
// @Success 200 {object} response.Envelope
// @Router /subgroups/{id}/students [get]
func (h *GroupHandler) ListStudents(c *gin.Context) {
	users, err := h.service.ListStudents(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, users)
}

// AddStudents godoc
// @Summary Add students to a sub-group
// @Tags SubGroups
// @Accept json
// @Param id path string true "Sub-group ID"
// @Param payload body dto.SubGroupStudentsRequest true "Student IDs"
// @Success 204
// @Router /subgroups/{id}/students [post]
func (h *GroupHandler) AddStudents(c *gin.Context) {
	var req dto.SubGroupStudentsRequest
	if !bindJSON(c, &req, "invalid students payload") {
		return
	}
	if err := h.service.AddStudents(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveStudent godoc
// @Summary Remove a student from a sub-group
// @Tags SubGroups
// @Param id path string true "Sub-group ID"
// @Param userId path string true "User ID"
// @Success 204
// @Router /subgroups/{id}/students/{userId} [delete]
func (h *GroupHandler) RemoveStudent(c *gin.Context) {
	if err := h.service.RemoveStudent(c.Request.Context(), c.Param("id"), c.Param("userId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
