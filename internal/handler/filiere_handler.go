package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/internal/models"
	"github.com/noah-isme/ecole-api/pkg/response"
)

type filiereService interface {
	List(ctx context.Context, academicYearID string) ([]models.Filiere, error)
	Get(ctx context.Context, id string) (*models.Filiere, error)
	Create(ctx context.Context, req dto.FiliereRequest) (*models.Filiere, error)
	Update(ctx context.Context, id string, req dto.FiliereRequest) (*models.Filiere, error)
	Delete(ctx context.Context, id string) error
}

// FiliereHandler exposes filiere CRUD.
type FiliereHandler struct {
	service filiereService
}

// NewFiliereHandler builds the handler.
func NewFiliereHandler(svc filiereService) *FiliereHandler {
	return &FiliereHandler{service: svc}
}

// List godoc
// @Summary List filieres
// @Tags Filieres
// @Produce json
// @Param academicYearId query string false "Academic year filter"
// @Success 200 {object} response.Envelope
// @Router /filieres [get]
func (h *FiliereHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), c.Query("academicYearId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// Get godoc
// @Summary Get a filiere
// @Tags Filieres
// @Produce json
// @Param id path string true "Filiere ID"
// @Success 200 {object} response.Envelope
// @Router /filieres/{id} [get]
func (h *FiliereHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// Create godoc
// @Summary Create a filiere
// @Tags Filieres
// @Accept json
// @Produce json
// @Param payload body dto.FiliereRequest true "Filiere"
// @Success 201 {object} response.Envelope
// @Router /filieres [post]
func (h *FiliereHandler) Create(c *gin.Context) {
	var req dto.FiliereRequest
	if !bindJSON(c, &req, "invalid filiere payload") {
		return
	}
	item, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Replace a filiere
// @Tags Filieres
// @Accept json
// @Produce json
// @Param id path string true "Filiere ID"
// @Param payload body dto.FiliereRequest true "Filiere"
// @Success 200 {object} response.Envelope
// @Router /filieres/{id} [put]
func (h *FiliereHandler) Update(c *gin.Context) {
	var req dto.FiliereRequest
	if !bindJSON(c, &req, "invalid filiere payload") {
		return
	}
	item, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// Delete godoc
// @Summary Delete a filiere
// @Tags Filieres
// @Param id path string true "Filiere ID"
// @Success 204
// @Router /filieres/{id} [delete]
func (h *FiliereHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
