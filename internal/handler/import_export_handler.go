package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ecole-api/internal/dto"
	"github.com/noah-isme/ecole-api/pkg/response"
)

type importService interface {
	Import(ctx context.Context, doc dto.ImportDocument) (*dto.ImportReport, error)
}

type exportService interface {
	Dump(ctx context.Context) (*dto.ExportDump, error)
}

// ImportExportHandler exposes bulk JSON import and the full export.
type ImportExportHandler struct {
	importer importService
	exporter exportService
}

// NewImportExportHandler builds the handler.
func NewImportExportHandler(importer importService, exporter exportService) *ImportExportHandler {
	return &ImportExportHandler{importer: importer, exporter: exporter}
}

// Import godoc
// @Summary Import a structure document into the current year
// @Description Items are applied one by one; failures are listed in the report and earlier items stay applied.
// @Tags Import
// @Accept json
// @Produce json
// @Param payload body dto.ImportDocument true "Document"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /import [post]
func (h *ImportExportHandler) Import(c *gin.Context) {
	var doc dto.ImportDocument
	if !bindJSON(c, &doc, "invalid import document") {
		return
	}
	report, err := h.importer.Import(c.Request.Context(), doc)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Export godoc
// @Summary Export every entity as JSON
// @Tags Export
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /export [get]
func (h *ImportExportHandler) Export(c *gin.Context) {
	dump, err := h.exporter.Dump(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="export-`+dump.ExportedAt.Format("20060102-1504")+`.json"`)
	response.OK(c, dump)
}
