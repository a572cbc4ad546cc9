package exports

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"docrecon-backend/internal/batches"
	"docrecon-backend/internal/documents"
	"docrecon-backend/internal/shared/server/respond"
	"docrecon-backend/internal/shared/telemetry"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler serves extraction results.
type Handler struct {
	Aggregator *Aggregator
}

type itemResponse struct {
	DocumentID string        `json:"documentId"`
	FileName   string        `json:"fileName"`
	Result     *ExportResult `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// RegisterRoutes attaches export routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/documents/:id/export", h.document)
	rg.GET("/batches/:id/exports", h.batch)
	rg.GET("/batches/:id/exports.xlsx", h.workbook)
}

func (h *Handler) document(c *gin.Context) {
	res, err := h.Aggregator.ExportDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, res)
}

func (h *Handler) batch(c *gin.Context) {
	items, err := h.Aggregator.ExportCompleted(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]itemResponse, 0, len(items))
	failed := 0
	for _, item := range items {
		resp := itemResponse{DocumentID: item.DocumentID, FileName: item.FileName, Result: item.Result}
		if item.Err != nil {
			resp.Error = item.Err.Error()
			failed++
		}
		out = append(out, resp)
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"batchId": c.Param("id"),
		"items":   out,
		"failed":  failed,
	})
}

func (h *Handler) workbook(c *gin.Context) {
	id := c.Param("id")
	items, err := h.Aggregator.ExportCompleted(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, items); err != nil {
		telemetry.Error("export.workbook_failed", map[string]any{"batch_id": id, "error": err.Error()})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to render workbook", nil)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "batch-"+id+".xlsx"))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, documents.ErrNotFound), errors.Is(err, batches.ErrBatchNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, ErrNotCompleted):
		respond.Error(c, http.StatusConflict, "not_completed", err.Error(), nil)
	case errors.Is(err, ErrExportFetchFailed):
		respond.Error(c, http.StatusBadGateway, "export_failed", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to export results", nil)
	}
}
