package documents

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docrecon-backend/internal/shared/server/respond"
)

const (
	maxUploadSize    = 10 << 20 // 10MB
	maxBatchBodySize = 64 << 20
	maxBatchItems    = 100
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.upload)
	rg.POST("/documents/batch", h.uploadBatch)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
	rg.GET("/documents/:id/status", h.status)
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("File")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "File is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}

	meta := Metadata{
		FileName:    fileHeader.Filename,
		CNPJ:        c.PostForm("Cnpj"),
		Source:      c.PostForm("Source"),
		Description: c.PostForm("Description"),
		MimeType:    fileHeader.Header.Get("Content-Type"),
	}
	doc, err := h.Svc.Register(c.Request.Context(), meta, content)
	if err != nil {
		writeError(c, err, "failed to upload document")
		return
	}
	c.Set("documentId", doc.ID)

	respond.Created(c, ToResponse(doc))
}

func (h *Handler) uploadBatch(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBatchBodySize)

	var req []batchItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if len(req) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "at least one document is required", nil)
		return
	}
	if len(req) > maxBatchItems {
		respond.Error(c, http.StatusBadRequest, "validation_error", fmt.Sprintf("at most %d documents per request", maxBatchItems), nil)
		return
	}

	type decoded struct {
		meta    Metadata
		content []byte
	}
	items := make([]decoded, 0, len(req))
	for i, item := range req {
		content, err := base64.StdEncoding.DecodeString(strings.TrimSpace(item.ContentBase64))
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "contentBase64 is not valid base64", gin.H{"index": i})
			return
		}
		meta, err := Validate(Metadata{
			FileName:    item.FileName,
			CNPJ:        item.CNPJ,
			Source:      item.Source,
			Description: item.Description,
		})
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), gin.H{"index": i})
			return
		}
		items = append(items, decoded{meta: meta, content: content})
	}

	resp := make([]DocumentResponse, 0, len(items))
	for i, item := range items {
		doc, err := h.Svc.Register(c.Request.Context(), item.meta, item.content)
		if err != nil {
			if errors.Is(err, ErrInvalidInput) {
				respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), gin.H{"index": i, "created": resp})
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to register documents", gin.H{"index": i, "created": resp})
			return
		}
		resp = append(resp, ToResponse(doc))
	}

	respond.Created(c, resp)
}

func (h *Handler) list(c *gin.Context) {
	filter := Filter{
		BatchID: strings.TrimSpace(c.Query("batchId")),
		CNPJ:    strings.TrimSpace(c.Query("cnpj")),
	}
	for _, raw := range c.QueryArray("status") {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status, ok := ParseStatus(part)
			if !ok {
				respond.Error(c, http.StatusBadRequest, "validation_error", "unknown status "+part, nil)
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	resp := make([]DocumentResponse, 0)
	for doc, err := range h.Svc.Repo.List(c.Request.Context(), filter) {
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list documents", nil)
			return
		}
		resp = append(resp, ToResponse(doc))
	}

	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) get(c *gin.Context) {
	doc, err := h.Svc.Repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to fetch document")
		return
	}
	respond.JSON(c, http.StatusOK, ToResponse(doc))
}

func (h *Handler) status(c *gin.Context) {
	c.Set("documentId", c.Param("id"))
	doc, err := h.Svc.Repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to fetch document status")
		return
	}
	respond.JSON(c, http.StatusOK, toStatusResponse(doc))
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
