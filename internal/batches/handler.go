package batches

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docrecon-backend/internal/documents"
	"docrecon-backend/internal/queue"
	"docrecon-backend/internal/shared/server/respond"
	"docrecon-backend/internal/shared/telemetry"
)

// Handler exposes batch submission and reconciliation control.
type Handler struct {
	Coordinator *Coordinator
	Runner      *Runner
	Batches     Repo
	Docs        documents.Repo
	// Queue, when set, receives resume requests instead of the local Runner.
	Queue queue.Client
}

// RegisterRoutes attaches batch routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/batches/process", h.process)
	rg.GET("/batches/:id", h.get)
	rg.POST("/batches/:id/reconcile", h.reconcile)
	rg.POST("/batches/:id/cancel", h.cancel)
}

func (h *Handler) process(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if req.TimeoutSeconds < 0 || req.PollingIntervalSeconds < 0 || req.MaxPollFailures < 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "timeouts and limits must not be negative", nil)
		return
	}

	b, err := h.Coordinator.ProcessDocuments(c.Request.Context(), req.DocumentIDs, req.options())
	if b.ID != "" {
		c.Set("batchId", b.ID)
	}
	if err != nil && b.ID == "" {
		writeError(c, err, "failed to process batch")
		return
	}
	if err != nil {
		// Submitted, but the wait was interrupted; report the snapshot.
		telemetry.Warn("batch.process_wait_interrupted", map[string]any{
			"batch_id":   b.ID,
			"request_id": c.GetString("requestId"),
			"error":      err.Error(),
		})
		respond.Accepted(c, batchLocation(b.ID), ToResponse(b))
		return
	}

	if b.Closed() {
		respond.OK(c, ToResponse(b))
		return
	}
	respond.Accepted(c, batchLocation(b.ID), ToResponse(b))
}

func (h *Handler) get(c *gin.Context) {
	c.Set("batchId", c.Param("id"))
	b, err := h.snapshot(c, c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to fetch batch")
		return
	}
	respond.JSON(c, http.StatusOK, ToResponse(b))
}

func (h *Handler) reconcile(c *gin.Context) {
	id := c.Param("id")
	c.Set("batchId", id)
	b, err := h.Batches.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to fetch batch")
		return
	}
	if b.Closed() {
		respond.JSON(c, http.StatusOK, ToResponse(b))
		return
	}

	if h.Queue != nil {
		msg := queue.NewReconcileMessage(id, c.GetString("requestId"), h.Coordinator.now())
		if err := h.Queue.Send(c.Request.Context(), msg); err != nil {
			telemetry.Error("batch.enqueue_failed", map[string]any{"batch_id": id, "error": err.Error()})
			respond.Error(c, http.StatusBadGateway, "queue_unavailable", "failed to enqueue reconciliation", nil)
			return
		}
		respond.Accepted(c, batchLocation(id), gin.H{"batchId": id, "queued": true})
		return
	}

	started := h.Runner.Start(id, ReconcileOptions{})
	respond.Accepted(c, batchLocation(id), gin.H{"batchId": id, "started": started})
}

func (h *Handler) cancel(c *gin.Context) {
	id := c.Param("id")
	c.Set("batchId", id)
	if _, err := h.Batches.Get(c.Request.Context(), id); err != nil {
		writeError(c, err, "failed to fetch batch")
		return
	}
	cancelled := h.Runner.Cancel(id)

	b, err := h.snapshot(c, id)
	if err != nil {
		writeError(c, err, "failed to fetch batch")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"cancelled": cancelled, "batch": ToResponse(b)})
}

// snapshot returns the batch with live member statuses while it is open.
func (h *Handler) snapshot(c *gin.Context, id string) (Batch, error) {
	ctx := c.Request.Context()
	b, err := h.Batches.Get(ctx, id)
	if err != nil {
		return Batch{}, err
	}
	if b.Closed() {
		return b, nil
	}
	docs, err := documents.Collect(h.Docs.List(ctx, documents.Filter{BatchID: id}))
	if err != nil {
		return Batch{}, err
	}
	b.Outcome, b.Statuses = Summarize(b.DocumentIDs, docs)
	return b, nil
}

// batchLocation is where clients poll a batch for its outcome.
func batchLocation(id string) string {
	return "/api/v1/batches/" + id
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrBatchNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "batch not found", nil)
	case errors.Is(err, documents.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, documents.ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrAlreadyReconciling):
		respond.Error(c, http.StatusConflict, "conflict", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
