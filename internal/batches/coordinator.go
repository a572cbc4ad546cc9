package batches

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docrecon-backend/internal/documents"
	"docrecon-backend/internal/remote"
	"docrecon-backend/internal/shared/metrics"
	"docrecon-backend/internal/shared/telemetry"
)

// Coordinator registers documents, uploads them to the remote service and
// hands the resulting batch to the Runner.
type Coordinator struct {
	Docs    *documents.Service
	Batches Repo
	Remote  remote.Client
	Runner  *Runner
	// UploadWorkers bounds concurrent uploads.
	UploadWorkers int
	// Defaults fill SubmitOptions fields left at zero.
	Defaults ReconcileOptions
	Now      func() time.Time
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

func (c *Coordinator) workers() int {
	if c.UploadWorkers > 0 {
		return c.UploadWorkers
	}
	return DefaultUploadWorkers
}

// SubmitBatch registers one document per item and submits them as a batch.
// Per-document upload failures are recorded on the document and never fail
// the call.
func (c *Coordinator) SubmitBatch(ctx context.Context, items []Item, opts SubmitOptions) (Batch, error) {
	if len(items) == 0 {
		return Batch{}, fmt.Errorf("%w: at least one document is required", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	for i, item := range items {
		if _, err := documents.Validate(item.Metadata); err != nil {
			return Batch{}, fmt.Errorf("item %d: %w", i, err)
		}
	}

	docs := make([]documents.Document, 0, len(items))
	contents := make(map[string][]byte, len(items))
	for i, item := range items {
		doc, err := c.Docs.Register(ctx, item.Metadata, item.Content)
		if err != nil {
			return Batch{}, fmt.Errorf("register item %d: %w", i, err)
		}
		docs = append(docs, doc)
		contents[doc.ID] = item.Content
	}

	return c.submit(ctx, docs, opts, func(ctx context.Context, doc documents.Document) ([]byte, error) {
		return contents[doc.ID], nil
	})
}

// ProcessDocuments submits already registered documents as a new batch.
// Their bytes are read back from the object store.
func (c *Coordinator) ProcessDocuments(ctx context.Context, ids []string, opts SubmitOptions) (Batch, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return Batch{}, fmt.Errorf("%w: at least one document id is required", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}

	docs := make([]documents.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := c.Docs.Repo.Get(ctx, id)
		if err != nil {
			return Batch{}, fmt.Errorf("document %s: %w", id, err)
		}
		if doc.Status != documents.StatusCreated || doc.BatchID != "" {
			return Batch{}, fmt.Errorf("%w: document %s is %s and cannot join a new batch", ErrInvalidInput, id, doc.Status)
		}
		docs = append(docs, doc)
	}

	return c.submit(ctx, docs, opts, c.Docs.Content)
}

type contentLoader func(ctx context.Context, doc documents.Document) ([]byte, error)

func (c *Coordinator) submit(ctx context.Context, docs []documents.Document, opts SubmitOptions, load contentLoader) (Batch, error) {
	batchID := uuid.NewString()
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if _, err := c.Docs.Repo.AssignBatch(ctx, doc.ID, batchID); err != nil {
			return Batch{}, fmt.Errorf("assign document %s to batch: %w", doc.ID, err)
		}
		ids = append(ids, doc.ID)
	}

	telemetry.Info("batch.upload_started", map[string]any{
		"batch_id":  batchID,
		"documents": len(docs),
		"bulk":      opts.UseBatchUpload,
	})
	if opts.UseBatchUpload {
		c.uploadChunks(ctx, batchID, docs, load)
	} else {
		c.uploadEach(ctx, batchID, docs, load)
	}
	uploadErr := ctx.Err()

	// Membership must be durable even if the caller went away mid-upload.
	persistCtx := context.WithoutCancel(ctx)
	batch, err := c.createBatch(persistCtx, batchID, ids, opts)
	if err != nil {
		return Batch{}, err
	}
	metrics.IncBatchSubmitted()
	c.Runner.Start(batch.ID, ReconcileOptions{})

	if uploadErr != nil {
		return batch, uploadErr
	}
	if !opts.WaitForCompletion {
		return batch, nil
	}

	_, waitErr := c.Runner.Wait(ctx, batch.ID)
	latest, err := c.Batches.Get(persistCtx, batch.ID)
	if err != nil {
		return batch, err
	}
	return latest, waitErr
}

func (c *Coordinator) createBatch(ctx context.Context, batchID string, ids []string, opts SubmitOptions) (Batch, error) {
	interval := firstDuration(opts.PollInterval, c.Defaults.PollInterval, DefaultPollInterval)
	timeout := firstDuration(opts.Timeout, c.Defaults.Timeout, DefaultTimeout)
	maxFailures := opts.MaxPollFailures
	if maxFailures <= 0 {
		maxFailures = c.Defaults.MaxPollFailures
	}
	if maxFailures <= 0 {
		maxFailures = DefaultMaxPollFailures
	}

	docs, err := documents.Collect(c.Docs.Repo.List(ctx, documents.Filter{BatchID: batchID}))
	if err != nil {
		return Batch{}, fmt.Errorf("list batch members: %w", err)
	}
	outcome, statuses := Summarize(ids, docs)

	submittedAt := c.now()
	b := Batch{
		ID:              batchID,
		DocumentIDs:     ids,
		SubmittedAt:     submittedAt,
		Deadline:        submittedAt.Add(timeout),
		PollInterval:    interval,
		Timeout:         timeout,
		MaxPollFailures: maxFailures,
		Outcome:         outcome,
		Statuses:        statuses,
	}
	if err := c.Batches.Create(ctx, b); err != nil {
		return Batch{}, fmt.Errorf("create batch: %w", err)
	}
	return b, nil
}

func (c *Coordinator) uploadEach(ctx context.Context, batchID string, docs []documents.Document, load contentLoader) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for _, doc := range docs {
		g.Go(func() error {
			upload, ok := c.begin(gctx, batchID, doc, load)
			if !ok {
				return nil
			}
			remoteID, err := c.Remote.Submit(gctx, upload)
			c.finish(gctx, batchID, doc, remoteID, err)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Coordinator) uploadChunks(ctx context.Context, batchID string, docs []documents.Document, load contentLoader) {
	size := c.workers()
	for start := 0; start < len(docs); start += size {
		if ctx.Err() != nil {
			return
		}
		end := min(start+size, len(docs))

		uploads := make([]remote.Upload, 0, end-start)
		members := make(map[string]documents.Document, end-start)
		for _, doc := range docs[start:end] {
			upload, ok := c.begin(ctx, batchID, doc, load)
			if !ok {
				continue
			}
			uploads = append(uploads, upload)
			members[doc.ID] = doc
		}
		if len(uploads) == 0 {
			continue
		}

		results, err := c.Remote.SubmitBatch(ctx, uploads)
		if err != nil {
			for _, upload := range uploads {
				c.finish(ctx, batchID, members[upload.DocumentID], "", err)
			}
			continue
		}
		seen := make(map[string]bool, len(results))
		for _, res := range results {
			doc, ok := members[res.DocumentID]
			if !ok || seen[res.DocumentID] {
				continue
			}
			seen[res.DocumentID] = true
			c.finish(ctx, batchID, doc, res.RemoteID, res.Err)
		}
		for id, doc := range members {
			if !seen[id] {
				c.finish(ctx, batchID, doc, "", &remote.RejectedError{Reason: "missing from batch response"})
			}
		}
	}
}

// begin moves doc to Uploading and loads its bytes. A document whose bytes
// cannot be loaded is failed immediately.
func (c *Coordinator) begin(ctx context.Context, batchID string, doc documents.Document, load contentLoader) (remote.Upload, bool) {
	if ctx.Err() != nil {
		return remote.Upload{}, false
	}
	if _, err := c.Docs.Repo.Update(ctx, doc.ID, documents.Update{Status: documents.StatusUploading}); err != nil {
		telemetry.Error("batch.upload_start_failed", map[string]any{
			"batch_id":    batchID,
			"document_id": doc.ID,
			"error":       err.Error(),
		})
		return remote.Upload{}, false
	}

	content, err := load(ctx, doc)
	if err == nil && len(content) == 0 {
		err = errors.New("document has no content")
	}
	if err != nil {
		c.finish(ctx, batchID, doc, "", &remote.RejectedError{Reason: "staged content unavailable: " + err.Error()})
		return remote.Upload{}, false
	}

	return remote.Upload{
		DocumentID:  doc.ID,
		FileName:    doc.FileName,
		Content:     content,
		CNPJ:        doc.CNPJ,
		Source:      doc.Source,
		Description: doc.Description,
	}, true
}

// finish records the upload result: Submitted with the remote id, or Error.
func (c *Coordinator) finish(ctx context.Context, batchID string, doc documents.Document, remoteID string, submitErr error) {
	if submitErr != nil && ctx.Err() != nil {
		// Cancelled mid-upload; the reconciler settles the document later.
		return
	}

	upd := documents.Update{Status: documents.StatusSubmitted, RemoteID: remoteID}
	if submitErr != nil {
		reason := remote.RejectionReason(submitErr)
		upd = documents.Update{Status: documents.StatusError, ErrorMessage: reason}
		metrics.IncDocumentRejected()
		telemetry.Warn("batch.upload_rejected", map[string]any{
			"batch_id":    batchID,
			"document_id": doc.ID,
			"error":       fmt.Errorf("%w: %s", ErrUploadRejected, reason).Error(),
			"transient":   remote.IsTransient(submitErr),
		})
	}

	// An accepted upload has a live remote document, so its id is recorded
	// even when the caller has gone away.
	updated, err := c.Docs.Repo.Update(context.WithoutCancel(ctx), doc.ID, upd)
	if err != nil {
		telemetry.Error("batch.upload_record_failed", map[string]any{
			"batch_id":    batchID,
			"document_id": doc.ID,
			"error":       err.Error(),
		})
		return
	}
	if submitErr == nil {
		metrics.IncDocumentSubmitted()
		return
	}
	c.Runner.Reconciler.events().DocumentTerminal(batchID, updated)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
