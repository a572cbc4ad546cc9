package exports

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"docrecon-backend/internal/batches"
	"docrecon-backend/internal/documents"
	"docrecon-backend/internal/remote"
	"docrecon-backend/internal/shared/metrics"
	"docrecon-backend/internal/shared/telemetry"
)

const defaultFetchWorkers = 4

// Item is one export line of a batch: either a result or the fetch error.
type Item struct {
	DocumentID string
	FileName   string
	Result     *ExportResult
	Err        error
}

// Aggregator collects extraction results for completed documents. Results
// are cached per document; a failed fetch is not cached, so asking again
// retries it.
type Aggregator struct {
	Docs    documents.Repo
	Batches batches.Repo
	Remote  remote.Client
	Workers int

	mu    sync.RWMutex
	cache map[string]ExportResult
}

// ExportCompleted returns one item per Completed member of the batch, in
// registry order. Fetch failures are reported per item and never change a
// document's status.
func (a *Aggregator) ExportCompleted(ctx context.Context, batchID string) ([]Item, error) {
	if a.Batches != nil {
		if _, err := a.Batches.Get(ctx, batchID); err != nil {
			return nil, err
		}
	}
	docs, err := documents.Collect(a.Docs.List(ctx, documents.Filter{
		BatchID:  batchID,
		Statuses: []documents.Status{documents.StatusCompleted},
	}))
	if err != nil {
		return nil, err
	}

	items := make([]Item, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers())
	for i, doc := range docs {
		items[i] = Item{DocumentID: doc.ID, FileName: doc.FileName}
		g.Go(func() error {
			res, err := a.fetch(gctx, doc)
			if err != nil {
				items[i].Err = err
				return nil
			}
			items[i].Result = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ExportDocument returns the result of a single completed document.
func (a *Aggregator) ExportDocument(ctx context.Context, documentID string) (ExportResult, error) {
	doc, err := a.Docs.Get(ctx, documentID)
	if err != nil {
		return ExportResult{}, err
	}
	if doc.Status != documents.StatusCompleted {
		return ExportResult{}, fmt.Errorf("%w: status is %s", ErrNotCompleted, doc.Status)
	}
	return a.fetch(ctx, doc)
}

func (a *Aggregator) fetch(ctx context.Context, doc documents.Document) (ExportResult, error) {
	if res, ok := a.cached(doc.ID); ok {
		return res, nil
	}
	exp, err := a.Remote.FetchExport(ctx, doc.RemoteID)
	if err != nil {
		metrics.IncExport(true)
		telemetry.Warn("export.fetch_failed", map[string]any{
			"document_id": doc.ID,
			"remote_id":   doc.RemoteID,
			"batch_id":    doc.BatchID,
			"error":       err.Error(),
		})
		return ExportResult{}, fmt.Errorf("%w: %s: %w", ErrExportFetchFailed, doc.ID, err)
	}
	res, err := FromExport(doc.ID, exp)
	if err != nil {
		metrics.IncExport(true)
		return ExportResult{}, fmt.Errorf("%w: %s: %w", ErrExportFetchFailed, doc.ID, err)
	}
	if res.RemoteID == "" {
		res.RemoteID = doc.RemoteID
	}
	metrics.IncExport(false)
	a.store(doc.ID, res)
	return res, nil
}

func (a *Aggregator) cached(id string) (ExportResult, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	res, ok := a.cache[id]
	return res, ok
}

func (a *Aggregator) store(id string, res ExportResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cache == nil {
		a.cache = make(map[string]ExportResult)
	}
	a.cache[id] = res
}

func (a *Aggregator) workers() int {
	if a.Workers > 0 {
		return a.Workers
	}
	return defaultFetchWorkers
}
