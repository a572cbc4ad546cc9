package documents

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Repo. The index is guarded by an RWMutex and
// each document carries its own mutex so writes to different ids never contend.
type MemoryRepo struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	order   []string
	now     func() time.Time
}

type memoryEntry struct {
	mu  sync.Mutex
	doc Document
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		entries: make(map[string]*memoryEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source; used by tests.
func (r *MemoryRepo) WithClock(now func() time.Time) *MemoryRepo {
	r.now = now
	return r
}

// Create validates meta and stores a new document in StatusCreated.
func (r *MemoryRepo) Create(ctx context.Context, meta Metadata) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	meta, err := Validate(meta)
	if err != nil {
		return Document{}, err
	}
	now := r.now()
	doc := newDocument(uuid.NewString(), meta, now)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[doc.ID] = &memoryEntry{doc: doc}
	r.order = append(r.order, doc.ID)
	return doc, nil
}

// Get returns a document by id.
func (r *MemoryRepo) Get(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	e, ok := r.entry(id)
	if !ok {
		return Document{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc, nil
}

// Update applies upd under the document's own lock.
func (r *MemoryRepo) Update(ctx context.Context, id string, upd Update) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	e, ok := r.entry(id)
	if !ok {
		return Document{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next, err := e.doc.apply(upd, r.now())
	if err != nil {
		return e.doc, err
	}
	e.doc = next
	return next, nil
}

// AssignBatch records batch membership for a document that has none yet.
func (r *MemoryRepo) AssignBatch(ctx context.Context, id, batchID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	e, ok := r.entry(id)
	if !ok {
		return Document{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc.BatchID != "" {
		return e.doc, ErrAlreadyBatched
	}
	e.doc.BatchID = batchID
	e.doc.UpdatedAt = r.now()
	return e.doc, nil
}

// List yields documents matching filter in creation order.
func (r *MemoryRepo) List(ctx context.Context, filter Filter) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		r.mu.RLock()
		ids := make([]string, len(r.order))
		copy(ids, r.order)
		r.mu.RUnlock()

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				yield(Document{}, err)
				return
			}
			e, ok := r.entry(id)
			if !ok {
				continue
			}
			e.mu.Lock()
			doc := e.doc
			e.mu.Unlock()
			if !filter.Match(doc) {
				continue
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

func (r *MemoryRepo) entry(id string) (*memoryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func newDocument(id string, meta Metadata, now time.Time) Document {
	return Document{
		ID:          id,
		FileName:    meta.FileName,
		CNPJ:        meta.CNPJ,
		Source:      meta.Source,
		Description: meta.Description,
		MimeType:    meta.MimeType,
		SizeBytes:   meta.SizeBytes,
		PageCount:   meta.PageCount,
		StorageKey:  meta.StorageKey,
		Status:      StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

var _ Repo = (*MemoryRepo)(nil)
