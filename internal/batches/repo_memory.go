package batches

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo.
type MemoryRepo struct {
	mu      sync.RWMutex
	batches map[string]Batch
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{batches: make(map[string]Batch)}
}

func (r *MemoryRepo) Create(ctx context.Context, b Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[b.ID] = cloneBatch(b)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.batches[id]
	if !ok {
		return Batch{}, ErrBatchNotFound
	}
	return cloneBatch(b), nil
}

func (r *MemoryRepo) SaveProgress(ctx context.Context, id string, outcome Outcome, statuses []DocumentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return ErrBatchNotFound
	}
	if b.Closed() {
		return nil
	}
	b.Outcome = outcome
	b.Statuses = append([]DocumentStatus(nil), statuses...)
	r.batches[id] = b
	return nil
}

func (r *MemoryRepo) Close(ctx context.Context, id string, at time.Time, outcome Outcome, statuses []DocumentStatus) (Batch, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return Batch{}, false, ErrBatchNotFound
	}
	if b.Closed() {
		return cloneBatch(b), false, nil
	}
	completed := at
	b.CompletedAt = &completed
	b.Outcome = outcome
	b.Statuses = append([]DocumentStatus(nil), statuses...)
	r.batches[id] = b
	return cloneBatch(b), true, nil
}

func cloneBatch(b Batch) Batch {
	b.DocumentIDs = append([]string(nil), b.DocumentIDs...)
	b.Statuses = append([]DocumentStatus(nil), b.Statuses...)
	if b.CompletedAt != nil {
		at := *b.CompletedAt
		b.CompletedAt = &at
	}
	return b
}

var _ Repo = (*MemoryRepo)(nil)
