package batches_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"docrecon-backend/internal/batches"
	"docrecon-backend/internal/documents"
	"docrecon-backend/internal/remote/remotetest"
	"docrecon-backend/internal/shared/lock"
)

type recordingEvents struct {
	mu       sync.Mutex
	terminal map[string]documents.Status
	closed   []batches.Batch
}

func (e *recordingEvents) DocumentTerminal(batchID string, doc documents.Document) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal == nil {
		e.terminal = make(map[string]documents.Status)
	}
	e.terminal[doc.ID] = doc.Status
}

func (e *recordingEvents) BatchClosed(b batches.Batch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = append(e.closed, b)
}

func (e *recordingEvents) closedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.closed)
}

type move struct {
	docID    string
	from, to documents.Status
}

// transitionRepo records every status change applied through Update and can
// fail writes that target one status.
type transitionRepo struct {
	documents.Repo

	mu       sync.Mutex
	moves    []move
	failWith documents.Status
}

func (r *transitionRepo) failUpdatesTo(status documents.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith = status
}

func (r *transitionRepo) Update(ctx context.Context, id string, upd documents.Update) (documents.Document, error) {
	r.mu.Lock()
	fail := r.failWith != "" && upd.Status == r.failWith
	r.mu.Unlock()
	if fail {
		return documents.Document{}, fmt.Errorf("registry unavailable")
	}

	before, err := r.Repo.Get(ctx, id)
	if err != nil {
		return documents.Document{}, err
	}
	next, err := r.Repo.Update(ctx, id, upd)
	if err != nil {
		return next, err
	}
	if next.Status != before.Status {
		r.mu.Lock()
		r.moves = append(r.moves, move{docID: id, from: before.Status, to: next.Status})
		r.mu.Unlock()
	}
	return next, nil
}

func (r *transitionRepo) recorded() []move {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]move(nil), r.moves...)
}

type harness struct {
	docs        *documents.MemoryRepo
	batches     *batches.MemoryRepo
	remote      *remotetest.Fake
	events      *recordingEvents
	reconciler  *batches.Reconciler
	runner      *batches.Runner
	coordinator *batches.Coordinator
}

func newHarness(t *testing.T, fake *remotetest.Fake) *harness {
	t.Helper()
	if fake == nil {
		fake = &remotetest.Fake{}
	}
	docs := documents.NewMemoryRepo()
	batchRepo := batches.NewMemoryRepo()
	events := &recordingEvents{}
	reconciler := &batches.Reconciler{
		Docs:        docs,
		Batches:     batchRepo,
		Remote:      fake,
		Locker:      lock.NewLocal(),
		Events:      events,
		PollWorkers: 4,
	}
	runner := batches.NewRunner(reconciler)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = runner.Shutdown(ctx)
	})
	return &harness{
		docs:       docs,
		batches:    batchRepo,
		remote:     fake,
		events:     events,
		reconciler: reconciler,
		runner:     runner,
		coordinator: &batches.Coordinator{
			Docs:          &documents.Service{Repo: docs},
			Batches:       batchRepo,
			Remote:        fake,
			Runner:        runner,
			UploadWorkers: 2,
		},
	}
}

func items(n int) []batches.Item {
	out := make([]batches.Item, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, batches.Item{
			Content: []byte(fmt.Sprintf("content-%d", i)),
			Metadata: documents.Metadata{
				FileName: fmt.Sprintf("doc-%d.pdf", i),
				CNPJ:     "12345678000195",
			},
		})
	}
	return out
}

func fastOptions() batches.SubmitOptions {
	return batches.SubmitOptions{
		WaitForCompletion: true,
		PollInterval:      10 * time.Millisecond,
		Timeout:           5 * time.Second,
		MaxPollFailures:   3,
	}
}

func members(t *testing.T, h *harness, batchID string) map[string]documents.Document {
	t.Helper()
	docs, err := documents.Collect(h.docs.List(context.Background(), documents.Filter{BatchID: batchID}))
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	out := make(map[string]documents.Document, len(docs))
	for _, d := range docs {
		out[d.FileName] = d
	}
	return out
}

func assertConsistent(t *testing.T, o batches.Outcome) {
	t.Helper()
	if !o.Consistent() {
		t.Fatalf("outcome counters do not add up: %+v", o)
	}
}
