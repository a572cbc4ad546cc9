package batches

import (
	"context"
	"sync"

	"docrecon-backend/internal/shared/telemetry"
)

// Runner owns background reconciliation loops started in this process.
type Runner struct {
	Reconciler *Reconciler

	mu      sync.Mutex
	running map[string]*run
	wg      sync.WaitGroup
}

type run struct {
	cancel  context.CancelFunc
	done    chan struct{}
	outcome Outcome
	err     error
}

// NewRunner constructs a Runner.
func NewRunner(r *Reconciler) *Runner {
	return &Runner{Reconciler: r, running: make(map[string]*run)}
}

// Start launches a loop for batchID unless one is already running here.
func (r *Runner) Start(batchID string, opts ReconcileOptions) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.running[batchID]; ok {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	rn := &run{cancel: cancel, done: make(chan struct{})}
	r.running[batchID] = rn
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer cancel()
		outcome, err := r.Reconciler.Reconcile(ctx, batchID, opts)
		rn.outcome, rn.err = outcome, err
		if err != nil {
			telemetry.Warn("batch.reconcile_stopped", map[string]any{
				"batch_id": batchID,
				"error":    err.Error(),
			})
		}

		r.mu.Lock()
		delete(r.running, batchID)
		r.mu.Unlock()
		close(rn.done)
	}()
	return true
}

// Running reports whether a loop for batchID is active in this process.
func (r *Runner) Running(batchID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[batchID]
	return ok
}

// Cancel stops the loop for batchID. Document statuses keep their last
// observed values and the batch stays open for a later resume.
func (r *Runner) Cancel(batchID string) bool {
	r.mu.Lock()
	rn, ok := r.running[batchID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	rn.cancel()
	<-rn.done
	return true
}

// Wait blocks until the loop for batchID finishes or ctx is done. Without
// an active loop it returns the stored outcome.
func (r *Runner) Wait(ctx context.Context, batchID string) (Outcome, error) {
	r.mu.Lock()
	rn, ok := r.running[batchID]
	r.mu.Unlock()

	if ok {
		select {
		case <-rn.done:
			return rn.outcome, rn.err
		case <-ctx.Done():
		}
	}

	b, err := r.Reconciler.Batches.Get(context.WithoutCancel(ctx), batchID)
	if err != nil {
		return Outcome{}, err
	}
	return b.Outcome, ctx.Err()
}

// Shutdown cancels every loop and waits for them to stop.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, rn := range r.running {
		rn.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
