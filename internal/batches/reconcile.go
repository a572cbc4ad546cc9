package batches

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"docrecon-backend/internal/documents"
	"docrecon-backend/internal/remote"
	"docrecon-backend/internal/shared/lock"
	"docrecon-backend/internal/shared/metrics"
	"docrecon-backend/internal/shared/telemetry"
)

const (
	minLeaseTTL    = 30 * time.Second
	releaseTimeout = 5 * time.Second
)

// Reconciler drives member documents of a batch to terminal states by
// polling the remote service.
type Reconciler struct {
	Docs    documents.Repo
	Batches Repo
	Remote  remote.Client
	Locker  lock.Locker
	Events  Events
	// PollWorkers bounds concurrent polls within one cycle.
	PollWorkers int
	Now         func() time.Time
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func (r *Reconciler) events() Events {
	if r.Events == nil {
		return LogEvents{}
	}
	return r.Events
}

// Reconcile polls until every member is terminal or the deadline passes,
// then closes the batch. A closed batch returns its stored outcome without
// polling. On cancellation it returns the last observed outcome and
// ctx.Err(); calling Reconcile again resumes.
func (r *Reconciler) Reconcile(ctx context.Context, batchID string, opts ReconcileOptions) (Outcome, error) {
	b, err := r.Batches.Get(ctx, batchID)
	if err != nil {
		return Outcome{}, err
	}
	if b.Closed() {
		return b.Outcome, nil
	}

	l := newLoop(r, b, opts)
	lease, err := r.Locker.Obtain(ctx, lockKey(batchID), l.leaseTTL)
	if errors.Is(err, lock.ErrNotObtained) {
		return b.Outcome, ErrAlreadyReconciling
	}
	if err != nil {
		return b.Outcome, fmt.Errorf("obtain reconcile lock: %w", err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			telemetry.Warn("batch.lock_release_failed", map[string]any{"batch_id": batchID, "error": err.Error()})
		}
	}()
	l.lease = lease

	// The previous holder may have closed the batch while we waited.
	b, err = r.Batches.Get(ctx, batchID)
	if err != nil {
		return Outcome{}, err
	}
	if b.Closed() {
		return b.Outcome, nil
	}
	l.batch = b
	l.last = b.Outcome

	return l.run(ctx)
}

func lockKey(batchID string) string {
	return "batch:" + batchID
}

type loop struct {
	r           *Reconciler
	batch       Batch
	interval    time.Duration
	deadline    time.Time
	maxFailures int
	workers     int
	lease       lock.Lease
	leaseTTL    time.Duration

	mu       sync.Mutex
	failures map[string]int
	last     Outcome
}

func newLoop(r *Reconciler, b Batch, opts ReconcileOptions) *loop {
	interval := firstDuration(opts.PollInterval, b.PollInterval, DefaultPollInterval)
	timeout := firstDuration(opts.Timeout, b.Timeout, DefaultTimeout)
	maxFailures := opts.MaxPollFailures
	if maxFailures <= 0 {
		maxFailures = b.MaxPollFailures
	}
	if maxFailures <= 0 {
		maxFailures = DefaultMaxPollFailures
	}
	workers := r.PollWorkers
	if workers <= 0 {
		workers = DefaultPollWorkers
	}
	deadline := b.Deadline
	if opts.Timeout > 0 || deadline.IsZero() {
		deadline = b.SubmittedAt.Add(timeout)
	}
	leaseTTL := 3 * interval
	if leaseTTL < minLeaseTTL {
		leaseTTL = minLeaseTTL
	}
	return &loop{
		r:           r,
		batch:       b,
		interval:    interval,
		deadline:    deadline,
		maxFailures: maxFailures,
		workers:     workers,
		leaseTTL:    leaseTTL,
		failures:    make(map[string]int),
		last:        b.Outcome,
	}
}

func firstDuration(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func (l *loop) run(ctx context.Context) (Outcome, error) {
	if err := l.settleInterruptedUploads(ctx); err != nil {
		return l.outcome(), err
	}

	for {
		docs, err := l.observe(ctx)
		if err != nil {
			return l.outcome(), err
		}
		if allTerminal(docs) {
			return l.close(ctx, docs)
		}
		if !l.r.now().Before(l.deadline) {
			if err := l.expire(ctx, docs); err != nil {
				return l.outcome(), err
			}
			docs, err = l.observe(ctx)
			if err != nil {
				return l.outcome(), err
			}
			return l.close(ctx, docs)
		}

		if err := l.cycle(ctx, docs); err != nil {
			return l.outcome(), err
		}
		if err := l.lease.Refresh(ctx, l.leaseTTL); err != nil {
			if ctx.Err() != nil {
				return l.outcome(), ctx.Err()
			}
			if errors.Is(err, lock.ErrNotObtained) {
				return l.outcome(), ErrAlreadyReconciling
			}
			telemetry.Warn("batch.lock_refresh_failed", map[string]any{"batch_id": l.batch.ID, "error": err.Error()})
		}

		wait := l.interval
		if remaining := l.deadline.Sub(l.r.now()); remaining < wait {
			wait = remaining
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return l.outcome(), ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return l.outcome(), err
		}
	}
}

// observe reads member documents and records the derived outcome.
func (l *loop) observe(ctx context.Context) ([]documents.Document, error) {
	docs, err := documents.Collect(l.r.Docs.List(ctx, documents.Filter{BatchID: l.batch.ID}))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("list batch members: %w", err)
	}
	outcome, statuses := Summarize(l.batch.DocumentIDs, docs)

	l.mu.Lock()
	l.last = outcome
	l.mu.Unlock()

	if err := l.r.Batches.SaveProgress(ctx, l.batch.ID, outcome, statuses); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		telemetry.Warn("batch.save_progress_failed", map[string]any{"batch_id": l.batch.ID, "error": err.Error()})
	}
	return docs, nil
}

func (l *loop) outcome() Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// settleInterruptedUploads fails members whose upload never finished. The
// batch is created after every upload attempt, so such members were
// abandoned by a crashed submitter.
func (l *loop) settleInterruptedUploads(ctx context.Context) error {
	for doc, err := range l.r.Docs.List(ctx, documents.Filter{
		BatchID:  l.batch.ID,
		Statuses: []documents.Status{documents.StatusCreated, documents.StatusUploading},
	}) {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("list interrupted uploads: %w", err)
		}
		if doc.Status == documents.StatusCreated {
			if _, err := l.r.Docs.Update(ctx, doc.ID, documents.Update{Status: documents.StatusUploading}); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
		}
		updated, err := l.r.Docs.Update(ctx, doc.ID, documents.Update{
			Status:       documents.StatusError,
			ErrorMessage: "upload did not complete",
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		l.r.events().DocumentTerminal(l.batch.ID, updated)
	}
	return nil
}

// cycle polls every in-flight member once with bounded concurrency.
func (l *loop) cycle(ctx context.Context, docs []documents.Document) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for _, doc := range docs {
		if !doc.Status.InFlight() {
			continue
		}
		g.Go(func() error {
			l.poll(gctx, doc)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (l *loop) poll(ctx context.Context, doc documents.Document) {
	status, err := l.r.Remote.PollStatus(ctx, doc.RemoteID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.IncPoll(true)
		failures := l.recordFailure(doc.ID)
		telemetry.Warn("batch.poll_failed", map[string]any{
			"batch_id":    l.batch.ID,
			"document_id": doc.ID,
			"remote_id":   doc.RemoteID,
			"failures":    failures,
			"transient":   remote.IsTransient(err),
			"error":       err.Error(),
		})
		if failures >= l.maxFailures {
			cause := fmt.Errorf("%w after %d attempts: %v", ErrReconciliationExhausted, failures, err)
			l.transition(ctx, doc, documents.Update{
				Status:        documents.StatusReconciliationFailed,
				FailureReason: documents.ReasonPollFailuresExceeded,
			}, cause)
		}
		return
	}
	metrics.IncPoll(false)
	l.resetFailures(doc.ID)

	target, msg := mapRemoteState(status)
	if target == doc.Status {
		return
	}
	// The remote may finish between two polls; pass through Processing so
	// the local state machine is never skipped.
	if doc.Status == documents.StatusSubmitted && target.IsTerminal() {
		next, ok := l.transition(ctx, doc, documents.Update{Status: documents.StatusProcessing}, nil)
		if !ok {
			return
		}
		doc = next
	}
	l.transition(ctx, doc, documents.Update{Status: target, ErrorMessage: msg}, nil)
}

// mapRemoteState maps a remote answer onto the local lifecycle.
func mapRemoteState(status remote.Status) (documents.Status, string) {
	switch status.State {
	case remote.StateProcessing:
		return documents.StatusProcessing, ""
	case remote.StateCompleted:
		return documents.StatusCompleted, ""
	case remote.StateError:
		msg := status.Message
		if msg == "" {
			msg = "remote processing failed"
		}
		return documents.StatusError, msg
	default:
		return documents.StatusSubmitted, ""
	}
}

// transition applies upd and emits a terminal event when reached. Rejected
// transitions are logged and leave the document unchanged.
func (l *loop) transition(ctx context.Context, doc documents.Document, upd documents.Update, cause error) (documents.Document, bool) {
	next, err := l.r.Docs.Update(ctx, doc.ID, upd)
	if err != nil {
		if ctx.Err() != nil {
			return doc, false
		}
		fields := map[string]any{
			"batch_id":    l.batch.ID,
			"document_id": doc.ID,
			"from":        string(doc.Status),
			"to":          string(upd.Status),
			"error":       err.Error(),
		}
		if errors.Is(err, documents.ErrInvalidTransition) {
			metrics.IncTransitionRejected()
			telemetry.Error("batch.transition_rejected", fields)
		} else {
			telemetry.Error("batch.transition_failed", fields)
		}
		return doc, false
	}
	if next.Status.IsTerminal() {
		if cause != nil {
			telemetry.Warn("batch.document_abandoned", map[string]any{
				"batch_id":    l.batch.ID,
				"document_id": doc.ID,
				"error":       cause.Error(),
			})
		}
		l.r.events().DocumentTerminal(l.batch.ID, next)
	}
	return next, true
}

// expire forces every in-flight member to ReconciliationFailed.
func (l *loop) expire(ctx context.Context, docs []documents.Document) error {
	for _, doc := range docs {
		if !doc.Status.InFlight() {
			continue
		}
		l.transition(ctx, doc, documents.Update{
			Status:        documents.StatusReconciliationFailed,
			FailureReason: documents.ReasonTimeout,
		}, nil)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// close stamps CompletedAt once every member is terminal. If a forced
// transition could not be written, the batch stays open and a later
// Reconcile retries the closure.
func (l *loop) close(ctx context.Context, docs []documents.Document) (Outcome, error) {
	outcome, statuses := Summarize(l.batch.DocumentIDs, docs)
	if outcome.Processing != 0 {
		telemetry.Error("batch.close_deferred", map[string]any{
			"batch_id":   l.batch.ID,
			"processing": outcome.Processing,
		})
		return outcome, fmt.Errorf("%w: %d of %d", ErrClosePending, outcome.Processing, outcome.Total)
	}
	closed, won, err := l.r.Batches.Close(ctx, l.batch.ID, l.r.now(), outcome, statuses)
	if err != nil {
		if ctx.Err() != nil {
			return l.outcome(), ctx.Err()
		}
		return l.outcome(), fmt.Errorf("close batch: %w", err)
	}
	if won {
		l.r.events().BatchClosed(closed)
	}
	return closed.Outcome, nil
}

func (l *loop) recordFailure(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[id]++
	return l.failures[id]
}

func (l *loop) resetFailures(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, id)
}

func allTerminal(docs []documents.Document) bool {
	for _, d := range docs {
		if !d.Status.IsTerminal() {
			return false
		}
	}
	return true
}
