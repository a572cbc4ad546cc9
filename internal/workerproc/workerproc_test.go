package workerproc

import (
	"context"
	"errors"
	"testing"

	"docrecon-backend/internal/batches"
	"docrecon-backend/internal/queue"
)

type fakeReconciler struct {
	err   error
	calls []string
}

func (f *fakeReconciler) Reconcile(ctx context.Context, batchID string, opts batches.ReconcileOptions) (batches.Outcome, error) {
	f.calls = append(f.calls, batchID)
	if f.err != nil {
		return batches.Outcome{}, f.err
	}
	return batches.Outcome{Total: 1, Succeeded: 1}, nil
}

func encode(t *testing.T, msg queue.Message) string {
	t.Helper()
	body, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return string(body)
}

func TestParseMessage(t *testing.T) {
	if _, _, err := ParseMessage("  "); !errors.As(err, new(ErrEmptyBody)) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
	_, meta, err := ParseMessage("{not json")
	if !errors.As(err, new(ErrDecode)) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if meta.BodyLen != len("{not json") || meta.BodySHA == "" {
		t.Fatalf("unexpected meta: %+v", meta)
	}

	_, _, err = ParseMessage(`{"requestId":"req-1"}`)
	var missing ErrMissingBatchID
	if !errors.As(err, &missing) || missing.RequestID != "req-1" {
		t.Fatalf("expected ErrMissingBatchID, got %v", err)
	}

	msg, _, err := ParseMessage(encode(t, queue.Message{BatchID: "b-1", Version: queue.MessageVersion}))
	if err != nil || msg.BatchID != "b-1" {
		t.Fatalf("unexpected parse result %+v, %v", msg, err)
	}
}

func TestHandleMessageRunsReconciler(t *testing.T) {
	r := &fakeReconciler{}
	body := encode(t, queue.Message{BatchID: "b-1", RequestID: "req-1"})
	if err := HandleMessage(context.Background(), r, body); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(r.calls) != 1 || r.calls[0] != "b-1" {
		t.Fatalf("unexpected calls: %v", r.calls)
	}
}

func TestHandleMessageUsesParsedMessageFromContext(t *testing.T) {
	r := &fakeReconciler{}
	ctx := WithParsedMessage(context.Background(), queue.Message{BatchID: "b-ctx"})
	if err := HandleMessage(ctx, r, ""); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(r.calls) != 1 || r.calls[0] != "b-ctx" {
		t.Fatalf("unexpected calls: %v", r.calls)
	}
}

func TestHandleMessageTreatsOwnedAndMissingBatchesAsHandled(t *testing.T) {
	for _, cause := range []error{batches.ErrAlreadyReconciling, batches.ErrBatchNotFound} {
		r := &fakeReconciler{err: cause}
		if err := HandleMessage(context.Background(), r, encode(t, queue.Message{BatchID: "b-1"})); err != nil {
			t.Fatalf("expected %v to be handled, got %v", cause, err)
		}
	}
}

func TestHandleMessageWrapsFailures(t *testing.T) {
	boom := errors.New("boom")
	r := &fakeReconciler{err: boom}
	err := HandleMessage(context.Background(), r, encode(t, queue.Message{BatchID: "b-2", RequestID: "req-2"}))
	var procErr ErrProcess
	if !errors.As(err, &procErr) || procErr.BatchID != "b-2" || !errors.Is(err, boom) {
		t.Fatalf("expected ErrProcess wrapping boom, got %v", err)
	}
	if err := HandleMessage(context.Background(), nil, ""); err == nil {
		t.Fatalf("expected error without reconciler")
	}
}
