package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"docrecon-backend/internal/batches"
	"docrecon-backend/internal/queue"
	"docrecon-backend/internal/shared/telemetry"
)

// Reconciler runs the status loop for one batch until it closes.
type Reconciler interface {
	Reconcile(ctx context.Context, batchID string, opts batches.ReconcileOptions) (batches.Outcome, error)
}

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingBatchID indicates a message without a batch id.
type ErrMissingBatchID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingBatchID) Error() string { return "missing batch id" }

// ErrProcess indicates reconciliation failed after successful parsing.
type ErrProcess struct {
	BatchID   string
	RequestID string
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "reconcile batch"
	}
	return "reconcile batch: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.BatchID) == "" {
		return msg, meta, ErrMissingBatchID{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.Message, bool) {
	if ctx == nil {
		return queue.Message{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	return msg, ok
}

// HandleMessage parses a payload and runs reconciliation for its batch.
// A batch already owned by another loop, or one that no longer exists, is
// treated as handled so the message is not redelivered forever.
func HandleMessage(ctx context.Context, r Reconciler, body string) error {
	if r == nil {
		return errors.New("reconciler not configured")
	}

	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}
	if strings.TrimSpace(msg.BatchID) == "" {
		return ErrMissingBatchID{Meta: ComputeMeta(body), RequestID: msg.RequestID}
	}

	outcome, err := r.Reconcile(ctx, msg.BatchID, batches.ReconcileOptions{})
	switch {
	case errors.Is(err, batches.ErrAlreadyReconciling):
		telemetry.Info("worker.reconcile.already_running", map[string]any{
			"batch_id":   msg.BatchID,
			"request_id": msg.RequestID,
		})
		return nil
	case errors.Is(err, batches.ErrBatchNotFound):
		telemetry.Warn("worker.reconcile.batch_not_found", map[string]any{
			"batch_id":   msg.BatchID,
			"request_id": msg.RequestID,
		})
		return nil
	case err != nil:
		return ErrProcess{BatchID: msg.BatchID, RequestID: msg.RequestID, Err: err}
	}

	telemetry.Info("worker.reconcile.closed", map[string]any{
		"batch_id":              msg.BatchID,
		"request_id":            msg.RequestID,
		"total":                 outcome.Total,
		"succeeded":             outcome.Succeeded,
		"failed":                outcome.Failed,
		"reconciliation_failed": outcome.ReconciliationFailed,
	})
	return nil
}
