package remote

import (
	"context"
	"time"

	"docrecon-backend/internal/shared/telemetry"
)

const retryBaseDelay = 300 * time.Millisecond

type retryingClient struct {
	base  Client
	delay time.Duration
}

// WithRetry retries transient Submit and FetchExport failures once after a
// short delay. Polls pass through: the reconciler counts poll failures itself.
func WithRetry(base Client, delay time.Duration) Client {
	if base == nil {
		return nil
	}
	if delay <= 0 {
		delay = retryBaseDelay
	}
	return retryingClient{base: base, delay: delay}
}

func (r retryingClient) Submit(ctx context.Context, upload Upload) (string, error) {
	id, err := r.base.Submit(ctx, upload)
	if err == nil || !IsTransient(err) {
		return id, err
	}
	if err := r.wait(ctx, "submit", upload.DocumentID, err); err != nil {
		return "", err
	}
	return r.base.Submit(ctx, upload)
}

func (r retryingClient) SubmitBatch(ctx context.Context, uploads []Upload) ([]SubmitResult, error) {
	return r.base.SubmitBatch(ctx, uploads)
}

func (r retryingClient) PollStatus(ctx context.Context, remoteID string) (Status, error) {
	return r.base.PollStatus(ctx, remoteID)
}

func (r retryingClient) FetchExport(ctx context.Context, remoteID string) (Export, error) {
	export, err := r.base.FetchExport(ctx, remoteID)
	if err == nil || !IsTransient(err) {
		return export, err
	}
	if err := r.wait(ctx, "export", remoteID, err); err != nil {
		return Export{}, err
	}
	return r.base.FetchExport(ctx, remoteID)
}

func (r retryingClient) wait(ctx context.Context, op, id string, cause error) error {
	telemetry.Warn("remote.retry", map[string]any{
		"op":      op,
		"id":      id,
		"attempt": 1,
		"error":   cause.Error(),
	})
	select {
	case <-time.After(r.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
