package batches

import (
	"context"
	"time"
)

// Repo stores batches and their outcomes.
type Repo interface {
	Create(ctx context.Context, b Batch) error
	Get(ctx context.Context, id string) (Batch, error)
	// SaveProgress records an interim outcome for an open batch.
	SaveProgress(ctx context.Context, id string, outcome Outcome, statuses []DocumentStatus) error
	// Close stamps CompletedAt and the final outcome once. It reports whether
	// this call closed the batch; later calls return the stored batch unchanged.
	Close(ctx context.Context, id string, at time.Time, outcome Outcome, statuses []DocumentStatus) (Batch, bool, error)
}
