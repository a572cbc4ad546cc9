package batches

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const batchColumns = `id, document_ids, submitted_at, deadline, completed_at, poll_interval_ms, timeout_ms, max_poll_failures, total, succeeded, failed, reconciliation_failed, processing, statuses`

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, b Batch) error {
	ids, err := json.Marshal(b.DocumentIDs)
	if err != nil {
		return err
	}
	statuses, err := json.Marshal(nonNilStatuses(b.Statuses))
	if err != nil {
		return err
	}

	const query = `
INSERT INTO batches (
    id,
    document_ids,
    submitted_at,
    deadline,
    poll_interval_ms,
    timeout_ms,
    max_poll_failures,
    total,
    succeeded,
    failed,
    reconciliation_failed,
    processing,
    statuses
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.DB.ExecContext(
		ctx,
		query,
		b.ID,
		ids,
		b.SubmittedAt,
		b.Deadline,
		b.PollInterval.Milliseconds(),
		b.Timeout.Milliseconds(),
		b.MaxPollFailures,
		b.Outcome.Total,
		b.Outcome.Succeeded,
		b.Outcome.Failed,
		b.Outcome.ReconciliationFailed,
		b.Outcome.Processing,
		statuses,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (r *PGRepo) Get(ctx context.Context, id string) (Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`
	b, err := scanBatch(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Batch{}, ErrBatchNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

func (r *PGRepo) SaveProgress(ctx context.Context, id string, outcome Outcome, statuses []DocumentStatus) error {
	raw, err := json.Marshal(nonNilStatuses(statuses))
	if err != nil {
		return err
	}
	const query = `
UPDATE batches
SET total = $1, succeeded = $2, failed = $3, reconciliation_failed = $4, processing = $5, statuses = $6
WHERE id = $7 AND completed_at IS NULL`
	_, err = r.DB.ExecContext(ctx, query,
		outcome.Total, outcome.Succeeded, outcome.Failed, outcome.ReconciliationFailed, outcome.Processing, raw, id)
	if err != nil {
		return fmt.Errorf("save batch progress %s: %w", id, err)
	}
	return nil
}

func (r *PGRepo) Close(ctx context.Context, id string, at time.Time, outcome Outcome, statuses []DocumentStatus) (Batch, bool, error) {
	raw, err := json.Marshal(nonNilStatuses(statuses))
	if err != nil {
		return Batch{}, false, err
	}
	const query = `
UPDATE batches
SET completed_at = $1, total = $2, succeeded = $3, failed = $4, reconciliation_failed = $5, processing = $6, statuses = $7
WHERE id = $8 AND completed_at IS NULL`
	res, err := r.DB.ExecContext(ctx, query,
		at, outcome.Total, outcome.Succeeded, outcome.Failed, outcome.ReconciliationFailed, outcome.Processing, raw, id)
	if err != nil {
		return Batch{}, false, fmt.Errorf("close batch %s: %w", id, err)
	}
	affected, _ := res.RowsAffected()

	b, err := r.Get(ctx, id)
	if err != nil {
		return Batch{}, false, err
	}
	return b, affected == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (Batch, error) {
	var (
		b           Batch
		idsRaw      []byte
		statusesRaw []byte
		completedAt sql.NullTime
		intervalMs  int64
		timeoutMs   int64
	)
	if err := row.Scan(
		&b.ID,
		&idsRaw,
		&b.SubmittedAt,
		&b.Deadline,
		&completedAt,
		&intervalMs,
		&timeoutMs,
		&b.MaxPollFailures,
		&b.Outcome.Total,
		&b.Outcome.Succeeded,
		&b.Outcome.Failed,
		&b.Outcome.ReconciliationFailed,
		&b.Outcome.Processing,
		&statusesRaw,
	); err != nil {
		return Batch{}, err
	}
	if err := json.Unmarshal(idsRaw, &b.DocumentIDs); err != nil {
		return Batch{}, fmt.Errorf("decode batch document ids: %w", err)
	}
	if len(statusesRaw) > 0 {
		if err := json.Unmarshal(statusesRaw, &b.Statuses); err != nil {
			return Batch{}, fmt.Errorf("decode batch statuses: %w", err)
		}
	}
	if completedAt.Valid {
		at := completedAt.Time
		b.CompletedAt = &at
	}
	b.PollInterval = time.Duration(intervalMs) * time.Millisecond
	b.Timeout = time.Duration(timeoutMs) * time.Millisecond
	return b, nil
}

func nonNilStatuses(statuses []DocumentStatus) []DocumentStatus {
	if statuses == nil {
		return []DocumentStatus{}
	}
	return statuses
}

var _ Repo = (*PGRepo)(nil)
