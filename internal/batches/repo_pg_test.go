package batches

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var batchRowColumns = []string{
	"id", "document_ids", "submitted_at", "deadline", "completed_at", "poll_interval_ms", "timeout_ms",
	"max_poll_failures", "total", "succeeded", "failed", "reconciliation_failed", "processing", "statuses",
}

func newBatchPG(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoCreatePersistsLoopParameters(t *testing.T) {
	repo, mock := newBatchPG(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := Batch{
		ID:              "b-1",
		DocumentIDs:     []string{"d-1", "d-2"},
		SubmittedAt:     now,
		Deadline:        now.Add(time.Minute),
		PollInterval:    5 * time.Second,
		Timeout:         time.Minute,
		MaxPollFailures: 3,
		Outcome:         Outcome{Total: 2, Processing: 2},
	}

	mock.ExpectExec("INSERT INTO batches").
		WithArgs("b-1", []byte(`["d-1","d-2"]`), now, now.Add(time.Minute), int64(5000), int64(60000), 3, 2, 0, 0, 0, 2, []byte(`[]`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), b); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetNotFound(t *testing.T) {
	repo, mock := newBatchPG(t)
	mock.ExpectQuery(`SELECT .* FROM batches WHERE id = \$1`).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
}

func TestPGRepoCloseIsCompareAndSet(t *testing.T) {
	repo, mock := newBatchPG(t)
	first := time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC)
	second := first.Add(time.Minute)
	outcome := Outcome{Total: 1, Succeeded: 1}

	mock.ExpectExec("UPDATE batches").
		WithArgs(second, 1, 1, 0, 0, 0, sqlmock.AnyArg(), "b-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows(batchRowColumns).AddRow(
		"b-1", []byte(`["d-1"]`), first.Add(-time.Minute), first.Add(time.Hour), first,
		int64(5000), int64(300000), int64(3), int64(1), int64(1), int64(0), int64(0), int64(0),
		[]byte(`[{"documentId":"d-1","fileName":"a.pdf","status":"completed"}]`),
	)
	mock.ExpectQuery(`SELECT .* FROM batches WHERE id = \$1`).WithArgs("b-1").WillReturnRows(rows)

	b, won, err := repo.Close(context.Background(), "b-1", second, outcome, nil)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if won {
		t.Fatalf("second close must not win")
	}
	if b.CompletedAt == nil || !b.CompletedAt.Equal(first) {
		t.Fatalf("expected original completion time, got %v", b.CompletedAt)
	}
	if b.PollInterval != 5*time.Second || len(b.Statuses) != 1 || b.Statuses[0].Status != "completed" {
		t.Fatalf("unexpected decoded batch %+v", b)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
