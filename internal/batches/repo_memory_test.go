package batches

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRepoCloseOnce(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	if err := repo.Create(ctx, Batch{ID: "b-1", DocumentIDs: []string{"d-1"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first, won, err := repo.Close(ctx, "b-1", at, Outcome{Total: 1, Succeeded: 1}, nil)
	if err != nil || !won {
		t.Fatalf("first close: won=%v err=%v", won, err)
	}
	second, won, err := repo.Close(ctx, "b-1", at.Add(time.Hour), Outcome{Total: 1, Failed: 1}, nil)
	if err != nil || won {
		t.Fatalf("second close: won=%v err=%v", won, err)
	}
	if !second.CompletedAt.Equal(*first.CompletedAt) || second.Outcome != first.Outcome {
		t.Fatalf("second close changed the batch: %+v", second)
	}

	if err := repo.SaveProgress(ctx, "b-1", Outcome{Total: 1, Processing: 1}, nil); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}
	stored, _ := repo.Get(ctx, "b-1")
	if stored.Outcome.Succeeded != 1 {
		t.Fatalf("progress must not overwrite a closed batch: %+v", stored.Outcome)
	}

	if _, _, err := repo.Close(ctx, "missing", at, Outcome{}, nil); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
}
