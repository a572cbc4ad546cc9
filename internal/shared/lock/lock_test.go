package lock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalExclusive(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	lease, err := l.Obtain(ctx, "batch-1", time.Minute)
	if err != nil {
		t.Fatalf("Obtain: %v", err)
	}
	if _, err := l.Obtain(ctx, "batch-1", time.Minute); !errors.Is(err, ErrNotObtained) {
		t.Fatalf("expected ErrNotObtained, got %v", err)
	}
	if _, err := l.Obtain(ctx, "batch-2", time.Minute); err != nil {
		t.Fatalf("independent key should be free: %v", err)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lease.Release(ctx); err != nil {
		t.Fatalf("second Release should be a no-op: %v", err)
	}
	if _, err := l.Obtain(ctx, "batch-1", time.Minute); err != nil {
		t.Fatalf("expected key to be free after release: %v", err)
	}
}

func TestLocalHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLocal().Obtain(ctx, "k", time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
