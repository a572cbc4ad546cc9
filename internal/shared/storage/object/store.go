package object

import (
	"context"
	"io"
)

// Object describes a staged file after it has been written.
type Object struct {
	Key       string
	SizeBytes int64
	MimeType  string
}

// ObjectStore stages document bytes between registration and remote submission.
type ObjectStore interface {
	Save(ctx context.Context, namespace string, fileName string, r io.Reader) (Object, error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}

// ReadAll opens storageKey and returns its full contents.
func ReadAll(ctx context.Context, store ObjectStore, storageKey string) ([]byte, error) {
	body, err := store.Open(ctx, storageKey)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}
