package local

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docrecon-backend/internal/shared/storage/object"
	"docrecon-backend/internal/shared/util"
)

// Store implements ObjectStore using the local filesystem.
type Store struct {
	baseDir string
}

// New creates a new local object store rooted at baseDir.
func New(baseDir string) object.ObjectStore {
	return &Store{baseDir: baseDir}
}

// Save writes the reader to disk under the namespace directory with a random prefix.
func (s *Store) Save(ctx context.Context, namespace string, fileName string, r io.Reader) (object.Object, error) {
	sanitizedName, err := util.SanitizeFileName(fileName)
	if err != nil {
		return object.Object{}, fmt.Errorf("sanitize file name: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return object.Object{}, err
	}

	storageKey := util.ObjectKey(namespace, randomID(), sanitizedName)
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(storageKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return object.Object{}, fmt.Errorf("mkdir: %w", err)
	}

	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return object.Object{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	var sniff [512]byte
	n, readErr := io.ReadFull(r, sniff[:])
	if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
		return object.Object{}, fmt.Errorf("read sniff: %w", readErr)
	}
	if n > 0 {
		if _, err := f.Write(sniff[:n]); err != nil {
			return object.Object{}, fmt.Errorf("write sniff: %w", err)
		}
	}
	written, err := io.Copy(f, r)
	if err != nil {
		return object.Object{}, fmt.Errorf("write body: %w", err)
	}

	return object.Object{
		Key:       storageKey,
		SizeBytes: int64(n) + written,
		MimeType:  http.DetectContentType(sniff[:n]),
	}, nil
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean := filepath.Clean(filepath.FromSlash(storageKey))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("invalid storage key")
	}
	return os.Open(filepath.Join(s.baseDir, clean))
}

func randomID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

var _ object.ObjectStore = (*Store)(nil)
