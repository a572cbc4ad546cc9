package documents

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"docrecon-backend/internal/shared/storage/object"
)

// Service registers documents, staging their bytes in the object store first.
type Service struct {
	Store object.ObjectStore
	Repo  Repo
	// RequirePDF rejects uploads that do not parse as PDF.
	RequirePDF bool
}

// Register validates meta, stages content and creates the document.
func (s *Service) Register(ctx context.Context, meta Metadata, content []byte) (Document, error) {
	meta, err := Validate(meta)
	if err != nil {
		return Document{}, err
	}
	if len(content) == 0 {
		return Document{}, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}

	if s.RequirePDF {
		if !strings.EqualFold(filepath.Ext(meta.FileName), ".pdf") {
			return Document{}, fmt.Errorf("%w: only .pdf files are accepted", ErrInvalidInput)
		}
		pages, err := InspectPDF(content)
		if err != nil {
			return Document{}, err
		}
		meta.PageCount = pages
		meta.MimeType = pdfMimeType
	}

	if s.Store != nil {
		obj, err := s.Store.Save(ctx, meta.CNPJ, meta.FileName, bytes.NewReader(content))
		if err != nil {
			return Document{}, fmt.Errorf("stage document: %w", err)
		}
		meta.StorageKey = obj.Key
		meta.SizeBytes = obj.SizeBytes
		if meta.MimeType == "" {
			meta.MimeType = obj.MimeType
		}
	} else {
		meta.SizeBytes = int64(len(content))
	}

	return s.Repo.Create(ctx, meta)
}

// Content returns the staged bytes of doc.
func (s *Service) Content(ctx context.Context, doc Document) ([]byte, error) {
	if s.Store == nil || doc.StorageKey == "" {
		return nil, fmt.Errorf("%w: document %s has no staged content", ErrInvalidInput, doc.ID)
	}
	return object.ReadAll(ctx, s.Store, doc.StorageKey)
}

