package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxUpdateAttempts = 3

const documentColumns = `id, remote_id, batch_id, file_name, cnpj, source, description, mime_type, size_bytes, page_count, storage_key, status, error_message, failure_reason, created_at, updated_at`

// PGRepo implements Repo using Postgres. Status updates are compare-and-set on
// the previous status, which serializes concurrent writers to one document.
type PGRepo struct {
	DB  *sql.DB
	Now func() time.Time
}

func (r *PGRepo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

// Create validates meta and inserts a new document in StatusCreated.
func (r *PGRepo) Create(ctx context.Context, meta Metadata) (Document, error) {
	meta, err := Validate(meta)
	if err != nil {
		return Document{}, err
	}
	doc := newDocument(uuid.NewString(), meta, r.now())

	const query = `
INSERT INTO documents (
    id,
    file_name,
    cnpj,
    source,
    description,
    mime_type,
    size_bytes,
    page_count,
    storage_key,
    status,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.FileName,
		doc.CNPJ,
		doc.Source,
		doc.Description,
		doc.MimeType,
		doc.SizeBytes,
		doc.PageCount,
		nullString(doc.StorageKey),
		string(doc.Status),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

// Get fetches a document by id.
func (r *PGRepo) Get(ctx context.Context, id string) (Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// Update applies upd if the stored status still matches what was read.
func (r *PGRepo) Update(ctx context.Context, id string, upd Update) (Document, error) {
	const query = `
UPDATE documents
SET status = $1, remote_id = $2, error_message = $3, failure_reason = $4, updated_at = $5
WHERE id = $6 AND status = $7`

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := r.Get(ctx, id)
		if err != nil {
			return Document{}, err
		}
		next, err := current.apply(upd, r.now())
		if err != nil {
			return current, err
		}
		res, err := r.DB.ExecContext(
			ctx,
			query,
			string(next.Status),
			nullString(next.RemoteID),
			nullString(next.ErrorMessage),
			nullString(next.FailureReason),
			next.UpdatedAt,
			id,
			string(current.Status),
		)
		if err != nil {
			return current, fmt.Errorf("update document %s: %w", id, err)
		}
		if affected, _ := res.RowsAffected(); affected == 1 {
			return next, nil
		}
	}
	return Document{}, fmt.Errorf("update document %s: concurrent modification", id)
}

// AssignBatch sets batch_id for a document that has none yet.
func (r *PGRepo) AssignBatch(ctx context.Context, id, batchID string) (Document, error) {
	const query = `
UPDATE documents
SET batch_id = $1, updated_at = $2
WHERE id = $3 AND batch_id IS NULL`
	res, err := r.DB.ExecContext(ctx, query, batchID, r.now(), id)
	if err != nil {
		return Document{}, fmt.Errorf("assign batch for document %s: %w", id, err)
	}
	doc, err := r.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 && doc.BatchID != batchID {
		return doc, ErrAlreadyBatched
	}
	return doc, nil
}

// List streams matching documents ordered by creation time.
func (r *PGRepo) List(ctx context.Context, filter Filter) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		query, args := buildListQuery(filter)
		rows, err := r.DB.QueryContext(ctx, query, args...)
		if err != nil {
			yield(Document{}, fmt.Errorf("list documents: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			doc, err := scanDocument(rows)
			if err != nil {
				yield(Document{}, err)
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Document{}, err)
		}
	}
}

func buildListQuery(filter Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.BatchID != "" {
		args = append(args, filter.BatchID)
		where = append(where, fmt.Sprintf("batch_id = $%d", len(args)))
	}
	if filter.CNPJ != "" {
		args = append(args, filter.CNPJ)
		where = append(where, fmt.Sprintf("cnpj = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			args = append(args, string(s))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`
	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var status string
	var remoteID sql.NullString
	var batchID sql.NullString
	var storageKey sql.NullString
	var errorMessage sql.NullString
	var failureReason sql.NullString
	if err := row.Scan(
		&doc.ID,
		&remoteID,
		&batchID,
		&doc.FileName,
		&doc.CNPJ,
		&doc.Source,
		&doc.Description,
		&doc.MimeType,
		&doc.SizeBytes,
		&doc.PageCount,
		&storageKey,
		&status,
		&errorMessage,
		&failureReason,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return Document{}, err
	}
	doc.Status = Status(status)
	doc.RemoteID = remoteID.String
	doc.BatchID = batchID.String
	doc.StorageKey = storageKey.String
	doc.ErrorMessage = errorMessage.String
	doc.FailureReason = failureReason.String
	return doc, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
