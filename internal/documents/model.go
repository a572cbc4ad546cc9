package documents

import (
	"strings"
	"time"

	"docrecon-backend/internal/shared/util"
)

// Document is one submitted file plus metadata, tracked through the status lifecycle.
type Document struct {
	ID            string
	RemoteID      string
	BatchID       string
	FileName      string
	CNPJ          string
	Source        string
	Description   string
	MimeType      string
	SizeBytes     int64
	PageCount     int
	StorageKey    string
	Status        Status
	ErrorMessage  string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Metadata is the immutable part of a Document, fixed at creation.
type Metadata struct {
	FileName    string `validate:"required,max=255"`
	CNPJ        string `validate:"required,len=14,numeric"`
	Source      string `validate:"max=128"`
	Description string `validate:"max=1024"`
	MimeType    string `validate:"max=255"`
	SizeBytes   int64  `validate:"gte=0"`
	PageCount   int    `validate:"gte=0"`
	StorageKey  string
}

// Normalize trims text fields and strips CNPJ punctuation.
func (m Metadata) Normalize() Metadata {
	m.FileName = strings.TrimSpace(m.FileName)
	m.CNPJ = util.DigitsOnly(m.CNPJ)
	m.Source = strings.TrimSpace(m.Source)
	m.Description = strings.TrimSpace(m.Description)
	m.MimeType = strings.TrimSpace(m.MimeType)
	return m
}

// Update is a requested status change plus the fields that travel with it.
type Update struct {
	Status        Status
	RemoteID      string
	ErrorMessage  string
	FailureReason string
}

// Failure reasons recorded with ReconciliationFailed.
const (
	ReasonTimeout              = "timeout"
	ReasonPollFailuresExceeded = "poll_failures_exhausted"
)

// apply returns doc with upd applied, or an InvalidTransitionError.
func (d Document) apply(upd Update, now time.Time) (Document, error) {
	if !d.Status.CanTransitionTo(upd.Status) {
		return d, &InvalidTransitionError{DocumentID: d.ID, From: d.Status, To: upd.Status}
	}

	next := d
	if upd.RemoteID != "" {
		if d.RemoteID != "" && d.RemoteID != upd.RemoteID {
			return d, &InvalidTransitionError{DocumentID: d.ID, From: d.Status, To: upd.Status, Reason: "remote id is immutable"}
		}
		next.RemoteID = upd.RemoteID
	}
	if upd.Status.RequiresRemoteID() && next.RemoteID == "" {
		return d, &InvalidTransitionError{DocumentID: d.ID, From: d.Status, To: upd.Status, Reason: "remote id required"}
	}

	next.ErrorMessage = ""
	next.FailureReason = ""
	switch upd.Status {
	case StatusError:
		msg := strings.TrimSpace(upd.ErrorMessage)
		if msg == "" {
			return d, &InvalidTransitionError{DocumentID: d.ID, From: d.Status, To: upd.Status, Reason: "error message required"}
		}
		next.ErrorMessage = msg
	case StatusReconciliationFailed:
		next.FailureReason = strings.TrimSpace(upd.FailureReason)
		if next.FailureReason == "" {
			next.FailureReason = ReasonPollFailuresExceeded
		}
	}

	next.Status = upd.Status
	next.UpdatedAt = now
	return next, nil
}

// Filter selects documents for List. Zero fields match everything.
type Filter struct {
	BatchID  string
	CNPJ     string
	Statuses []Status
}

// Match reports whether doc satisfies the filter.
func (f Filter) Match(doc Document) bool {
	if f.BatchID != "" && doc.BatchID != f.BatchID {
		return false
	}
	if f.CNPJ != "" && doc.CNPJ != f.CNPJ {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if doc.Status == s {
			return true
		}
	}
	return false
}
