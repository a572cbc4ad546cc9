// Package remote defines the boundary to the external document-processing
// service: submission, status polling and result export.
package remote

import (
	"context"
	"encoding/json"
)

// State is the remote service's view of a document.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

// Status is one poll answer. Message is set for StateError.
type Status struct {
	State   State
	Message string
}

// Upload is a single document handed to the remote service.
type Upload struct {
	DocumentID  string
	FileName    string
	Content     []byte
	CNPJ        string
	Source      string
	Description string
}

// SubmitResult is the per-member outcome of SubmitBatch.
type SubmitResult struct {
	DocumentID string
	RemoteID   string
	Err        error
}

// Export is the raw extraction result for one completed document.
type Export struct {
	RemoteID string
	Fields   map[string]json.RawMessage
}

// Client talks to the remote processing service. Implementations must be
// safe for concurrent use.
type Client interface {
	Submit(ctx context.Context, upload Upload) (string, error)
	// SubmitBatch returns one result per upload, in order. The call-level
	// error is reserved for failures that affect every member.
	SubmitBatch(ctx context.Context, uploads []Upload) ([]SubmitResult, error)
	PollStatus(ctx context.Context, remoteID string) (Status, error)
	FetchExport(ctx context.Context, remoteID string) (Export, error)
}
