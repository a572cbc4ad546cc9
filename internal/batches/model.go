package batches

import (
	"time"

	"docrecon-backend/internal/documents"
)

// Defaults applied when neither the caller nor the stored batch sets a value.
const (
	DefaultPollInterval    = 5 * time.Second
	DefaultTimeout         = 300 * time.Second
	DefaultMaxPollFailures = 3
	DefaultUploadWorkers   = 4
	DefaultPollWorkers     = 8
)

// Batch groups documents submitted together and reconciled by one loop.
type Batch struct {
	ID              string
	DocumentIDs     []string
	SubmittedAt     time.Time
	Deadline        time.Time
	CompletedAt     *time.Time
	PollInterval    time.Duration
	Timeout         time.Duration
	MaxPollFailures int
	Outcome         Outcome
	Statuses        []DocumentStatus
}

// Closed reports whether reconciliation has finished for good.
func (b Batch) Closed() bool {
	return b.CompletedAt != nil
}

// Outcome counts member documents by result. Succeeded, Failed,
// ReconciliationFailed and Processing always sum to Total.
type Outcome struct {
	Total                int `json:"total"`
	Succeeded            int `json:"succeeded"`
	Failed               int `json:"failed"`
	ReconciliationFailed int `json:"reconciliationFailed"`
	Processing           int `json:"processing"`
}

// Consistent reports whether the counters add up.
func (o Outcome) Consistent() bool {
	return o.Succeeded+o.Failed+o.ReconciliationFailed+o.Processing == o.Total
}

// DocumentStatus is one member's status as recorded with the outcome.
type DocumentStatus struct {
	DocumentID    string           `json:"documentId"`
	RemoteID      string           `json:"remoteId,omitempty"`
	FileName      string           `json:"fileName"`
	Status        documents.Status `json:"status"`
	ErrorMessage  string           `json:"errorMessage,omitempty"`
	FailureReason string           `json:"failureReason,omitempty"`
}

// ReasonMissing marks a member that could not be read from the registry.
const ReasonMissing = "document_missing"

// Summarize derives the outcome from member documents, ordered as ids.
// Members missing from docs count as reconciliation failures.
func Summarize(ids []string, docs []documents.Document) (Outcome, []DocumentStatus) {
	byID := make(map[string]documents.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	out := Outcome{Total: len(ids)}
	statuses := make([]DocumentStatus, 0, len(ids))
	for _, id := range ids {
		d, ok := byID[id]
		if !ok {
			out.ReconciliationFailed++
			statuses = append(statuses, DocumentStatus{
				DocumentID:    id,
				Status:        documents.StatusReconciliationFailed,
				FailureReason: ReasonMissing,
			})
			continue
		}
		switch d.Status {
		case documents.StatusCompleted:
			out.Succeeded++
		case documents.StatusError:
			out.Failed++
		case documents.StatusReconciliationFailed:
			out.ReconciliationFailed++
		default:
			out.Processing++
		}
		statuses = append(statuses, DocumentStatus{
			DocumentID:    d.ID,
			RemoteID:      d.RemoteID,
			FileName:      d.FileName,
			Status:        d.Status,
			ErrorMessage:  d.ErrorMessage,
			FailureReason: d.FailureReason,
		})
	}
	return out, statuses
}

// ReconcileOptions overrides the batch's stored loop parameters. Zero
// values fall back to the batch, then to the package defaults.
type ReconcileOptions struct {
	PollInterval    time.Duration
	Timeout         time.Duration
	MaxPollFailures int
}

// SubmitOptions controls one submission.
type SubmitOptions struct {
	WaitForCompletion bool
	PollInterval      time.Duration
	Timeout           time.Duration
	MaxPollFailures   int
	// UseBatchUpload sends documents through the remote batch endpoint.
	UseBatchUpload bool
}

// Item is one document to register and submit.
type Item struct {
	Content  []byte
	Metadata documents.Metadata
}
