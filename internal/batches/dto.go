package batches

import (
	"fmt"
	"time"

	"docrecon-backend/internal/documents"
)

type processRequest struct {
	DocumentIDs            []string `json:"documentIds"`
	WaitForCompletion      bool     `json:"waitForCompletion"`
	TimeoutSeconds         int      `json:"timeoutSeconds"`
	PollingIntervalSeconds int      `json:"pollingIntervalSeconds"`
	MaxPollFailures        int      `json:"maxPollFailures"`
	UseBatchUpload         bool     `json:"useBatchUpload"`
}

func (r processRequest) options() SubmitOptions {
	return SubmitOptions{
		WaitForCompletion: r.WaitForCompletion,
		Timeout:           time.Duration(r.TimeoutSeconds) * time.Second,
		PollInterval:      time.Duration(r.PollingIntervalSeconds) * time.Second,
		MaxPollFailures:   r.MaxPollFailures,
		UseBatchUpload:    r.UseBatchUpload,
	}
}

// DocumentStatusResponse is one member in a batch response.
type DocumentStatusResponse struct {
	DocumentID    string `json:"documentId"`
	RemoteID      string `json:"remoteId,omitempty"`
	FileName      string `json:"fileName"`
	Status        string `json:"status"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
	IsSuccess     bool   `json:"isSuccess"`
	IsProcessing  bool   `json:"isProcessing"`
}

// BatchResponse mirrors the batch-processing contract of the web client.
type BatchResponse struct {
	BatchID                   string                   `json:"batchId"`
	TotalDocuments            int                      `json:"totalDocuments"`
	SuccessCount              int                      `json:"successCount"`
	ErrorCount                int                      `json:"errorCount"`
	ReconciliationFailedCount int                      `json:"reconciliationFailedCount"`
	ProcessingCount           int                      `json:"processingCount"`
	DocumentStatuses          []DocumentStatusResponse `json:"documentStatuses"`
	IsSuccess                 bool                     `json:"isSuccess"`
	IsClosed                  bool                     `json:"isClosed"`
	Message                   string                   `json:"message"`
	SubmittedAt               time.Time                `json:"submittedAt"`
	Deadline                  time.Time                `json:"deadline"`
	CompletedAt               *time.Time               `json:"completedAt,omitempty"`
}

// ToResponse maps a batch snapshot to its JSON shape.
func ToResponse(b Batch) BatchResponse {
	statuses := make([]DocumentStatusResponse, 0, len(b.Statuses))
	for _, s := range b.Statuses {
		statuses = append(statuses, DocumentStatusResponse{
			DocumentID:    s.DocumentID,
			RemoteID:      s.RemoteID,
			FileName:      s.FileName,
			Status:        string(s.Status),
			ErrorMessage:  s.ErrorMessage,
			FailureReason: s.FailureReason,
			IsSuccess:     s.Status == documents.StatusCompleted,
			IsProcessing:  !s.Status.IsTerminal(),
		})
	}
	o := b.Outcome
	return BatchResponse{
		BatchID:                   b.ID,
		TotalDocuments:            o.Total,
		SuccessCount:              o.Succeeded,
		ErrorCount:                o.Failed,
		ReconciliationFailedCount: o.ReconciliationFailed,
		ProcessingCount:           o.Processing,
		DocumentStatuses:          statuses,
		IsSuccess:                 o.Total > 0 && o.Succeeded == o.Total,
		IsClosed:                  b.Closed(),
		Message:                   summaryMessage(b),
		SubmittedAt:               b.SubmittedAt,
		Deadline:                  b.Deadline,
		CompletedAt:               b.CompletedAt,
	}
}

func summaryMessage(b Batch) string {
	o := b.Outcome
	if !b.Closed() {
		return fmt.Sprintf("%d of %d documents still processing", o.Processing, o.Total)
	}
	return fmt.Sprintf("%d documents: %d succeeded, %d failed, %d could not be reconciled",
		o.Total, o.Succeeded, o.Failed, o.ReconciliationFailed)
}
