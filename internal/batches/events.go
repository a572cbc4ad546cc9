package batches

import (
	"docrecon-backend/internal/documents"
	"docrecon-backend/internal/shared/metrics"
	"docrecon-backend/internal/shared/telemetry"
)

// Events receives reconciliation milestones. Implementations must not block.
type Events interface {
	DocumentTerminal(batchID string, doc documents.Document)
	BatchClosed(b Batch)
}

// LogEvents reports milestones through telemetry and metrics.
type LogEvents struct{}

func (LogEvents) DocumentTerminal(batchID string, doc documents.Document) {
	metrics.IncDocumentTerminal(string(doc.Status))
	fields := map[string]any{
		"batch_id":    batchID,
		"document_id": doc.ID,
		"remote_id":   doc.RemoteID,
		"status":      string(doc.Status),
	}
	switch doc.Status {
	case documents.StatusError:
		fields["error"] = doc.ErrorMessage
		telemetry.Warn("document.terminal", fields)
	case documents.StatusReconciliationFailed:
		fields["reason"] = doc.FailureReason
		telemetry.Warn("document.terminal", fields)
	default:
		telemetry.Info("document.terminal", fields)
	}
}

func (LogEvents) BatchClosed(b Batch) {
	metrics.IncBatchClosed()
	if b.CompletedAt != nil {
		metrics.ObserveBatchDurationMs(float64(b.CompletedAt.Sub(b.SubmittedAt).Milliseconds()))
	}
	telemetry.Info("batch.closed", map[string]any{
		"batch_id":              b.ID,
		"total":                 b.Outcome.Total,
		"succeeded":             b.Outcome.Succeeded,
		"failed":                b.Outcome.Failed,
		"reconciliation_failed": b.Outcome.ReconciliationFailed,
	})
}

// MultiEvents fans milestones out to several sinks.
type MultiEvents []Events

func (m MultiEvents) DocumentTerminal(batchID string, doc documents.Document) {
	for _, e := range m {
		e.DocumentTerminal(batchID, doc)
	}
}

func (m MultiEvents) BatchClosed(b Batch) {
	for _, e := range m {
		e.BatchClosed(b)
	}
}
