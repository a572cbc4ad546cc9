package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	batchesSubmittedTotal     atomic.Uint64
	batchesClosedTotal        atomic.Uint64
	documentsSubmittedTotal   atomic.Uint64
	documentsRejectedTotal    atomic.Uint64
	documentsCompletedTotal   atomic.Uint64
	documentsErroredTotal     atomic.Uint64
	documentsReconFailedTotal atomic.Uint64
	pollsTotal                atomic.Uint64
	pollFailuresTotal         atomic.Uint64
	transitionsRejectedTotal  atomic.Uint64
	exportsFetchedTotal       atomic.Uint64
	exportFailuresTotal       atomic.Uint64
	jobsReceivedTotal         atomic.Uint64
	jobsCompletedTotal        atomic.Uint64
	jobsFailedTotal           atomic.Uint64
	jobsDeletedUnrecoverable  atomic.Uint64

	batchDuration = newHistogram([]float64{1000, 5000, 15000, 30000, 60000, 120000, 300000, 600000})
)

// IncBatchSubmitted counts a batch handed to reconciliation.
func IncBatchSubmitted() {
	batchesSubmittedTotal.Add(1)
}

// IncBatchClosed counts a batch closure.
func IncBatchClosed() {
	batchesClosedTotal.Add(1)
}

// IncDocumentSubmitted counts a document accepted by the remote service.
func IncDocumentSubmitted() {
	documentsSubmittedTotal.Add(1)
}

// IncDocumentRejected counts a document the remote service refused at upload.
func IncDocumentRejected() {
	documentsRejectedTotal.Add(1)
}

// IncDocumentTerminal counts a document reaching a terminal status.
func IncDocumentTerminal(status string) {
	switch status {
	case "completed":
		documentsCompletedTotal.Add(1)
	case "error":
		documentsErroredTotal.Add(1)
	case "reconciliation_failed":
		documentsReconFailedTotal.Add(1)
	}
}

// IncPoll counts a status poll; failed marks polls that returned an error.
func IncPoll(failed bool) {
	pollsTotal.Add(1)
	if failed {
		pollFailuresTotal.Add(1)
	}
}

// IncTransitionRejected counts remote answers the state machine refused.
func IncTransitionRejected() {
	transitionsRejectedTotal.Add(1)
}

// IncExport counts an export fetch.
func IncExport(failed bool) {
	if failed {
		exportFailuresTotal.Add(1)
		return
	}
	exportsFetchedTotal.Add(1)
}

// IncReconcileJobsReceived counts queue messages picked up by a worker.
func IncReconcileJobsReceived() {
	jobsReceivedTotal.Add(1)
}

// IncReconcileJobsCompleted counts queue messages handled and deleted.
func IncReconcileJobsCompleted() {
	jobsCompletedTotal.Add(1)
}

// IncReconcileJobsFailed counts queue messages left for redelivery.
func IncReconcileJobsFailed() {
	jobsFailedTotal.Add(1)
}

// IncReconcileJobsDeletedUnrecoverable counts malformed messages dropped.
func IncReconcileJobsDeletedUnrecoverable() {
	jobsDeletedUnrecoverable.Add(1)
}

// ObserveBatchDurationMs records submission-to-closure time in milliseconds.
func ObserveBatchDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	batchDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "batches_submitted_total", "Total batches handed to reconciliation", batchesSubmittedTotal.Load())
	writeCounter(&buf, "batches_closed_total", "Total batches closed", batchesClosedTotal.Load())
	writeCounter(&buf, "documents_submitted_total", "Total documents accepted by the remote service", documentsSubmittedTotal.Load())
	writeCounter(&buf, "documents_rejected_total", "Total documents rejected at upload", documentsRejectedTotal.Load())
	writeCounter(&buf, "documents_completed_total", "Total documents completed", documentsCompletedTotal.Load())
	writeCounter(&buf, "documents_errored_total", "Total documents failed by the remote service", documentsErroredTotal.Load())
	writeCounter(&buf, "documents_reconciliation_failed_total", "Total documents whose status could not be reconciled", documentsReconFailedTotal.Load())
	writeCounter(&buf, "polls_total", "Total status polls", pollsTotal.Load())
	writeCounter(&buf, "poll_failures_total", "Total failed status polls", pollFailuresTotal.Load())
	writeCounter(&buf, "transitions_rejected_total", "Total remote status answers rejected by the state machine", transitionsRejectedTotal.Load())
	writeCounter(&buf, "exports_fetched_total", "Total export results fetched", exportsFetchedTotal.Load())
	writeCounter(&buf, "export_failures_total", "Total failed export fetches", exportFailuresTotal.Load())
	writeCounter(&buf, "reconcile_jobs_received_total", "Total reconcile jobs received", jobsReceivedTotal.Load())
	writeCounter(&buf, "reconcile_jobs_completed_total", "Total reconcile jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "reconcile_jobs_failed_total", "Total reconcile jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "reconcile_jobs_deleted_unrecoverable_total", "Total malformed reconcile jobs deleted", jobsDeletedUnrecoverable.Load())
	writeHistogram(&buf, "batch_duration_ms", "Batch submission to closure in milliseconds", batchDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// NowMillis returns current time in milliseconds, useful for callers without time utilities.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
