package metrics

import (
	"strings"
	"testing"
)

func TestHistogramBucketsAreCumulativeOnce(t *testing.T) {
	h := newHistogram([]float64{10, 100})
	h.Observe(5)
	h.Observe(50)
	h.Observe(500)

	snap := h.Snapshot()
	if snap.count != 3 || snap.sum != 555 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.counts[0] != 1 || snap.counts[1] != 1 {
		t.Fatalf("unexpected per-bucket counts %v", snap.counts)
	}
}

func TestRenderIncludesCounters(t *testing.T) {
	IncPoll(true)
	IncDocumentTerminal("completed")
	out := Render()
	for _, name := range []string{"polls_total", "poll_failures_total", "documents_completed_total", "batch_duration_ms_bucket"} {
		if !strings.Contains(out, name) {
			t.Fatalf("expected %s in output", name)
		}
	}
}
