// Package remotetest provides a scriptable in-memory remote.Client for tests.
package remotetest

import (
	"context"
	"encoding/json"
	"sync"

	"docrecon-backend/internal/remote"
)

// Fake is a remote.Client whose answers are supplied by optional hooks.
// Remote ids default to "remote-" + file name.
type Fake struct {
	// SubmitFunc overrides the remote id or fails a submission.
	SubmitFunc func(upload remote.Upload) (string, error)
	// PollFunc answers the n-th (1-based) poll for remoteID. Defaults to pending.
	PollFunc func(remoteID string, n int) (remote.Status, error)
	// ExportFunc answers the n-th (1-based) export fetch for remoteID.
	ExportFunc func(remoteID string, n int) (remote.Export, error)

	mu          sync.Mutex
	submitted   []remote.Upload
	batchCalls  int
	polls       map[string]int
	exports     map[string]int
	activePolls int
	maxPolls    int
}

// Submit records upload and returns its remote id.
func (f *Fake) Submit(ctx context.Context, upload remote.Upload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, upload)
	f.mu.Unlock()

	if f.SubmitFunc != nil {
		return f.SubmitFunc(upload)
	}
	return "remote-" + upload.FileName, nil
}

// SubmitBatch submits each upload in turn.
func (f *Fake) SubmitBatch(ctx context.Context, uploads []remote.Upload) ([]remote.SubmitResult, error) {
	f.mu.Lock()
	f.batchCalls++
	f.mu.Unlock()

	results := make([]remote.SubmitResult, 0, len(uploads))
	for _, upload := range uploads {
		id, err := f.Submit(ctx, upload)
		results = append(results, remote.SubmitResult{DocumentID: upload.DocumentID, RemoteID: id, Err: err})
	}
	return results, nil
}

// PollStatus returns the scripted status for remoteID.
func (f *Fake) PollStatus(ctx context.Context, remoteID string) (remote.Status, error) {
	if err := ctx.Err(); err != nil {
		return remote.Status{}, err
	}
	f.mu.Lock()
	if f.polls == nil {
		f.polls = make(map[string]int)
	}
	f.polls[remoteID]++
	n := f.polls[remoteID]
	f.activePolls++
	if f.activePolls > f.maxPolls {
		f.maxPolls = f.activePolls
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.activePolls--
		f.mu.Unlock()
	}()

	if f.PollFunc != nil {
		return f.PollFunc(remoteID, n)
	}
	return remote.Status{State: remote.StatePending}, nil
}

// FetchExport returns the scripted export for remoteID.
func (f *Fake) FetchExport(ctx context.Context, remoteID string) (remote.Export, error) {
	if err := ctx.Err(); err != nil {
		return remote.Export{}, err
	}
	f.mu.Lock()
	if f.exports == nil {
		f.exports = make(map[string]int)
	}
	f.exports[remoteID]++
	n := f.exports[remoteID]
	f.mu.Unlock()

	if f.ExportFunc != nil {
		return f.ExportFunc(remoteID, n)
	}
	return remote.Export{RemoteID: remoteID, Fields: map[string]json.RawMessage{}}, nil
}

// Submitted returns every upload seen so far.
func (f *Fake) Submitted() []remote.Upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.Upload, len(f.submitted))
	copy(out, f.submitted)
	return out
}

// BatchCalls counts SubmitBatch invocations.
func (f *Fake) BatchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batchCalls
}

// Polls counts PollStatus calls for remoteID.
func (f *Fake) Polls(remoteID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[remoteID]
}

// Exports counts FetchExport calls for remoteID.
func (f *Fake) Exports(remoteID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exports[remoteID]
}

// MaxConcurrentPolls reports the highest number of overlapping PollStatus calls.
func (f *Fake) MaxConcurrentPolls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxPolls
}

var _ remote.Client = (*Fake)(nil)
