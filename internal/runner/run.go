package runner

import (
	"context"
	"sync"

	"github.com/quantfold/replaycore/pkg/id"
	"github.com/quantfold/replaycore/pkg/types"
)

// Run is the handle for one submitted replay. It exposes the run's identity,
// a cancellation switch, and the eventual result; the snapshot returned by
// Progress is refreshed once per simulated day.
type Run struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.RWMutex
	status   types.RunStatus
	progress types.RunProgress
	result   *types.RunResult
	err      error
}

func newRun(parent context.Context) (*Run, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	r := &Run{
		id:     id.NewRunID(),
		cancel: cancel,
		done:   make(chan struct{}),
		status: types.RunStatusRunning,
	}
	r.progress = types.RunProgress{RunID: r.id, Status: types.RunStatusRunning}
	return r, ctx
}

// abortedRun builds a handle for a job that never started, already finished
// in the cancelled state.
func abortedRun(err error) *Run {
	r := &Run{
		id:     id.NewRunID(),
		cancel: func() {},
		done:   make(chan struct{}),
		status: types.RunStatusCancelled,
		err:    err,
	}
	r.progress = types.RunProgress{
		RunID:  r.id,
		Status: types.RunStatusCancelled,
		Error:  err.Error(),
	}
	close(r.done)
	return r
}

// ID returns the run's unique, lexicographically sortable identifier.
func (r *Run) ID() string {
	return r.id
}

// Done is closed once the run has reached a terminal status.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Cancel requests cooperative cancellation. The engine notices at the next
// day boundary; Wait then reports context.Canceled. Cancelling a finished
// run is a no-op.
func (r *Run) Cancel() {
	r.cancel()
}

// Wait blocks until the run finishes and returns its result. The result is
// nil when the run failed or was cancelled.
func (r *Run) Wait() (*types.RunResult, error) {
	<-r.done
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result, r.err
}

// Status reports the run's current lifecycle state.
func (r *Run) Status() types.RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Progress returns the most recent per-day snapshot. Before the first
// simulated day it carries only the run ID and the running status.
func (r *Run) Progress() types.RunProgress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progress
}

func (r *Run) setProgress(p types.RunProgress) {
	r.mu.Lock()
	r.progress = p
	r.mu.Unlock()
}

func (r *Run) finish(result *types.RunResult, err error, status types.RunStatus) {
	r.mu.Lock()
	r.result = result
	r.err = err
	r.status = status
	r.progress.Status = status
	if err != nil {
		r.progress.Error = err.Error()
	}
	r.mu.Unlock()
	close(r.done)
}
