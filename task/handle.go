package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrPending is returned by Handle.Result while the job is still running.
	ErrPending = errors.New("task: not finished")
	// ErrCancelled resolves handles whose job was cancelled before it finished.
	ErrCancelled = errors.New("task: cancelled")
	// ErrPoolClosed resolves handles submitted after Pool.Shutdown.
	ErrPoolClosed = errors.New("task: pool closed")
)

// Status is the lifecycle state of a background job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Handle is the asynchronous result of a job submitted to a Pool.
type Handle struct {
	id        string
	name      string
	submitted time.Time
	done      chan struct{}
	cancel    context.CancelFunc
	running   atomic.Bool
	cancelled atomic.Bool

	mu     sync.Mutex
	result string
	err    error
}

func newHandle(name string, cancel context.CancelFunc) *Handle {
	return &Handle{
		id:        uuid.NewString(),
		name:      name,
		submitted: time.Now(),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
}

// ID returns the unique task id.
func (h *Handle) ID() string { return h.id }

// Name returns the name the job was submitted under (usually the agent).
func (h *Handle) Name() string { return h.name }

// Submitted returns the submission time.
func (h *Handle) Submitted() time.Time { return h.submitted }

// Done is closed once the job has resolved.
func (h *Handle) Done() <-chan struct{} { return h.done }

// IsDone reports whether the job has resolved without blocking.
func (h *Handle) IsDone() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Result returns the job outcome. It never blocks: before the job resolves it
// returns ErrPending.
func (h *Handle) Result() (string, error) {
	if !h.IsDone() {
		return "", ErrPending
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// Wait blocks until the job resolves or ctx is done.
func (h *Handle) Wait(ctx context.Context) (string, error) {
	select {
	case <-h.done:
		return h.Result()
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Status reports the current lifecycle state.
func (h *Handle) Status() Status {
	if !h.IsDone() {
		if h.cancelled.Load() {
			return StatusCancelled
		}
		if h.running.Load() {
			return StatusRunning
		}
		return StatusPending
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.cancelled.Load() && h.err != nil:
		return StatusCancelled
	case h.err != nil:
		return StatusFailed
	default:
		return StatusCompleted
	}
}

// Cancel cancels the job's context. A job that has not started resolves with
// ErrCancelled; a running job observes the cancellation through its context.
func (h *Handle) Cancel() {
	h.cancelled.Store(true)
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Handle) resolve(result string, err error) {
	h.mu.Lock()
	h.result, h.err = result, err
	h.mu.Unlock()
	close(h.done)
}
