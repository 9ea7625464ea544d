package task

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/dexter/logging"
)

// PendingTask is a background job registered for reconciliation.
type PendingTask struct {
	ID      string
	Handle  *Handle
	Action  string // code action that dispatched the job
	Created time.Time
}

// NewPendingTask wraps a handle produced by action.
func NewPendingTask(h *Handle, action string) *PendingTask {
	return &PendingTask{ID: h.ID(), Handle: h, Action: action, Created: time.Now()}
}

// Snapshot is a point-in-time view of a tracked task.
type Snapshot struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Action  string    `json:"action"`
	Status  Status    `json:"status"`
	Result  string    `json:"result,omitempty"`
	Error   string    `json:"error,omitempty"`
	Created time.Time `json:"created"`
}

// Tracker holds unreconciled tasks. It is safe for concurrent use.
type Tracker struct {
	logger logging.Logger

	mu      sync.Mutex
	pending []*PendingTask
	known   []*PendingTask
	byID    map[string]*PendingTask
}

// NewTracker creates an empty tracker.
func NewTracker(logger logging.Logger) *Tracker {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Tracker{logger: logger, byID: make(map[string]*PendingTask)}
}

// Register adds a task to the reconciliation set.
func (t *Tracker) Register(pt *PendingTask) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, pt)
	if _, ok := t.byID[pt.ID]; !ok {
		t.known = append(t.known, pt)
		t.byID[pt.ID] = pt
	}
	t.logger.Info("task.registered", "task_id", pt.ID, "name", pt.Handle.Name())
}

// ReconcileCompleted removes every resolved task and returns one line per
// task in registration order. It never blocks on a running task and reports
// false when nothing had resolved.
func (t *Tracker) ReconcileCompleted() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var lines []string
	remaining := t.pending[:0]
	for _, pt := range t.pending {
		if !pt.Handle.IsDone() {
			remaining = append(remaining, pt)
			continue
		}
		result, err := pt.Handle.Result()
		value := result
		if err != nil {
			value = "Task error: " + err.Error()
		}
		lines = append(lines, fmt.Sprintf("Result from agent task to convey to user: %s", value))
		t.logger.Info("task.reconciled", "task_id", pt.ID, "success", err == nil)
	}
	for i := len(remaining); i < len(t.pending); i++ {
		t.pending[i] = nil
	}
	t.pending = remaining

	if len(lines) == 0 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}

// Pending returns the number of unreconciled tasks.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Status returns a snapshot of any task ever registered.
func (t *Tracker) Status(id string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pt, ok := t.byID[id]
	if !ok {
		return Snapshot{}, false
	}
	return snapshot(pt), true
}

// List returns snapshots of every registered task in registration order.
func (t *Tracker) List() []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Snapshot, len(t.known))
	for i, pt := range t.known {
		out[i] = snapshot(pt)
	}
	return out
}

// Cancel discards an unreconciled task and cancels its job. The task will
// never be reported by ReconcileCompleted. It returns false when the task is
// unknown or was already reconciled.
func (t *Tracker) Cancel(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, pt := range t.pending {
		if pt.ID != id {
			continue
		}
		pt.Handle.Cancel()
		t.pending = append(t.pending[:i], t.pending[i+1:]...)
		t.logger.Info("task.cancelled", "task_id", id)
		return true
	}
	return false
}

func snapshot(pt *PendingTask) Snapshot {
	s := Snapshot{
		ID:      pt.ID,
		Name:    pt.Handle.Name(),
		Action:  pt.Action,
		Status:  pt.Handle.Status(),
		Created: pt.Created,
	}
	if result, err := pt.Handle.Result(); err == nil {
		s.Result = result
	} else if err != ErrPending {
		s.Error = err.Error()
	}
	return s
}
