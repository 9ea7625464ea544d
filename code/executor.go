package code

import (
	"context"

	"github.com/hupe1980/dexter/task"
)

// ResultPrefix starts the text fed back to the model after an execution.
const ResultPrefix = "Code execution results: "

// Result is the outcome of executing one action.
type Result struct {
	// Text is the synthetic user message describing the outcome. It is empty
	// for pending results.
	Text string
	// Pending holds every background task the action dispatched.
	Pending []*task.Handle
	// Err is the failure rendered into Text, if any. It is informational:
	// failures are fed back to the model, not returned to the caller.
	Err error
}

// IsPending reports whether the action dispatched background work.
func (r Result) IsPending() bool { return len(r.Pending) > 0 }

// Executor runs code actions. Implementations never return errors: every
// failure is described in Result.
type Executor interface {
	Execute(ctx context.Context, action string) Result
	// Reset discards all state accumulated by previous actions.
	Reset() error
}

// Dispatcher starts background agents on behalf of actions.
type Dispatcher interface {
	Names() []string
	Dispatch(ctx context.Context, name, task string, additionalArgs map[string]any) (*task.Handle, error)
}
