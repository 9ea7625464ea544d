package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/dexter/logging"
	"github.com/hupe1980/dexter/task"
	"github.com/hupe1980/dexter/tool"
)

// RegisterOptions configures how an agent is dispatched.
type RegisterOptions struct {
	// Instruction is prepended to every task, separated by a blank line.
	Instruction Instruction
}

type registration struct {
	name        string
	agent       Agent
	instruction Instruction
}

// Dispatcher runs registered agents on a task.Pool. Registration happens at
// start-up; Dispatch is safe for concurrent use.
type Dispatcher struct {
	pool   *task.Pool
	logger logging.Logger

	mu     sync.RWMutex
	order  []*registration
	byName map[string]*registration
}

// NewDispatcher creates a dispatcher submitting to pool.
func NewDispatcher(pool *task.Pool, logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Dispatcher{
		pool:   pool,
		logger: logger,
		byName: make(map[string]*registration),
	}
}

// Register adds an agent under ToolName(a.Name()).
func (d *Dispatcher) Register(a Agent, optFns ...func(o *RegisterOptions)) error {
	var opts RegisterOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	name := ToolName(a.Name())
	if !tool.ValidName(name) {
		return fmt.Errorf("agent: %q does not yield a valid name (%q)", a.Name(), name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byName[name]; ok {
		return fmt.Errorf("agent: duplicate name %q", name)
	}
	r := &registration{name: name, agent: a, instruction: opts.Instruction}
	d.order = append(d.order, r)
	d.byName[name] = r
	return nil
}

// Names returns the callable agent names in registration order.
func (d *Dispatcher) Names() []string {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.order))
	for i, r := range d.order {
		names[i] = r.name
	}
	return names
}

// Get returns the agent registered under its callable name.
func (d *Dispatcher) Get(name string) (Agent, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.byName[name]
	if !ok {
		return nil, false
	}
	return r.agent, true
}

// Dispatch submits the named agent with the given task and returns its
// handle without waiting for the agent to run.
func (d *Dispatcher) Dispatch(ctx context.Context, name, taskText string, additionalArgs map[string]any) (*task.Handle, error) {
	d.mu.RLock()
	r, ok := d.byName[name]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("agent: unknown agent %q", name)
	}

	fullTask := taskText
	if !r.instruction.IsZero() {
		prefix, err := r.instruction.Resolve(ctx)
		if err != nil {
			return nil, fmt.Errorf("agent %s: resolve instruction: %w", name, err)
		}
		fullTask = prefix + "\n\n" + taskText
	}

	args := cloneArgs(additionalArgs)
	h := d.pool.Submit(name, func(jobCtx context.Context) (string, error) {
		return r.agent.Run(jobCtx, fullTask, args)
	})
	d.logger.Info("agent.dispatched", "agent", name, "task_id", h.ID(), "has_args", len(args) > 0)
	return h, nil
}

// Signature renders the Go declaration of one agent for the system prompt.
func Signature(name string, a Agent) string {
	return tool.RenderSignature(name, a.Description(), []tool.Param{
		{Name: "task", Type: "string", Description: "detailed description of the task"},
		{Name: "additional_args", Type: "object", Description: "relevant variables or context, or nil"},
	}, "string", "the id of the background task; its result is reported later")
}

// Signatures renders every registered agent separated by blank lines.
func (d *Dispatcher) Signatures() string {
	if d == nil {
		return ""
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	sigs := make([]string, len(d.order))
	for i, r := range d.order {
		sigs[i] = Signature(r.name, r.agent)
	}
	return strings.Join(sigs, "\n\n")
}

func cloneArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
