package code

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/hupe1980/dexter/logging"
	"github.com/hupe1980/dexter/task"
	"github.com/hupe1980/dexter/tool"
)

// capabilitiesPath is the interpreter import path holding tool and agent bindings.
const capabilitiesPath = "capabilities"

// YaegiOptions configures a YaegiExecutor.
type YaegiOptions struct {
	// Tools are bound as func name(params...) any.
	Tools *tool.Registry
	// Agents are bound as func name(task string, additional_args map[string]any) string.
	Agents Dispatcher
	// AllowedPackages replaces DefaultAllowedPackages when non-empty.
	AllowedPackages []string
	Logger          logging.Logger
}

// YaegiExecutor executes actions in a persistent Yaegi interpreter.
//
// Variables, functions and imports defined by one action remain visible to
// every later action run by the same executor, including actions that belong
// to a different conversation. Call Reset to start from a clean namespace.
//
// Execute calls are serialized. An action abandoned because its context
// ended may keep running inside blocking tool calls; the interpreter is then
// rebuilt, so the abandoned run cannot write into later output, and the
// namespace starts empty again.
type YaegiExecutor struct {
	opts    YaegiOptions
	allowed map[string]bool

	mu     sync.Mutex
	interp *interp.Interpreter
	stdout *output

	current atomic.Pointer[execution]
}

// execution carries per-action state into the bindings.
type execution struct {
	ctx context.Context

	mu      sync.Mutex
	handles []*task.Handle
}

// output collects interpreter output. An abandoned run may still write to
// it after Execute returned.
type output struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (o *output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Write(p)
}

func (o *output) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

func (o *output) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf.Reset()
}

func (x *execution) addHandle(h *task.Handle) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.handles = append(x.handles, h)
}

func (x *execution) pending() []*task.Handle {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]*task.Handle(nil), x.handles...)
}

// NewYaegiExecutor creates an executor and binds all capabilities.
func NewYaegiExecutor(optFns ...func(o *YaegiOptions)) (*YaegiExecutor, error) {
	opts := YaegiOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if len(opts.AllowedPackages) == 0 {
		opts.AllowedPackages = DefaultAllowedPackages
	}

	e := &YaegiExecutor{opts: opts, allowed: make(map[string]bool)}
	for _, pkg := range opts.AllowedPackages {
		e.allowed[pkg] = true
	}
	e.allowed[capabilitiesPath] = true

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.init(); err != nil {
		return nil, err
	}
	return e, nil
}

// Reset replaces the interpreter, discarding every definition made by
// previous actions.
func (e *YaegiExecutor) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts.Logger.Info("code.executor.reset")
	return e.init()
}

func (e *YaegiExecutor) init() error {
	out := &output{}
	i := interp.New(interp.Options{Stdout: out, Stderr: out})

	if err := i.Use(e.stdlibSymbols()); err != nil {
		return fmt.Errorf("code: load stdlib: %w", err)
	}
	bindings, names := e.bindings()
	if err := i.Use(interp.Exports{capabilitiesPath + "/" + capabilitiesPath: bindings}); err != nil {
		return fmt.Errorf("code: load capabilities: %w", err)
	}

	if len(names) > 0 {
		var src strings.Builder
		fmt.Fprintf(&src, "import %q\n", capabilitiesPath)
		for _, name := range names {
			fmt.Fprintf(&src, "var %s = %s.%s\n", name, capabilitiesPath, tool.ExportName(name))
		}
		if _, err := i.Eval(src.String()); err != nil {
			return fmt.Errorf("code: bind capabilities: %w", err)
		}
	}

	e.interp, e.stdout = i, out
	return nil
}

func (e *YaegiExecutor) stdlibSymbols() interp.Exports {
	out := make(interp.Exports)
	for key, symbols := range stdlib.Symbols {
		idx := strings.LastIndex(key, "/")
		if idx < 0 {
			continue
		}
		if e.allowed[key[:idx]] {
			out[key] = symbols
		}
	}
	return out
}

// Execute runs action and describes its outcome.
func (e *YaegiExecutor) Execute(ctx context.Context, action string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	e.opts.Logger.Debug("code.execute.start", "action_len", len(action))

	if err := validateImports(action, e.allowed); err != nil {
		return e.finish(start, Result{Text: ResultPrefix + err.Error(), Err: err})
	}

	x := &execution{ctx: ctx}
	e.current.Store(x)
	defer e.current.Store(nil)
	e.stdout.Reset()

	v, err := e.eval(ctx, action)
	if err != nil && ctx.Err() != nil {
		e.opts.Logger.Warn("code.execute.abandoned", "error", ctx.Err())
		if rerr := e.init(); rerr != nil {
			e.opts.Logger.Error("code.executor.rebuild_failed", "error", rerr)
		}
	}
	if pending := x.pending(); len(pending) > 0 {
		return e.finish(start, Result{Pending: pending, Err: err})
	}
	if err != nil {
		return e.finish(start, Result{Text: ResultPrefix + err.Error(), Err: err})
	}
	return e.finish(start, Result{Text: ResultPrefix + e.render(v)})
}

func (e *YaegiExecutor) finish(start time.Time, res Result) Result {
	e.opts.Logger.Info("code.execute.finish",
		"duration_ms", time.Since(start).Milliseconds(),
		"pending", len(res.Pending),
		"success", res.Err == nil,
	)
	return res
}

func (e *YaegiExecutor) eval(ctx context.Context, action string) (v reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	v, err = e.interp.EvalWithContext(ctx, action)
	var p interp.Panic
	if errors.As(err, &p) {
		err = panicError(p.Value)
	}
	return v, err
}

// render prefers captured output over the value of the last expression.
func (e *YaegiExecutor) render(v reflect.Value) string {
	if out := strings.TrimRight(e.stdout.String(), "\n"); out != "" {
		return out
	}
	if !v.IsValid() || !v.CanInterface() {
		return "<nil>"
	}
	return fmt.Sprintf("%v", v.Interface())
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}
