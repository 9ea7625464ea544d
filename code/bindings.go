package code

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/hupe1980/dexter/internal/util"
	"github.com/hupe1980/dexter/tool"
)

var (
	anyType    = reflect.TypeOf((*any)(nil)).Elem()
	stringType = reflect.TypeOf("")
	argsType   = reflect.TypeOf(map[string]any(nil))
)

// bindings builds the capabilities package exports. It returns the exported
// symbols together with the model-facing names to alias at top level.
func (e *YaegiExecutor) bindings() (map[string]reflect.Value, []string) {
	symbols := make(map[string]reflect.Value)
	var names []string

	for _, t := range e.opts.Tools.List() {
		symbols[tool.ExportName(t.Name())] = e.toolBinding(t)
		names = append(names, t.Name())
	}

	if e.opts.Agents != nil {
		agents := e.opts.Agents.Names()
		sort.Strings(agents)
		for _, name := range agents {
			export := tool.ExportName(name)
			if _, taken := symbols[export]; taken {
				e.opts.Logger.Warn("code.bind.collision", "name", name)
				continue
			}
			symbols[export] = e.agentBinding(name)
			names = append(names, name)
		}
	}
	return symbols, names
}

// toolBinding wraps t as a typed function. Optional parameters passed as
// their zero value are treated as unset. Failures panic with *tool.Error so
// they abort the action and surface as its error.
func (e *YaegiExecutor) toolBinding(t tool.Tool) reflect.Value {
	params := t.Params()
	in := make([]reflect.Type, len(params))
	for i, p := range params {
		in[i] = util.GoType(p.Type)
	}
	fnType := reflect.FuncOf(in, []reflect.Type{anyType}, false)

	return reflect.MakeFunc(fnType, func(argv []reflect.Value) []reflect.Value {
		args := make(map[string]any, len(params))
		for i, p := range params {
			v := argv[i]
			if p.Optional && v.IsZero() {
				continue
			}
			args[p.Name] = v.Interface()
		}

		e.opts.Logger.Debug("code.tool.call", "tool", t.Name())
		out, err := t.Call(e.ctx(), args)
		if err != nil {
			panic(asToolError(t.Name(), err))
		}

		ret := reflect.New(anyType).Elem()
		if out != nil {
			ret.Set(reflect.ValueOf(out))
		}
		return []reflect.Value{ret}
	})
}

// agentBinding wraps a dispatcher entry. The call returns the task id
// immediately; the handle is attached to the running action.
func (e *YaegiExecutor) agentBinding(name string) reflect.Value {
	fnType := reflect.FuncOf([]reflect.Type{stringType, argsType}, []reflect.Type{stringType}, false)

	return reflect.MakeFunc(fnType, func(argv []reflect.Value) []reflect.Value {
		taskText := argv[0].String()
		var extra map[string]any
		if !argv[1].IsNil() {
			extra = argv[1].Interface().(map[string]any)
		}

		h, err := e.opts.Agents.Dispatch(e.ctx(), name, taskText, extra)
		if err != nil {
			panic(tool.NewError(name, err.Error(), tool.CodeExecution))
		}
		if x := e.current.Load(); x != nil {
			x.addHandle(h)
		}
		e.opts.Logger.Info("code.agent.dispatched", "agent", name, "task_id", h.ID())
		return []reflect.Value{reflect.ValueOf(h.ID())}
	})
}

func (e *YaegiExecutor) ctx() context.Context {
	if x := e.current.Load(); x != nil {
		return x.ctx
	}
	return context.Background()
}

func asToolError(name string, err error) *tool.Error {
	var te *tool.Error
	if errors.As(err, &te) {
		return te
	}
	return tool.NewError(name, fmt.Sprint(err), tool.CodeExecution)
}
