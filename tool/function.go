package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/dexter/internal/util"
	"github.com/hupe1980/dexter/logging"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Responsibilities:
//   - Holds the ordered parameter list shown to the model
//   - Validates supplied arguments against it before execution
//   - Normalizes error handling so callers receive *Error with consistent codes:
//     VALIDATION_ERROR  -> argument mismatch
//     EXECUTION_ERROR   -> underlying function returned an error (non-*Error)
//     (custom codes preserved if the function returns *Error directly)
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	params      []Param
	returns     string
	fn          func(ctx context.Context, args map[string]any) (any, error)
	logger      logging.Logger
}

// FunctionToolOptions configures a FunctionTool.
type FunctionToolOptions struct {
	// Returns documents the result in the rendered signature.
	Returns string
	// Logger receives call tracing (defaults to NoOpLogger).
	Logger logging.Logger
}

// NewFunctionTool constructs a FunctionTool from explicit parameters and function.
//
// Example:
//
//	search := NewFunctionTool(
//	  "web_search",
//	  "Search the web and return the top results.",
//	  []Param{{Name: "query", Type: "string", Description: "search terms"}},
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return doSearch(ctx, args["query"].(string))
//	  },
//	)
func NewFunctionTool(
	name, description string,
	params []Param,
	fn func(ctx context.Context, args map[string]any) (any, error),
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool {
	opts := FunctionToolOptions{Logger: logging.NoOpLogger{}}
	for _, o := range optFns {
		o(&opts)
	}
	return &FunctionTool{
		name:        name,
		description: description,
		params:      params,
		returns:     opts.Returns,
		fn:          fn,
		logger:      opts.Logger,
	}
}

// NewFunctionToolFromStruct derives the parameter list from a struct using
// reflection; field order becomes call order.
//
// Example:
//
//	type SearchArgs struct {
//	  Query string `json:"query" description:"search terms"`
//	  Limit int    `json:"limit,omitempty" description:"max results"`
//	}
//
//	search := NewFunctionToolFromStruct("web_search", "Search the web.", SearchArgs{}, fn)
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(ctx context.Context, args map[string]any) (any, error),
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool {
	return NewFunctionTool(name, description, util.ParamsFromStruct(structType), fn, optFns...)
}

// Name returns the model-facing tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Params returns the positional parameters.
func (t *FunctionTool) Params() []Param { return t.params }

// Returns documents the result value ("" if undocumented).
func (t *FunctionTool) Returns() string { return t.returns }

// Call validates args then invokes the underlying function.
//
// Error Semantics:
//
//	*Error (returned directly)  -> forwarded unchanged
//	validation failure          -> *Error{Code: "VALIDATION_ERROR"}
//	other error                 -> *Error{Code: "EXECUTION_ERROR"}
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	start := time.Now()

	t.logger.Debug("tool.call.start", "tool", t.name)

	if err := util.ValidateParameters(args, t.params); err != nil {
		t.logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &Error{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		var toolErr *Error
		if errors.As(err, &toolErr) {
			t.logger.Error("tool.call.error", "tool", t.name, "error", toolErr.Message)

			return nil, toolErr
		}

		t.logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &Error{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
		}
	}

	t.logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
