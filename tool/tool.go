// Package tool implements the capability subsystem that lets the model invoke
// plain Go functions from its code actions, with validated positional
// arguments, consistent error handling and rendered signatures for the system
// prompt.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/dexter/internal/util"
)

// Error codes carried by *Error.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeExecution   = "EXECUTION_ERROR"
	CodeUnknownTool = "UNKNOWN_TOOL"
)

// Tool is a synchronous capability callable from code actions.
//
// Tool implementations should:
//   - Use a snake_case name that is a valid Go identifier
//   - Declare their parameters in call order
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the model-facing identifier (snake_case).
	Name() string

	// Description is rendered as the doc comment of the tool's signature.
	Description() string

	// Params returns the positional parameters in call order.
	Params() []Param

	// Call executes the tool with arguments keyed by parameter name.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Param describes one positional tool parameter.
type Param = util.ParamSpec

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error represents errors that occur during tool execution.
type Error struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewError creates a new Error with the specified details.
func NewError(tool, message, code string) *Error {
	return &Error{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
