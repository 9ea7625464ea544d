package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/dexter/code"
	"github.com/hupe1980/dexter/model"
)

// CallbackType defines the lifecycle points where callbacks run.
//
// Callbacks are executed synchronously on the goroutine driving
// SubmitUserMessage. An error returned from a Before* callback aborts the
// submission; errors from the other types are logged and ignored.
type CallbackType string

const (
	// CallbackBeforeModel runs before every completion request. Callbacks
	// may modify the request.
	CallbackBeforeModel CallbackType = "before_model"

	// CallbackAfterModel runs after every completion, successful or not.
	CallbackAfterModel CallbackType = "after_model"

	// CallbackBeforeAction runs before an extracted action is executed.
	CallbackBeforeAction CallbackType = "before_action"

	// CallbackAfterAction runs with the outcome of an executed action.
	CallbackAfterAction CallbackType = "after_action"

	// CallbackOnTaskReconciled runs when finished background tasks are
	// injected back into the conversation.
	CallbackOnTaskReconciled CallbackType = "on_task_reconciled"

	// CallbackOnError runs when a submission fails.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries the data relevant to one callback invocation.
// Only the fields matching the callback type are set.
type CallbackContext struct {
	CallbackType   CallbackType
	ConversationID string
	// Step is the 1-based completion number within the submission.
	Step int

	Request  *model.Request
	Response *model.Response
	Action   string
	Result   *code.Result
	// Message is the reconciliation text for CallbackOnTaskReconciled.
	Message string
	Err     error
}

// Callback is an engine lifecycle hook.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback adapts a function to the Callback interface.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a callback of the given type.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type implements Callback.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute implements Callback.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager dispatches callbacks by type in registration order.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks runs every callback of the given type and stops at the
// first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}
	return nil
}

// LoggingCallback writes a one-line summary of every invocation.
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a logging callback for callbackType.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type implements Callback.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute implements Callback.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}
	message := fmt.Sprintf("[%s] conversation=%s step=%d", c.callbackType, callbackCtx.ConversationID, callbackCtx.Step)
	switch {
	case callbackCtx.Err != nil:
		message += fmt.Sprintf(" error=%v", callbackCtx.Err)
	case callbackCtx.Action != "":
		message += fmt.Sprintf(" action_len=%d", len(callbackCtx.Action))
	case callbackCtx.Message != "":
		message += fmt.Sprintf(" message=%q", callbackCtx.Message)
	}
	c.logger(message)
	return nil
}
