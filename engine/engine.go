package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/hupe1980/dexter/code"
	"github.com/hupe1980/dexter/core"
	"github.com/hupe1980/dexter/history"
	"github.com/hupe1980/dexter/logging"
	"github.com/hupe1980/dexter/model"
	"github.com/hupe1980/dexter/prompt"
	"github.com/hupe1980/dexter/task"
)

// ErrMaxActionSteps is returned when a submission chains more completions
// than Options.MaxActionSteps allows. Every pair up to the limit is persisted.
var ErrMaxActionSteps = errors.New("engine: maximum action steps exceeded")

// TimestampLayout formats the prefix added to user messages in timestamp mode.
const TimestampLayout = "02/01/2006 15:04:05"

// DefaultMaxActionSteps caps the completions of one submission.
const DefaultMaxActionSteps = 25

// RetryOptions configures retries of failed completion calls. Every error is
// retried with exponential backoff starting at MinWait and capped at MaxWait.
type RetryOptions struct {
	MaxAttempts int
	MinWait     time.Duration
	MaxWait     time.Duration
}

// DefaultRetry makes up to four attempts waiting 1s, 2s and 4s in between.
var DefaultRetry = RetryOptions{
	MaxAttempts: 4,
	MinWait:     time.Second,
	MaxWait:     10 * time.Second,
}

// CompletionOptions are the sampling parameters sent with every request.
type CompletionOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// DefaultCompletion matches the parameters the assistant was tuned with.
var DefaultCompletion = CompletionOptions{
	Temperature: 0.7,
	MaxTokens:   4000,
	TopP:        0.9,
}

// PromptBuilder renders the system prompt. *prompt.Builder implements it.
type PromptBuilder interface {
	Build(ctx context.Context) (string, error)
}

// Options configures an Engine.
type Options struct {
	Completion CompletionOptions
	Retry      RetryOptions

	// Executor runs extracted actions. Defaults to a YaegiExecutor without
	// capabilities.
	Executor  code.Executor
	Extractor *code.Extractor
	Tracker   *task.Tracker
	Prompt    PromptBuilder

	// TimestampMode prefixes user messages with the local time.
	TimestampMode  bool
	MaxActionSteps int

	// IsolateConversations resets the executor whenever a new conversation
	// starts or a session is loaded, so actions of one conversation cannot
	// observe variables defined by another.
	IsolateConversations bool

	Callbacks *CallbackManager
	Now       func() time.Time
	Logger    logging.Logger
}

// Reply is the outcome of one submission.
type Reply struct {
	// Text is the raw text of the latest model response.
	Text string
	// Speech is Text with every fenced action removed.
	Speech string
	// PendingTasks lists the background tasks dispatched by the last action.
	PendingTasks []string
	// Steps counts the completions made during the submission.
	Steps int
}

// Engine orchestrates one active conversation: it calls the model, executes
// the actions found in its responses, feeds execution results back as new
// input and persists every completed user/assistant pair.
//
// Submissions are serialized. Accessors are safe to call concurrently with a
// running submission and observe the state as of the last persisted pair.
type Engine struct {
	llm     model.Model
	store   *history.Store
	opts    Options
	logger  logging.Logger
	tracker *task.Tracker

	runMu sync.Mutex
	state atomic.Int32

	mu            sync.RWMutex
	conv          core.Conversation
	convID        string
	loaded        bool
	newConv       bool
	sessionTag    string
	promptFixed   bool
	fixedPrompt   *string
	timestampMode bool
	lastReply     *Reply
}

// New creates an Engine backed by llm and store.
func New(llm model.Model, store *history.Store, optFns ...func(o *Options)) (*Engine, error) {
	if llm == nil {
		return nil, errors.New("engine: model is required")
	}
	if store == nil {
		return nil, errors.New("engine: history store is required")
	}

	opts := Options{
		Completion:     DefaultCompletion,
		Retry:          DefaultRetry,
		TimestampMode:  true,
		MaxActionSteps: DefaultMaxActionSteps,
		Now:            time.Now,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 1
	}
	if opts.Retry.MinWait <= 0 {
		opts.Retry.MinWait = time.Millisecond
	}
	if opts.MaxActionSteps <= 0 {
		opts.MaxActionSteps = DefaultMaxActionSteps
	}
	if opts.Extractor == nil {
		opts.Extractor = code.NewExtractor()
	}
	if opts.Tracker == nil {
		opts.Tracker = task.NewTracker(opts.Logger)
	}
	if opts.Prompt == nil {
		opts.Prompt = prompt.NewBuilder()
	}
	if opts.Executor == nil {
		x, err := code.NewYaegiExecutor(func(o *code.YaegiOptions) { o.Logger = opts.Logger })
		if err != nil {
			return nil, fmt.Errorf("engine: create executor: %w", err)
		}
		opts.Executor = x
	}

	return &Engine{
		llm:           llm,
		store:         store,
		opts:          opts,
		logger:        opts.Logger,
		tracker:       opts.Tracker,
		timestampMode: opts.TimestampMode,
	}, nil
}

// SubmitUserMessage runs one interaction. The model is called with the
// conversation plus text (and attachment); while its responses contain code
// actions they are executed and the execution result becomes the next input.
// The interaction ends when a response has no action, or when an action
// dispatches background tasks. In the former case finished background tasks
// are reconciled, which may continue the interaction with their results.
// A plain answer at the MaxActionSteps limit ends the interaction without
// reconciling.
func (e *Engine) SubmitUserMessage(ctx context.Context, text string, attachment *core.Attachment) (*Reply, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	defer e.setState(StateIdle)

	conv, convID, err := e.prepareConversation()
	if err != nil {
		return nil, e.fail(ctx, convID, 0, err)
	}

	systemPrompt, err := e.resolveSystemPrompt(ctx)
	if err != nil {
		return nil, e.fail(ctx, convID, 0, err)
	}

	input := text
	if e.TimestampMode() {
		input = "[" + e.opts.Now().Format(TimestampLayout) + "] " + text
	}

	reply := &Reply{}
	for step := 1; ; step++ {
		conv = conv.SetSystem(systemPrompt)

		userTurn := core.UserTurn(input)
		if attachment != nil {
			userTurn.Content = core.NewPartsContent(core.TextPart{Text: input}, attachment.Part())
		}

		e.setState(StateAwaitingCompletion)
		resp, err := e.complete(ctx, convID, step, append(conv.Clone(), userTurn))
		if err != nil {
			return nil, e.fail(ctx, convID, step, err)
		}

		ext := e.opts.Extractor.Extract(resp.Text)
		reply.Text = resp.Text
		reply.Speech = resp.Text
		reply.Steps = step
		if ext != nil {
			reply.Speech = ext.Strip()
		}

		conv = append(conv, core.UserTurn(input), core.AssistantTurn(resp.Text))
		if err := e.persist(convID, conv, systemPrompt); err != nil {
			return nil, e.fail(ctx, convID, step, err)
		}
		e.setLastReply(reply)

		if ext != nil {
			e.setState(StateExecutingAction)
			res, err := e.execute(ctx, convID, step, ext.Action)
			if err != nil {
				return nil, e.fail(ctx, convID, step, err)
			}
			if res.IsPending() {
				e.setState(StateFinalizing)
				for _, h := range res.Pending {
					e.tracker.Register(task.NewPendingTask(h, ext.Action))
					reply.PendingTasks = append(reply.PendingTasks, h.ID())
				}
				e.setLastReply(reply)
				e.logger.Info("engine.tasks.registered", "conversation_id", convID, "count", len(res.Pending))
				return reply, nil
			}
			input = res.Text
		} else {
			e.setState(StateFinalizing)
			if step >= e.opts.MaxActionSteps {
				// No step left to convey results; they stay pending for the next submission.
				if n := e.tracker.Pending(); n > 0 {
					e.logger.Info("engine.tasks.deferred", "conversation_id", convID, "pending", n)
				}
				return reply, nil
			}
			msg, ok := e.tracker.ReconcileCompleted()
			if !ok {
				return reply, nil
			}
			e.logger.Info("engine.tasks.reconciled", "conversation_id", convID)
			e.after(ctx, CallbackOnTaskReconciled, &CallbackContext{ConversationID: convID, Step: step, Message: msg})
			input = msg
		}

		attachment = nil
		if step >= e.opts.MaxActionSteps {
			return nil, e.fail(ctx, convID, step, ErrMaxActionSteps)
		}
	}
}

// prepareConversation returns the conversation to extend, starting a new one
// or resuming the most recent one as needed.
func (e *Engine) prepareConversation() (core.Conversation, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.newConv:
		id, err := e.store.NewConversation()
		if err != nil {
			return nil, "", fmt.Errorf("engine: start conversation: %w", err)
		}
		e.logger.Info("engine.conversation.new", "conversation_id", id)
		e.conv, e.convID, e.loaded, e.newConv = core.NewConversation(), id, true, false
		if e.opts.IsolateConversations {
			if err := e.opts.Executor.Reset(); err != nil {
				return nil, id, fmt.Errorf("engine: reset executor: %w", err)
			}
		}
	case !e.loaded:
		id, err := e.store.CurrentConversationID()
		if err != nil {
			return nil, "", fmt.Errorf("engine: resolve conversation: %w", err)
		}
		e.logger.Info("engine.conversation.resume", "conversation_id", id)
		e.conv, e.convID, e.loaded = e.store.Load(id), id, true
	}
	return e.conv.Clone(), e.convID, nil
}

func (e *Engine) resolveSystemPrompt(ctx context.Context) (*string, error) {
	e.mu.RLock()
	fixed, p := e.promptFixed, e.fixedPrompt
	e.mu.RUnlock()
	if fixed {
		return p, nil
	}
	built, err := e.opts.Prompt.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: build system prompt: %w", err)
	}
	return &built, nil
}

func (e *Engine) complete(ctx context.Context, convID string, step int, messages core.Conversation) (*model.Response, error) {
	req := model.Request{
		Model:       e.opts.Completion.Model,
		Messages:    messages,
		Temperature: e.opts.Completion.Temperature,
		MaxTokens:   e.opts.Completion.MaxTokens,
		TopP:        e.opts.Completion.TopP,
	}
	if err := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackBeforeModel, &CallbackContext{
		ConversationID: convID, Step: step, Request: &req,
	}); err != nil {
		return nil, err
	}

	backoff := retry.NewExponential(e.opts.Retry.MinWait)
	if e.opts.Retry.MaxWait > 0 {
		backoff = retry.WithCappedDuration(e.opts.Retry.MaxWait, backoff)
	}
	backoff = retry.WithMaxRetries(uint64(e.opts.Retry.MaxAttempts-1), backoff)

	var (
		resp    *model.Response
		lastErr error
		attempt int
	)
	start := time.Now()
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		r, err := e.llm.Complete(ctx, req)
		if err != nil {
			lastErr = err
			e.logger.Warn("engine.completion.attempt_failed",
				"conversation_id", convID,
				"attempt", attempt,
				"max_attempts", e.opts.Retry.MaxAttempts,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		resp = r
		return nil
	})
	if err != nil {
		if lastErr == nil || ctx.Err() != nil {
			err = fmt.Errorf("engine: completion aborted: %w", err)
		} else {
			err = fmt.Errorf("engine: completion failed after %d attempts: %w", attempt, lastErr)
		}
	}

	e.after(ctx, CallbackAfterModel, &CallbackContext{
		ConversationID: convID, Step: step, Request: &req, Response: resp, Err: err,
	})

	log := e.scopedLogger(convID)
	if cl, ok := log.(logging.CallLogger); ok {
		name := req.Model
		if name == "" {
			name = e.llm.Info().Name
		}
		tokens := 0
		if resp != nil && resp.Usage != nil {
			tokens = resp.Usage.TotalTokens
		}
		cl.LogLLMCall(name, tokens, time.Since(start), err == nil, err)
	}
	if err != nil {
		return nil, err
	}

	log.Info("engine.completion.done",
		"conversation_id", convID,
		"step", step,
		"attempts", attempt,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (e *Engine) execute(ctx context.Context, convID string, step int, action string) (code.Result, error) {
	if err := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackBeforeAction, &CallbackContext{
		ConversationID: convID, Step: step, Action: action,
	}); err != nil {
		return code.Result{}, err
	}

	log := e.scopedLogger(convID)
	log.Debug("engine.action.extracted", "conversation_id", convID, "step", step, "action", action)
	start := time.Now()
	res := e.opts.Executor.Execute(ctx, action)
	if cl, ok := log.(logging.CallLogger); ok {
		cl.LogActionExecution(len(res.Pending), time.Since(start), res.Err == nil, res.Err)
	} else {
		log.Info("engine.action.executed",
			"conversation_id", convID,
			"step", step,
			"pending", len(res.Pending),
			"success", res.Err == nil,
		)
	}

	e.after(ctx, CallbackAfterAction, &CallbackContext{
		ConversationID: convID, Step: step, Action: action, Result: &res, Err: res.Err,
	})
	return res, nil
}

// persist writes the conversation and mirrors its last pair into the active
// session.
func (e *Engine) persist(convID string, conv core.Conversation, systemPrompt *string) error {
	if err := e.store.Save(convID, conv); err != nil {
		return fmt.Errorf("engine: persist conversation: %w", err)
	}

	e.mu.Lock()
	e.conv = conv.Clone()
	tag := e.sessionTag
	e.mu.Unlock()

	if tag == "" {
		return nil
	}
	n := len(conv)
	if err := e.store.SaveToSession(tag, conv[n-2], conv[n-1], systemPrompt); err != nil {
		return fmt.Errorf("engine: mirror to session %q: %w", tag, err)
	}
	return nil
}

// scopedLogger binds the engine logger to the conversation and the active
// session tag.
func (e *Engine) scopedLogger(convID string) logging.Logger {
	return logging.Scoped(e.logger, "", e.SessionTag(), convID)
}

func (e *Engine) after(ctx context.Context, callbackType CallbackType, callbackCtx *CallbackContext) {
	if err := e.opts.Callbacks.ExecuteCallbacks(ctx, callbackType, callbackCtx); err != nil {
		e.logger.Warn("engine.callback.failed", "type", string(callbackType), "error", err)
	}
}

func (e *Engine) fail(ctx context.Context, convID string, step int, err error) error {
	e.logger.Error("engine.submit.failed", "conversation_id", convID, "step", step, "error", err)
	e.after(ctx, CallbackOnError, &CallbackContext{ConversationID: convID, Step: step, Err: err})
	return err
}

func (e *Engine) setState(s State) { e.state.Store(int32(s)) }

func (e *Engine) setLastReply(r *Reply) {
	cp := *r
	cp.PendingTasks = append([]string(nil), r.PendingTasks...)
	e.mu.Lock()
	e.lastReply = &cp
	e.mu.Unlock()
}

// State reports the current state of the submission state machine.
func (e *Engine) State() State { return State(e.state.Load()) }

// LastReply returns the reply of the latest completed step, or nil.
func (e *Engine) LastReply() *Reply {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastReply == nil {
		return nil
	}
	cp := *e.lastReply
	return &cp
}

// Conversation returns a copy of the in-memory conversation.
func (e *Engine) Conversation() core.Conversation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.conv.Clone()
}

// ConversationID returns the id of the conversation being extended, or ""
// before the first submission.
func (e *Engine) ConversationID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.convID
}

// Tasks exposes the background task tracker.
func (e *Engine) Tasks() *task.Tracker { return e.tracker }

// Executor returns the action executor.
func (e *Engine) Executor() code.Executor { return e.opts.Executor }
