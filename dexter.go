// Package dexter provides a high-level façade that wires the conversation
// engine together from a Config: the completion service, the history store,
// the capability registry (tools and background agents), the persistent
// action interpreter and the system prompt builder. Most applications:
//  1. Load a config.Config (or start from config.Default())
//  2. Create a Dexter via New, passing tools, agents and optionally a model
//  3. Call Submit for every user turn
//
// All defaults are suitable for local use; the completion provider is chosen
// by cfg.LLM.Provider unless a Model is supplied.
package dexter

import (
	"context"
	"errors"
	"fmt"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/dexter/agent"
	"github.com/hupe1980/dexter/code"
	"github.com/hupe1980/dexter/config"
	"github.com/hupe1980/dexter/core"
	"github.com/hupe1980/dexter/engine"
	"github.com/hupe1980/dexter/history"
	"github.com/hupe1980/dexter/logging"
	"github.com/hupe1980/dexter/memory"
	"github.com/hupe1980/dexter/model"
	"github.com/hupe1980/dexter/model/anthropic"
	"github.com/hupe1980/dexter/model/gemini"
	"github.com/hupe1980/dexter/model/openai"
	"github.com/hupe1980/dexter/prompt"
	"github.com/hupe1980/dexter/task"
	"github.com/hupe1980/dexter/tool"
)

// AgentRegistration is a background agent together with the instruction
// prepended to its tasks.
type AgentRegistration struct {
	Agent       agent.Agent
	Instruction agent.Instruction
}

// Options configures a Dexter instance.
type Options struct {
	// Config defaults to config.Default().
	Config *config.Config

	// Model overrides the provider selected by Config.LLM.Provider.
	Model model.Model

	Tools  []tool.Tool
	Agents []AgentRegistration

	// Memory feeds the long-term memory section of the system prompt.
	// Defaults to an empty in-memory store.
	Memory core.MemoryStore

	Callbacks *engine.CallbackManager

	// Logger defaults to the backend selected by Config.Logging.
	Logger logging.Logger
}

// Dexter aggregates the engine and the services it depends on.
type Dexter struct {
	cfg      *config.Config
	llm      model.Model
	store    *history.Store
	pool     *task.Pool
	tools    *tool.Registry
	agents   *agent.Dispatcher
	memory   core.MemoryStore
	executor *code.YaegiExecutor
	prompt   *prompt.Builder
	engine   *engine.Engine
	logger   logging.Logger
}

// New builds a Dexter instance from the given options.
func New(ctx context.Context, optFns ...func(o *Options)) (*Dexter, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		l, err := logging.New(logging.Options{
			Backend: cfg.Logging.Backend,
			Level:   logging.ParseLevel(cfg.Logging.Level),
			Format:  cfg.Logging.Format,
		})
		if err != nil {
			return nil, err
		}
		logger = l
	}

	llm := opts.Model
	if llm == nil {
		m, err := NewModel(ctx, cfg.LLM)
		if err != nil {
			return nil, err
		}
		llm = m
	}

	store, err := history.New(func(o *history.Options) {
		o.MemoryDir = cfg.Storage.MemoryDir
		o.SessionsDir = cfg.Storage.SessionsDir
		o.Logger = logging.Scoped(logger, "history", "", "")
	})
	if err != nil {
		return nil, err
	}

	tools, err := tool.NewRegistry(opts.Tools...)
	if err != nil {
		return nil, err
	}

	pool := task.NewPool(func(o *task.PoolOptions) {
		o.Workers = cfg.Agents.Workers
		o.Logger = logging.Scoped(logger, "task", "", "")
	})
	agents := agent.NewDispatcher(pool, logging.Scoped(logger, "agent", "", ""))
	for _, reg := range opts.Agents {
		if err := agents.Register(reg.Agent, func(o *agent.RegisterOptions) {
			o.Instruction = reg.Instruction
		}); err != nil {
			_ = pool.Shutdown(ctx)
			return nil, err
		}
	}

	executor, err := code.NewYaegiExecutor(func(o *code.YaegiOptions) {
		o.Tools = tools
		o.Agents = agents
		o.Logger = logging.Scoped(logger, "code", "", "")
	})
	if err != nil {
		_ = pool.Shutdown(ctx)
		return nil, err
	}

	mem := opts.Memory
	if mem == nil {
		mem = memory.NewInMemoryStore()
	}
	builder := prompt.NewBuilder(func(o *prompt.Options) {
		o.Tools = tools
		o.Agents = agents
		o.Memory = mem
		o.Logger = logging.Scoped(logger, "prompt", "", "")
	})

	eng, err := engine.New(llm, store, func(o *engine.Options) {
		o.Completion = engine.CompletionOptions{
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			TopP:        cfg.LLM.TopP,
		}
		o.Retry = engine.RetryOptions{
			MaxAttempts: cfg.Retry.MaxAttempts,
			MinWait:     cfg.Retry.MinWait,
			MaxWait:     cfg.Retry.MaxWait,
		}
		o.Executor = executor
		o.Extractor = code.NewExtractor(cfg.Engine.FenceTags...)
		o.Tracker = task.NewTracker(logging.Scoped(logger, "task", "", ""))
		o.Prompt = builder
		o.TimestampMode = cfg.Engine.TimestampMode
		o.MaxActionSteps = cfg.Engine.MaxActionSteps
		o.IsolateConversations = cfg.Engine.IsolateConversations
		o.Callbacks = opts.Callbacks
		o.Logger = logging.Scoped(logger, "engine", "", "")
	})
	if err != nil {
		_ = pool.Shutdown(ctx)
		return nil, err
	}
	if cfg.Engine.SystemPrompt != "" {
		eng.SetSystemPrompt(cfg.Engine.SystemPrompt)
	}

	logger.Info("dexter.ready",
		"provider", llm.Info().Provider,
		"model", llm.Info().Name,
		"tools", len(tools.List()),
		"agents", len(agents.Names()),
	)

	return &Dexter{
		cfg:      cfg,
		llm:      llm,
		store:    store,
		pool:     pool,
		tools:    tools,
		agents:   agents,
		memory:   mem,
		executor: executor,
		prompt:   builder,
		engine:   eng,
		logger:   logger,
	}, nil
}

// NewModel creates the completion service selected by cfg.Provider.
func NewModel(ctx context.Context, cfg config.LLMConfig) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.Temperature = cfg.Temperature
			o.TopP = cfg.TopP
			o.MaxCompletionTokens = int64(cfg.MaxTokens)
			o.APIKey = cfg.APIKey
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
			o.Temperature = cfg.Temperature
			o.TopP = cfg.TopP
			o.MaxTokens = int64(cfg.MaxTokens)
			o.APIKey = cfg.APIKey
		}), nil
	case "gemini":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		return gemini.NewModel(ctx, func(o *gemini.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.Temperature = cfg.Temperature
			o.TopP = cfg.TopP
			o.MaxTokens = cfg.MaxTokens
			o.APIKey = apiKey
		})
	case "mock":
		return model.NewMockModel(cfg.Model, "mock"), nil
	default:
		return nil, fmt.Errorf("dexter: unknown llm provider %q", cfg.Provider)
	}
}

// Submit sends one user turn through the engine.
func (d *Dexter) Submit(ctx context.Context, text string, attachment *core.Attachment) (*engine.Reply, error) {
	return d.engine.SubmitUserMessage(ctx, text, attachment)
}

// RegisterTool adds a tool after construction. The interpreter is rebuilt to
// bind it, which discards every variable defined by earlier actions.
func (d *Dexter) RegisterTool(t tool.Tool) error {
	if err := d.tools.Register(t); err != nil {
		return err
	}
	return d.executor.Reset()
}

// RegisterAgent adds a background agent after construction. Like
// RegisterTool it rebuilds the interpreter.
func (d *Dexter) RegisterAgent(a agent.Agent, instruction agent.Instruction) error {
	if err := d.agents.Register(a, func(o *agent.RegisterOptions) { o.Instruction = instruction }); err != nil {
		return err
	}
	return d.executor.Reset()
}

// DispatchAgent starts a background agent directly, bypassing the model, and
// tracks it like an agent started by an action.
func (d *Dexter) DispatchAgent(ctx context.Context, name, taskText string, additionalArgs map[string]any) (*task.Handle, error) {
	h, err := d.agents.Dispatch(ctx, name, taskText, additionalArgs)
	if err != nil {
		return nil, err
	}
	d.engine.Tasks().Register(task.NewPendingTask(h, ""))
	return h, nil
}

// Engine returns the underlying orchestrator.
func (d *Dexter) Engine() *engine.Engine { return d.engine }

// Model returns the completion service.
func (d *Dexter) Model() model.Model { return d.llm }

// Tools returns the tool registry.
func (d *Dexter) Tools() *tool.Registry { return d.tools }

// Agents returns the agent dispatcher.
func (d *Dexter) Agents() *agent.Dispatcher { return d.agents }

// Memory returns the long-term memory store.
func (d *Dexter) Memory() core.MemoryStore { return d.memory }

// History returns the conversation and session store.
func (d *Dexter) History() *history.Store { return d.store }

// Config returns the effective configuration.
func (d *Dexter) Config() *config.Config { return d.cfg }

// Close waits for running background agents to finish or for ctx to end,
// whichever comes first.
func (d *Dexter) Close(ctx context.Context) error {
	err := d.pool.Shutdown(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		d.logger.Warn("dexter.close.interrupted", "error", err)
	}
	return err
}
