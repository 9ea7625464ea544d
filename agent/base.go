package agent

import (
	"context"
	"fmt"
	"strings"
)

// Agent is a long-running capability executed in the background. Run
// receives the full task (instruction prefix included) and optional
// additional arguments supplied by the code action.
type Agent interface {
	// Name returns the display name; ToolName derives the callable name.
	Name() string

	// Description is rendered as the doc comment of the agent's signature.
	Description() string

	// Run performs the task. It should honour ctx cancellation.
	Run(ctx context.Context, task string, additionalArgs map[string]any) (string, error)
}

// ToolName derives the model-facing name of an agent: spaces become
// underscores and the result is lowercased ("YouTube Agent" -> "youtube_agent").
func ToolName(displayName string) string {
	return strings.ToLower(strings.ReplaceAll(displayName, " ", "_"))
}

// BaseAgent bundles the identity of an agent. Embed it in concrete agent
// implementations and supply a Run method to satisfy Agent.
type BaseAgent struct {
	name        string // Human-readable name
	description string // Detailed description of agent's purpose
}

// NewBaseAgent constructs a BaseAgent with generated description (customizable via SetDescription).
func NewBaseAgent(name string) BaseAgent {
	return BaseAgent{
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
	}
}

// Name returns the human-readable name for this agent.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a detailed description of this agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }

// FuncAgent adapts a plain function into an Agent.
type FuncAgent struct {
	BaseAgent
	fn func(ctx context.Context, task string, additionalArgs map[string]any) (string, error)
}

// NewFuncAgent creates an agent backed by fn.
func NewFuncAgent(
	name, description string,
	fn func(ctx context.Context, task string, additionalArgs map[string]any) (string, error),
) *FuncAgent {
	a := &FuncAgent{BaseAgent: NewBaseAgent(name), fn: fn}
	if description != "" {
		a.SetDescription(description)
	}
	return a
}

// Run implements Agent.
func (a *FuncAgent) Run(ctx context.Context, task string, additionalArgs map[string]any) (string, error) {
	return a.fn(ctx, task, additionalArgs)
}
