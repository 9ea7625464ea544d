package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/dexter/core"
	"github.com/hupe1980/dexter/logging"
	"github.com/hupe1980/dexter/model"
)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Description string
	Instruction Instruction // system prompt of the agent
	Model       string
	Temperature float64
	MaxTokens   int
	TopP        float64
	Logger      logging.Logger
}

// ModelAgent answers its task with a single completion of a language model.
// The additional arguments, if any, are appended to the task as JSON context.
//
// ModelAgent embeds BaseAgent to inherit the agent identity helpers.
type ModelAgent struct {
	BaseAgent
	llm  model.Model
	opts ModelAgentOptions
}

// NewModelAgent creates a new model-based agent.
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction: NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		Temperature: 0.7,
		MaxTokens:   4000,
		TopP:        0.9,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	a := &ModelAgent{
		BaseAgent: NewBaseAgent(name),
		llm:       llm,
		opts:      opts,
	}
	if opts.Description != "" {
		a.SetDescription(opts.Description)
	}
	return a
}

// Run implements Agent.
func (a *ModelAgent) Run(ctx context.Context, task string, additionalArgs map[string]any) (string, error) {
	system, err := a.opts.Instruction.Resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("agent %s: resolve instruction: %w", a.Name(), err)
	}

	input, err := composeInput(task, additionalArgs)
	if err != nil {
		return "", fmt.Errorf("agent %s: %w", a.Name(), err)
	}

	start := time.Now()
	resp, err := a.llm.Complete(ctx, model.Request{
		Model:       a.opts.Model,
		Messages:    []core.Turn{core.SystemTurn(&system), core.UserTurn(input)},
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
		TopP:        a.opts.TopP,
	})
	a.opts.Logger.Info("agent.model.complete",
		"agent", a.Name(),
		"duration_ms", time.Since(start).Milliseconds(),
		"success", err == nil,
	)
	if err != nil {
		return "", fmt.Errorf("agent %s: %w", a.Name(), err)
	}
	return resp.Text, nil
}

func composeInput(task string, additionalArgs map[string]any) (string, error) {
	if len(additionalArgs) == 0 {
		return task, nil
	}
	keys := make([]string, 0, len(additionalArgs))
	for k := range additionalArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(task)
	b.WriteString("\n\nYou have been provided with these additional arguments:")
	for _, k := range keys {
		v, err := json.Marshal(additionalArgs[k])
		if err != nil {
			return "", fmt.Errorf("encode argument %q: %w", k, err)
		}
		fmt.Fprintf(&b, "\n%s: %s", k, v)
	}
	return b.String(), nil
}
