package dexter

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dexter/agent"
	"github.com/hupe1980/dexter/config"
	"github.com/hupe1980/dexter/logging"
	"github.com/hupe1980/dexter/model"
	"github.com/hupe1980/dexter/task"
	"github.com/hupe1980/dexter/tool"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.LLM.Provider = "mock"
	cfg.Storage.MemoryDir = filepath.Join(dir, "memory")
	cfg.Storage.SessionsDir = filepath.Join(dir, "memory", "sessions")
	cfg.Retry.MinWait = time.Millisecond
	cfg.Retry.MaxWait = 5 * time.Millisecond
	cfg.Engine.TimestampMode = false
	return cfg
}

func newTestDexter(t *testing.T, llm model.Model, optFns ...func(o *Options)) *Dexter {
	t.Helper()
	cfg := testConfig(t)
	d, err := New(context.Background(), append([]func(o *Options){func(o *Options) {
		o.Config = cfg
		o.Model = llm
		o.Logger = logging.NoOpLogger{}
	}}, optFns...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}

func TestNew_MockProvider(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(context.Background(), func(o *Options) {
		o.Config = cfg
		o.Logger = logging.NoOpLogger{}
	})
	require.NoError(t, err)
	defer func() { _ = d.Close(context.Background()) }()

	assert.Equal(t, "mock", d.Model().Info().Provider)

	reply, err := d.Submit(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hello", reply.Text)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agents.Workers = 0
	_, err := New(context.Background(), func(o *Options) { o.Config = cfg })
	require.Error(t, err)
}

func TestNewModel_UnknownProvider(t *testing.T) {
	_, err := NewModel(context.Background(), config.LLMConfig{Provider: "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestNewModel_Providers(t *testing.T) {
	m, err := NewModel(context.Background(), config.LLMConfig{Provider: "openai", Model: "gpt-4o", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, model.Info{Name: "gpt-4o", Provider: "openai"}, m.Info())

	m, err = NewModel(context.Background(), config.LLMConfig{Provider: "anthropic", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Info().Provider)
}

func TestDexter_ToolAction(t *testing.T) {
	weather := tool.NewFunctionTool(
		"get_weather",
		"Return the weather for a city.",
		[]tool.Param{{Name: "city", Type: "string", Description: "city name"}},
		func(_ context.Context, args map[string]any) (any, error) {
			return "sunny in " + args["city"].(string), nil
		},
	)

	llm := model.NewMockModel("test", "mock")
	llm.Script(
		"Let me check.\n```tool_code\nget_weather(\"Berlin\")\n```",
		"It is sunny in Berlin.",
	)
	d := newTestDexter(t, llm, func(o *Options) { o.Tools = []tool.Tool{weather} })

	reply, err := d.Submit(context.Background(), "weather in Berlin?", nil)
	require.NoError(t, err)
	assert.Equal(t, "It is sunny in Berlin.", reply.Text)
	assert.Equal(t, 2, reply.Steps)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Contains(t, last.Text(), "sunny in Berlin")
	assert.Contains(t, reqs[0].Messages[0].Text(), "get_weather")
}

func TestDexter_RegisterToolLate(t *testing.T) {
	llm := model.NewMockModel("test", "mock")
	llm.Script("```tool_code\nping()\n```", "done")
	d := newTestDexter(t, llm)

	require.NoError(t, d.RegisterTool(tool.NewFunctionTool("ping", "Reply pong.", nil,
		func(context.Context, map[string]any) (any, error) { return "pong", nil },
	)))

	_, err := d.Submit(context.Background(), "ping please", nil)
	require.NoError(t, err)
	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[1].Messages[len(reqs[1].Messages)-1].Text(), "pong")
}

func TestDexter_DispatchAgent(t *testing.T) {
	echo := agent.NewFuncAgent("Echo", "Echoes the task.",
		func(_ context.Context, taskText string, _ map[string]any) (string, error) {
			return "echo: " + taskText, nil
		})
	d := newTestDexter(t, model.NewMockModel("test", "mock"), func(o *Options) {
		o.Agents = []AgentRegistration{{Agent: echo}}
	})

	assert.Equal(t, []string{"echo"}, d.Agents().Names())

	h, err := d.DispatchAgent(context.Background(), "echo", "hi", nil)
	require.NoError(t, err)
	out, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out)

	snap, ok := d.Engine().Tasks().Status(h.ID())
	require.True(t, ok)
	assert.Equal(t, task.StatusCompleted, snap.Status)
}

func TestDexter_ConfiguredSystemPrompt(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.SystemPrompt = "You are terse."
	d, err := New(context.Background(), func(o *Options) {
		o.Config = cfg
		o.Logger = logging.NoOpLogger{}
	})
	require.NoError(t, err)
	defer func() { _ = d.Close(context.Background()) }()

	got, err := d.Engine().SystemPrompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "You are terse.", got)
}
