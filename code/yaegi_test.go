package code

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dexter/agent"
	"github.com/hupe1980/dexter/task"
	"github.com/hupe1980/dexter/tool"
)

func newTestExecutor(t *testing.T, optFns ...func(o *YaegiOptions)) *YaegiExecutor {
	t.Helper()
	e, err := NewYaegiExecutor(optFns...)
	require.NoError(t, err)
	return e
}

func TestYaegiExecutor_PersistsState(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	res := e.Execute(ctx, "x := 20")
	require.NoError(t, res.Err)
	assert.False(t, res.IsPending())

	res = e.Execute(ctx, "x * 2 + 2")
	require.NoError(t, res.Err)
	assert.Equal(t, ResultPrefix+"42", res.Text)
}

func TestYaegiExecutor_CapturesOutput(t *testing.T) {
	e := newTestExecutor(t)

	res := e.Execute(context.Background(), "import \"fmt\"\nfmt.Println(\"hello\")\nfmt.Println(\"world\")")
	require.NoError(t, res.Err)
	assert.Equal(t, ResultPrefix+"hello\nworld", res.Text)

	res = e.Execute(context.Background(), "1 + 1")
	require.NoError(t, res.Err)
	assert.Equal(t, ResultPrefix+"2", res.Text)
}

func TestYaegiExecutor_CallsTools(t *testing.T) {
	var got map[string]any
	search := tool.NewFunctionTool("web_search", "Searches the web.", []tool.Param{
		{Name: "query", Type: "string"},
		{Name: "limit", Type: "integer", Optional: true},
	}, func(_ context.Context, args map[string]any) (any, error) {
		got = args
		return "sunny", nil
	})
	reg, err := tool.NewRegistry(search)
	require.NoError(t, err)

	e := newTestExecutor(t, func(o *YaegiOptions) { o.Tools = reg })

	res := e.Execute(context.Background(), `web_search("weather", 0)`)
	require.NoError(t, res.Err)
	assert.Equal(t, ResultPrefix+"sunny", res.Text)
	assert.Equal(t, map[string]any{"query": "weather"}, got)

	res = e.Execute(context.Background(), `web_search("weather", 3)`)
	require.NoError(t, res.Err)
	assert.Equal(t, map[string]any{"query": "weather", "limit": 3}, got)
}

func TestYaegiExecutor_ToolErrorAbortsAction(t *testing.T) {
	failing := tool.NewFunctionTool("fail", "Always fails.", nil,
		func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("boom from tool")
		})
	reg, err := tool.NewRegistry(failing)
	require.NoError(t, err)

	e := newTestExecutor(t, func(o *YaegiOptions) { o.Tools = reg })

	res := e.Execute(context.Background(), "fail()")
	require.Error(t, res.Err)
	assert.Contains(t, res.Text, ResultPrefix)
	assert.Contains(t, res.Text, "boom from tool")
}

func TestYaegiExecutor_DispatchesAgents(t *testing.T) {
	pool := task.NewPool()
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	d := agent.NewDispatcher(pool, nil)
	require.NoError(t, d.Register(agent.NewFuncAgent("youtube_agent", "Watches videos.",
		func(_ context.Context, taskText string, args map[string]any) (string, error) {
			return "summary of " + taskText + " " + args["url"].(string), nil
		})))

	e := newTestExecutor(t, func(o *YaegiOptions) { o.Agents = d })

	res := e.Execute(context.Background(), `id := youtube_agent("summarize", map[string]interface{}{"url": "u"})`)
	require.NoError(t, res.Err)
	require.True(t, res.IsPending())
	require.Len(t, res.Pending, 1)
	assert.Empty(t, res.Text)

	out, err := res.Pending[0].Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "summary of summarize u", out)

	id := res.Pending[0].ID()
	res = e.Execute(context.Background(), "id")
	require.NoError(t, res.Err)
	assert.Equal(t, ResultPrefix+id, res.Text)
}

func TestYaegiExecutor_ForbiddenImport(t *testing.T) {
	e := newTestExecutor(t)

	res := e.Execute(context.Background(), "import \"os\"\nos.Exit(1)")
	require.Error(t, res.Err)
	assert.Contains(t, res.Text, "forbidden imports")
	assert.Contains(t, res.Text, "os")
}

func TestYaegiExecutor_Errors(t *testing.T) {
	e := newTestExecutor(t)

	t.Run("undefined", func(t *testing.T) {
		res := e.Execute(context.Background(), "undefinedThing + 1")
		require.Error(t, res.Err)
		assert.Contains(t, res.Text, ResultPrefix)
	})

	t.Run("panic", func(t *testing.T) {
		res := e.Execute(context.Background(), `panic("kaboom")`)
		require.Error(t, res.Err)
		assert.Contains(t, res.Text, "kaboom")
	})

	t.Run("recovers afterwards", func(t *testing.T) {
		res := e.Execute(context.Background(), "3 * 3")
		require.NoError(t, res.Err)
		assert.Equal(t, ResultPrefix+"9", res.Text)
	})
}

func TestYaegiExecutor_Reset(t *testing.T) {
	e := newTestExecutor(t)

	require.NoError(t, e.Execute(context.Background(), "secret := 1").Err)
	require.NoError(t, e.Reset())

	res := e.Execute(context.Background(), "secret")
	assert.Error(t, res.Err)
}

func TestYaegiExecutor_ContextDeadline(t *testing.T) {
	wait := tool.NewFunctionTool("wait", "Blocks until cancelled.", nil,
		func(ctx context.Context, _ map[string]any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	reg, err := tool.NewRegistry(wait)
	require.NoError(t, err)

	e := newTestExecutor(t, func(o *YaegiOptions) { o.Tools = reg })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := e.Execute(ctx, "wait()")
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "deadline exceeded")
}

func TestYaegiExecutor_AbandonedRunDoesNotLeakOutput(t *testing.T) {
	release := make(chan struct{})
	returned := make(chan struct{})
	block := tool.NewFunctionTool("block", "Blocks until released.", nil,
		func(context.Context, map[string]any) (any, error) {
			<-release
			close(returned)
			return "late", nil
		})
	ping := tool.NewFunctionTool("ping", "Replies pong.", nil,
		func(context.Context, map[string]any) (any, error) { return "pong", nil })
	reg, err := tool.NewRegistry(block, ping)
	require.NoError(t, err)

	e := newTestExecutor(t, func(o *YaegiOptions) { o.Tools = reg })
	require.NoError(t, e.Execute(context.Background(), "kept := 1").Err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := e.Execute(ctx, "import \"fmt\"\nfmt.Println(block())")
	require.Error(t, res.Err)

	close(release)
	<-returned
	time.Sleep(20 * time.Millisecond)

	res = e.Execute(context.Background(), "import \"fmt\"\nfmt.Println(\"fresh\")")
	require.NoError(t, res.Err)
	assert.Equal(t, ResultPrefix+"fresh", res.Text)

	res = e.Execute(context.Background(), "ping()")
	require.NoError(t, res.Err)
	assert.Equal(t, ResultPrefix+"pong", res.Text)

	assert.Error(t, e.Execute(context.Background(), "kept").Err)
}
