package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dexter/task"
)

func newPool(t *testing.T) *task.Pool {
	t.Helper()
	p := task.NewPool()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func TestDispatcher_DispatchPrependsInstruction(t *testing.T) {
	m := new(MockAgent)
	m.On("Name").Return("YouTube Agent")
	m.On("Run", mock.Anything, "Today is: 2025-03-14.\n\nfind talks", map[string]any{"lang": "en"}).
		Return("3 videos", nil)

	d := NewDispatcher(newPool(t), nil)
	now := func() time.Time { return time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, d.Register(m, func(o *RegisterOptions) {
		o.Instruction = NewDatedInstruction("Today is: {{current_date}}.", now)
	}))
	assert.Equal(t, []string{"youtube_agent"}, d.Names())

	h, err := d.Dispatch(context.Background(), "youtube_agent", "find talks", map[string]any{"lang": "en"})
	require.NoError(t, err)
	assert.Equal(t, "youtube_agent", h.Name())

	res, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3 videos", res)
	m.AssertExpectations(t)
}

func TestDispatcher_NoInstruction(t *testing.T) {
	d := NewDispatcher(newPool(t), nil)
	require.NoError(t, d.Register(NewFuncAgent("echo", "", func(_ context.Context, task string, args map[string]any) (string, error) {
		if args != nil {
			return "", errors.New("unexpected args")
		}
		return task, nil
	})))

	h, err := d.Dispatch(context.Background(), "echo", "plain", nil)
	require.NoError(t, err)
	res, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "plain", res)
}

func TestDispatcher_Errors(t *testing.T) {
	d := NewDispatcher(newPool(t), nil)
	noop := func(context.Context, string, map[string]any) (string, error) { return "", nil }

	require.NoError(t, d.Register(NewFuncAgent("Report Agent", "", noop)))
	assert.Error(t, d.Register(NewFuncAgent("report agent", "", noop)))
	assert.Error(t, d.Register(NewFuncAgent("bad-name", "", noop)))

	_, err := d.Dispatch(context.Background(), "missing", "t", nil)
	assert.Error(t, err)

	_, ok := d.Get("report_agent")
	assert.True(t, ok)
}

func TestDispatcher_Signatures(t *testing.T) {
	d := NewDispatcher(newPool(t), nil)
	noop := func(context.Context, string, map[string]any) (string, error) { return "", nil }
	require.NoError(t, d.Register(NewFuncAgent("Report Agent", "Generates reports.", noop)))

	want := "// Generates reports.\n" +
		"//   task: detailed description of the task\n" +
		"//   additional_args: relevant variables or context, or nil\n" +
		"//   returns: the id of the background task; its result is reported later\n" +
		"func report_agent(task string, additional_args map[string]any) string"
	assert.Equal(t, want, d.Signatures())
}
