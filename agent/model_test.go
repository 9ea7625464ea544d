package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dexter/core"
	"github.com/hupe1980/dexter/model"
)

func TestModelAgent_Run(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.Script("the answer")

	a := NewModelAgent("Test Agent", llm, func(o *ModelAgentOptions) {
		o.Description = "A mock agent for testing purposes."
		o.Model = "mock-1"
	})
	assert.Equal(t, "A mock agent for testing purposes.", a.Description())

	out, err := a.Run(context.Background(), "summarize", map[string]any{"topic": "go", "n": 3})
	require.NoError(t, err)
	assert.Equal(t, "the answer", out)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "mock-1", reqs[0].Model)
	assert.Equal(t, 0.7, reqs[0].Temperature)
	require.Len(t, reqs[0].Messages, 2)
	assert.Equal(t, core.RoleSystem, reqs[0].Messages[0].Role)
	assert.Equal(t, "You are Test Agent, a helpful AI assistant.", reqs[0].Messages[0].Text())
	assert.Equal(t, "summarize\n\nYou have been provided with these additional arguments:\nn: 3\ntopic: \"go\"",
		reqs[0].Messages[1].Text())
}

func TestModelAgent_Error(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.Fail(errors.New("unavailable"))

	_, err := NewModelAgent("x", llm).Run(context.Background(), "t", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
}
