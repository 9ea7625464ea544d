package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dexter/core"
	"github.com/hupe1980/dexter/model"
)

func TestBuildParams(t *testing.T) {
	m := NewModelFromClient(nil)
	prompt := "You are Dexter."

	p := m.buildParams(model.Request{Messages: []core.Turn{
		core.SystemTurn(&prompt),
		core.UserTurn("hi"),
		core.AssistantTurn("hello"),
		{Role: core.RoleUser, Content: core.NewPartsContent(
			core.TextPart{Text: "what is this"},
			core.Attachment{Data: "AAAA"}.Part(),
			core.Attachment{Data: "BBBB", Kind: core.AttachmentVideo}.Part(),
		)},
	}})

	require.Len(t, p.System, 1)
	assert.Equal(t, "You are Dexter.", p.System[0].Text)
	assert.Equal(t, int64(4000), p.MaxTokens)
	assert.Equal(t, 0.7, p.Temperature.Value)
	assert.Equal(t, 0.9, p.TopP.Value)

	require.Len(t, p.Messages, 3)
	last := p.Messages[2].Content
	require.Len(t, last, 3)
	require.NotNil(t, last[1].OfImage)
	require.NotNil(t, last[2].OfText)
	assert.Equal(t, "[unsupported attachment: video/mp4]", last[2].OfText.Text)
}

func TestBuildParams_NullSystemSkipped(t *testing.T) {
	m := NewModelFromClient(nil)
	p := m.buildParams(model.Request{Messages: []core.Turn{core.SystemTurn(nil), core.UserTurn("hi")}})
	assert.Empty(t, p.System)
	assert.Len(t, p.Messages, 1)
}
