// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/dexter/core"
	"github.com/hupe1980/dexter/model"
)

// Options configures the Anthropic model adapter (temperature, top-p, model
// id, max tokens, API key). They act as defaults for request fields left at
// their zero value.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	TopP        float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		TopP:        0.9,
		MaxTokens:   4000,
	}
}

// NewModel creates a new Anthropic model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

// Complete implements model.Model.
func (m *Model) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	params := m.buildParams(req)

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	if len(resp.Content) == 0 {
		return nil, model.ErrNoChoices
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}

	return &model.Response{
		ID:           resp.ID,
		Text:         text.String(),
		FinishReason: finishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	turns := model.Messages(req.Messages)

	params := anthropic.MessageNewParams{
		Model:       model.Or(anthropic.Model(req.Model), m.opts.Model),
		Messages:    buildMessages(turns),
		MaxTokens:   model.Or(int64(req.MaxTokens), m.opts.MaxTokens),
		Temperature: anthropic.Float(model.Or(req.Temperature, m.opts.Temperature)),
		TopP:        anthropic.Float(model.Or(req.TopP, m.opts.TopP)),
	}

	if systemBlocks := extractSystemMessage(turns); len(systemBlocks) > 0 {
		params.System = systemBlocks
	}

	return params
}

// buildMessages converts turns to Anthropic message format. System turns are
// sent separately.
func buildMessages(turns []core.Turn) []anthropic.MessageParam {
	var messages []anthropic.MessageParam

	for _, t := range turns {
		switch t.Role {
		case core.RoleSystem:
			continue
		case core.RoleAssistant:
			if text := t.Text(); text != "" {
				messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
			}
		default:
			if content := buildUserContent(t.Content); len(content) > 0 {
				messages = append(messages, anthropic.NewUserMessage(content...))
			}
		}
	}

	return messages
}

// extractSystemMessage extracts system message blocks
func extractSystemMessage(turns []core.Turn) []anthropic.TextBlockParam {
	var systemBlocks []anthropic.TextBlockParam

	for _, t := range turns {
		if t.Role != core.RoleSystem {
			continue
		}
		if text := t.Text(); text != "" {
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: text})
		}
	}

	return systemBlocks
}

// buildUserContent builds content for user messages. Images are sent as
// base64 blocks; other media cannot be sent and is described in text.
func buildUserContent(c *core.Content) []anthropic.ContentBlockParamUnion {
	if !c.IsMultimodal() {
		if text := c.String(); text != "" {
			return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(text)}
		}
		return nil
	}

	var content []anthropic.ContentBlockParamUnion
	for _, p := range c.Parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		case core.FilePart:
			mime := part.File.MimeType()
			if strings.HasPrefix(mime, "image/") {
				content = append(content, anthropic.NewImageBlockBase64(mime, part.File.Base64()))
				continue
			}
			content = append(content, anthropic.NewTextBlock(fmt.Sprintf("[unsupported attachment: %s]", mime)))
		}
	}

	return content
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     string(m.opts.Model),
		Provider: "anthropic",
	}
}
