// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API. It adapts dexter turns (including image and video
// attachments) into the SDK's message format and back.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/dexter/core"
	"github.com/hupe1980/dexter/model"
)

// Options configure the OpenAI model adapter. They act as defaults for
// request fields left at their zero value.
type Options struct {
	Model               string
	Temperature         float64
	TopP                float64
	MaxCompletionTokens int64
	APIKey              string
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		TopP:                0.9,
		MaxCompletionTokens: 4000,
	}
}

// NewModel creates a new OpenAI model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new OpenAI model from an existing client
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Complete implements model.Model.
func (m *Model) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	params := m.buildParams(req)

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, model.ErrNoChoices
	}
	ch0 := resp.Choices[0]
	return &model.Response{
		ID:           resp.ID,
		Text:         ch0.Message.Content,
		FinishReason: ch0.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func (m *Model) buildParams(req model.Request) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Messages:            buildMessages(model.Messages(req.Messages)),
		Model:               model.Or(req.Model, m.opts.Model),
		Temperature:         openai.Float(model.Or(req.Temperature, m.opts.Temperature)),
		TopP:                openai.Float(model.Or(req.TopP, m.opts.TopP)),
		MaxCompletionTokens: openai.Int(model.Or(int64(req.MaxTokens), m.opts.MaxCompletionTokens)),
	}
}

// buildMessages converts turns into OpenAI chat messages. Multimodal user
// turns become content part arrays.
func buildMessages(turns []core.Turn) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(t.Text()))
		case core.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(t.Text()))
		default:
			if t.Content.IsMultimodal() {
				messages = append(messages, openai.UserMessage(buildParts(t.Content.Parts)))
				continue
			}
			messages = append(messages, openai.UserMessage(t.Text()))
		}
	}
	return messages
}

func buildParts(parts []core.Part) []openai.ChatCompletionContentPartUnionParam {
	out := make([]openai.ChatCompletionContentPartUnionParam, 0, len(parts))
	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			out = append(out, openai.TextContentPart(part.Text))
		case core.FilePart:
			if strings.HasPrefix(part.File.MimeType(), "image/") {
				out = append(out, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: part.File.FileData,
				}))
				continue
			}
			out = append(out, openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
				FileData: openai.String(part.File.FileData),
			}))
		}
	}
	return out
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     m.opts.Model,
		Provider: "openai",
	}
}
