// Package gemini provides an implementation of model.Model on top of the
// Google Gen AI SDK (Gemini API or Vertex AI backend).
package gemini

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/genai"

	"github.com/hupe1980/dexter/core"
	"github.com/hupe1980/dexter/model"
)

// Options configures the Gemini adapter. They act as defaults for request
// fields left at their zero value.
type Options struct {
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
	APIKey      string
}

// Model wraps genai.Client.Models.GenerateContent behind model.Model.
type Model struct {
	client *genai.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       "gemini-2.0-flash",
		Temperature: 0.7,
		TopP:        0.9,
		MaxTokens:   4000,
	}
}

// NewModel creates a client for the Gemini API. Without an API key the SDK
// falls back to the GOOGLE_API_KEY / GEMINI_API_KEY environment variables.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Model{client: client, opts: opts}, nil
}

// NewModelFromClient creates a model from an existing client.
func NewModelFromClient(client *genai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Complete implements model.Model.
func (m *Model) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	contents, cfg, err := m.buildRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Models.GenerateContent(ctx, model.Or(req.Model, m.opts.Model), contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini api error: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, model.ErrNoChoices
	}

	out := &model.Response{
		ID:           resp.ResponseID,
		Text:         resp.Text(),
		FinishReason: string(resp.Candidates[0].FinishReason),
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = &model.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func (m *Model) buildRequest(req model.Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(model.Or(req.Temperature, m.opts.Temperature))),
		TopP:            genai.Ptr(float32(model.Or(req.TopP, m.opts.TopP))),
		MaxOutputTokens: int32(model.Or(req.MaxTokens, m.opts.MaxTokens)),
	}

	var contents []*genai.Content
	for _, t := range model.Messages(req.Messages) {
		switch t.Role {
		case core.RoleSystem:
			cfg.SystemInstruction = genai.NewContentFromText(t.Text(), genai.RoleUser)
		case core.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(t.Text(), genai.RoleModel))
		default:
			parts, err := buildParts(t.Content)
			if err != nil {
				return nil, nil, err
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
		}
	}
	return contents, cfg, nil
}

func buildParts(c *core.Content) ([]*genai.Part, error) {
	if !c.IsMultimodal() {
		return []*genai.Part{genai.NewPartFromText(c.String())}, nil
	}
	parts := make([]*genai.Part, 0, len(c.Parts))
	for _, p := range c.Parts {
		switch part := p.(type) {
		case core.TextPart:
			parts = append(parts, genai.NewPartFromText(part.Text))
		case core.FilePart:
			data, err := base64.StdEncoding.DecodeString(part.File.Base64())
			if err != nil {
				return nil, fmt.Errorf("gemini: decode attachment: %w", err)
			}
			parts = append(parts, genai.NewPartFromBytes(data, part.File.MimeType()))
		}
	}
	return parts, nil
}

// Info returns metadata describing this Gemini model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     m.opts.Model,
		Provider: "gemini",
	}
}
