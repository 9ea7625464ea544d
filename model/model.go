package model

import (
	"context"
	"errors"

	"github.com/hupe1980/dexter/core"
)

// ErrNoChoices is returned by adapters when the provider answered without any
// candidate completion.
var ErrNoChoices = errors.New("model: no choices returned")

// Request is one completion call: the full conversation (system turn first)
// plus sampling parameters. Zero values select the adapter defaults.
type Request struct {
	Model       string      `json:"model,omitempty"`
	Messages    []core.Turn `json:"messages"`
	Temperature float64     `json:"temperature,omitempty"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	TopP        float64     `json:"top_p,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the text of the first completion choice.
type Response struct {
	ID           string      `json:"id,omitempty"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason,omitempty"` // "stop", "length", ...
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "gemini", "mock"
}

// Model is the completion service.
type Model interface {
	// Complete returns the first choice for req. Implementations do not retry.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// Messages skips placeholder turns and system turns with null content, which
// carry nothing a provider can accept.
func Messages(turns []core.Turn) []core.Turn {
	out := make([]core.Turn, 0, len(turns))
	for _, t := range turns {
		if t.IsPlaceholder() || t.Content == nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Or returns v unless it is the zero value, in which case it returns def.
func Or[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
