// Package prompt builds the system prompt from the registered capabilities
// and long-term memories.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/dexter/core"
	"github.com/hupe1980/dexter/internal/util"
	"github.com/hupe1980/dexter/logging"
)

// DefaultMemoryLimit caps the memories rendered into the prompt.
const DefaultMemoryLimit = 10

// SignatureSource renders capability signatures for the prompt.
// *tool.Registry and *agent.Dispatcher implement it.
type SignatureSource interface {
	Signatures() string
}

// Options configures a Builder.
type Options struct {
	Template string
	Tools    SignatureSource
	Agents   SignatureSource
	// Memory feeds the long-term memory section. Nil renders it empty.
	Memory      core.MemoryStore
	MemoryQuery string
	MemoryLimit int
	Logger      logging.Logger
}

// Builder renders system prompts.
type Builder struct {
	opts Options
}

// NewBuilder creates a Builder.
func NewBuilder(optFns ...func(o *Options)) *Builder {
	opts := Options{
		Template:    DefaultTemplate,
		MemoryLimit: DefaultMemoryLimit,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Builder{opts: opts}
}

// Build renders the prompt. Memory lookups that fail are logged and the
// section is rendered empty.
func (b *Builder) Build(ctx context.Context) (string, error) {
	data := map[string]any{
		"Tools":    signatures(b.opts.Tools),
		"Agents":   signatures(b.opts.Agents),
		"Memories": b.memories(ctx),
	}
	out, err := util.RenderTemplate(b.opts.Template, data)
	if err != nil {
		return "", fmt.Errorf("prompt: render: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (b *Builder) memories(ctx context.Context) []string {
	if b.opts.Memory == nil || ctx.Err() != nil {
		return nil
	}
	results, err := b.opts.Memory.Search(b.opts.MemoryQuery, b.opts.MemoryLimit)
	if err != nil {
		b.opts.Logger.Warn("prompt.memory.search_failed", "error", err)
		return nil
	}
	out := make([]string, 0, len(results))
	for _, r := range results {
		if c := strings.TrimSpace(r.Content); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func signatures(src SignatureSource) string {
	if src == nil {
		return ""
	}
	return strings.TrimSpace(src.Signatures())
}
