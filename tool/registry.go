package tool

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Registry holds the tools available to code actions, in registration order.
// It is assembled once at start-up and read concurrently afterwards.
type Registry struct {
	mu      sync.RWMutex
	tools   []Tool
	byName  map[string]Tool
	exports map[string]string
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		byName:  make(map[string]Tool),
		exports: make(map[string]string),
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names must be unique Go identifiers, including after
// conversion to their exported interpreter name.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if !ValidName(name) {
		return fmt.Errorf("tool: invalid name %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("tool: duplicate name %q", name)
	}
	export := ExportName(name)
	if other, ok := r.exports[export]; ok {
		return fmt.Errorf("tool: name %q collides with %q", name, other)
	}
	r.tools = append(r.tools, t)
	r.byName[name] = t
	r.exports[export] = name
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// List returns the registered tools in registration order.
func (r *Registry) List() []Tool {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Call invokes the named tool. Unknown names yield an UNKNOWN_TOOL error.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, NewError(name, "no such tool", CodeUnknownTool)
	}
	return t.Call(ctx, args)
}

// Signatures renders every tool signature separated by blank lines.
func (r *Registry) Signatures() string {
	tools := r.List()
	sigs := make([]string, len(tools))
	for i, t := range tools {
		sigs[i] = Signature(t)
	}
	return strings.Join(sigs, "\n\n")
}
