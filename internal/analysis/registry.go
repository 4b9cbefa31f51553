package analysis

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/PitchRadar/internal/llm"
)

// Registry maps category names to tools and fixes their order, which is
// the order radar dimensions are reported in.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry builds a registry from tools in the given order. Later tools
// replace earlier ones with the same name.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, exists := r.tools[t.Name()]; !exists {
			r.order = append(r.order, t.Name())
		}
		r.tools[t.Name()] = t
	}
	return r
}

// DefaultRegistry builds a PromptTool for every built-in category.
func DefaultRegistry(provider llm.Provider, maxInputChars int) *Registry {
	tools := make([]Tool, 0, len(categories))
	for _, c := range categories {
		tools = append(tools, NewPromptTool(c.name, systemMessage, categoryPrompt(c), provider, maxInputChars))
	}
	return NewRegistry(tools...)
}

// Names returns category names in registry order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Get returns the tool registered for name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered categories.
func (r *Registry) Len() int { return len(r.order) }

// Select resolves a requested subset in registry order. An empty request
// selects everything. Unknown names are dropped; a non-empty request that
// matches nothing is ErrInvalidRequest.
func (r *Registry) Select(requested []string) ([]Tool, error) {
	if len(requested) == 0 {
		tools := make([]Tool, 0, len(r.order))
		for _, name := range r.order {
			tools = append(tools, r.tools[name])
		}
		return tools, nil
	}

	want := make(map[string]bool, len(requested))
	for _, name := range requested {
		want[strings.TrimSpace(name)] = true
	}

	var tools []Tool
	for _, name := range r.order {
		if want[name] {
			tools = append(tools, r.tools[name])
		}
	}
	if len(tools) == 0 {
		return nil, fmt.Errorf("%w: no valid categories requested (got %s)", ErrInvalidRequest, strings.Join(requested, ", "))
	}
	return tools, nil
}
