package tooling

import (
	"fmt"

	"voicecart/internal/domain"
)

// Registry holds Tool implementations keyed by name. It is built once at
// startup, shared by reference across sessions, and read-only afterwards, so
// lookups need no locking.
type Registry struct {
	tools map[string]Tool
	order []string // registration order, for deterministic Schemas()
}

// NewRegistry returns an empty, ready-to-use registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Returns an error wrapping domain.ErrDuplicateTool if
// a tool with the same name is already registered.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool must not be nil")
	}
	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %q", domain.ErrDuplicateTool, name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Resolve returns the tool with the given name or an error wrapping
// domain.ErrUnknownTool.
func (r *Registry) Resolve(name string) (Tool, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTool, name)
	}
	return tool, nil
}

// Schemas returns the function declarations for every registered tool in
// registration order, ready for the session configuration's tools array.
func (r *Registry) Schemas() []domain.ToolSchema {
	out := make([]domain.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, domain.ToolSchema{
			Type:        "function",
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.tools) }
