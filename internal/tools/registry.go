// Package tools holds the executable actions the agent can take on behalf of
// a user. Tools are registered by name and invoked with the parameters the
// planner extracted from the request.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"courier/internal/providers"
)

// Tool is one executable action.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, params map[string]any) (string, error)
}

type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("cannot register nil tool")
	}
	name := strings.TrimSpace(tool.Name())
	if name == "" {
		return fmt.Errorf("cannot register tool with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q is already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Replace installs a tool under its name, overwriting any previous
// registration. Manifest reloads use this so edits take effect live.
func (r *Registry) Replace(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("cannot register nil tool")
	}
	name := strings.TrimSpace(tool.Name())
	if name == "" {
		return fmt.Errorf("cannot register tool with empty name")
	}

	r.mu.Lock()
	r.tools[name] = tool
	r.mu.Unlock()
	return nil
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.tools, name)
	r.mu.Unlock()
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[strings.TrimSpace(name)]
	return tool, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe renders the registry as tool declarations for a model request.
func (r *Registry) Describe() []providers.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	declarations := make([]providers.Tool, 0, len(names))
	for _, name := range names {
		tool := r.tools[name]
		declarations = append(declarations, providers.Tool{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Parameters(),
		})
	}
	return declarations
}

// Execute runs a named tool. An unknown name is an error the caller reports
// back to the user rather than a crash.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (string, error) {
	tool, ok := r.Lookup(name)
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	if params == nil {
		params = map[string]any{}
	}
	return tool.Execute(ctx, params)
}
