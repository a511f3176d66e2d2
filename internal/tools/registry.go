// Package tools holds the functions the model may call during a chat turn.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Property describes one tool argument.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Schema captures the subset of JSON Schema used for tool parameters.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Tool is a synchronous function exposed to the model. Execute never fails:
// problems are reported inside the returned result.
type Tool interface {
	Name() string
	Description() string
	Parameters() *Schema
	Execute(ctx context.Context, args map[string]any) map[string]any
}

// Registry keeps the mapping between tool names and implementations.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// NewDefaultRegistry returns a registry with the weather, calculator and
// currentTime tools registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, t := range []Tool{NewWeather(), NewCalculator(), NewClock()} {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Register inserts a tool when its name is not in use.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = tool
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// Execute runs the named tool. Unknown tools yield an error result rather
// than aborting the turn.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) map[string]any {
	t, ok := r.Get(name)
	if !ok {
		return map[string]any{"error": fmt.Sprintf("unknown tool %q", name)}
	}
	if args == nil {
		args = map[string]any{}
	}
	return t.Execute(ctx, args)
}
