// Package tools defines the tool catalog the agent loop dispatches
// into: shell sessions, the file editor, messaging, web access, and
// the termination tools that end a run.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nextlevelbuilder/agentd/internal/providers"
)

// Tool is one capability exposed to the LLM.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Execute(ctx context.Context, args map[string]any) *Result
}

// Registry holds the tools available to one agent instance.
// Names must be unique; duplicates are a construction error.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s is duplicated", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// MustRegister panics on a duplicate name. Catalog construction is
// static, so a duplicate is a programmer error.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Params returns the tool declarations sent to the LLM, in
// registration order.
func (r *Registry) Params() []providers.ToolParam {
	r.mu.RLock()
	defer r.mu.RUnlock()
	params := make([]providers.ToolParam, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		params = append(params, providers.ToolParam{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return params
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
