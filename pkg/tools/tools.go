// Package tools holds the local tool registry and the concurrent invoker
// that turns a model's function calls into function_call_output records.
package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Definition describes one callable tool: its name, a description for the
// model, and a JSON schema for its arguments.
type Definition struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Func is a tool implementation. Arguments arrive decoded from the model's
// JSON arguments string; the returned string becomes the call output.
type Func func(ctx context.Context, args map[string]any) (string, error)

type entry struct {
	def Definition
	fn  Func
}

// Registry maps tool names to callables. It is populated during startup and
// read-only while runs are in flight.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a tool. Names are resolved first-come, first-served: a
// second registration under the same name is dropped with a warning.
func (r *Registry) Register(def Definition, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[def.Name]; ok {
		slog.Warn("tool name conflict, keeping first registration", "tool", def.Name)
		return
	}
	r.entries[def.Name] = entry{def: def, fn: fn}
	r.order = append(r.order, def.Name)
}

// Lookup returns the callable registered under name.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.fn, true
}

// Definitions returns all tool definitions in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].def)
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
