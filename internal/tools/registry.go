// Package tools holds the tool registry and dispatcher. The registry is
// built explicitly at startup and immutable afterwards; there is no
// ambient global tool table.
package tools

import (
	"context"
	"fmt"

	"helpdesk-assistant/internal/domain/ports/adapter"
)

// TenantContext scopes a tool invocation to a verified tenant.
type TenantContext struct {
	UserID    string
	CompanyID string
}

// Handler is one named capability the model may invoke.
type Handler interface {
	Definition() adapter.ToolDefinition
	// TenantScoped handlers require a TenantContext; the dispatcher
	// injects it and rejects invocations without one.
	TenantScoped() bool
	Execute(ctx context.Context, tenant *TenantContext, args map[string]any) (string, error)
}

// Registry maps tool names to handlers. Construct once, then read-only.
type Registry struct {
	names  []string
	byName map[string]Handler
}

func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{byName: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		name := h.Definition().Name
		if name == "" {
			return nil, fmt.Errorf("tools: handler with empty name")
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("tools: duplicate handler %q", name)
		}
		r.byName[name] = h
		r.names = append(r.names, name)
	}
	return r, nil
}

// Lookup returns the handler for name, or nil.
func (r *Registry) Lookup(name string) Handler {
	return r.byName[name]
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Definitions returns the tool definitions for the enabled set. A nil
// enabled slice means all registered tools; unknown names are ignored.
func (r *Registry) Definitions(enabled []string) []adapter.ToolDefinition {
	pick := r.names
	if enabled != nil {
		pick = enabled
	}
	defs := make([]adapter.ToolDefinition, 0, len(pick))
	for _, name := range pick {
		if h := r.byName[name]; h != nil {
			defs = append(defs, h.Definition())
		}
	}
	return defs
}
