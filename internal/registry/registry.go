// Package registry holds the fixed set of invocable tools. The registry is
// built once at startup and is read-only afterwards, so lookups need no
// locking.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zacharycox-tamu/mcp-checkuptime/internal/mcp"
)

// ErrUnknownTool is returned by Invoke when no tool is registered under the
// requested name. This is the one execution failure that surfaces as a
// protocol error rather than result text.
var ErrUnknownTool = errors.New("unknown tool")

// Handler executes a tool call. Tool-level failures are expressed in the
// returned result, never as an error; a Handler has no error return by
// construction so transport bugs cannot masquerade as tool failures.
type Handler func(ctx context.Context, args json.RawMessage) *mcp.CallToolResult

// Entry pairs a tool descriptor with its handler.
type Entry struct {
	Descriptor mcp.Tool
	Handler    Handler
}

// Registry is the immutable, ordered tool set.
type Registry struct {
	tools    []mcp.Tool
	handlers map[string]Handler
}

// New builds a Registry from the given entries. Listing order is entry order.
// Duplicate names are a programming error and fail construction.
func New(entries ...Entry) (*Registry, error) {
	r := &Registry{
		tools:    make([]mcp.Tool, 0, len(entries)),
		handlers: make(map[string]Handler, len(entries)),
	}
	for _, e := range entries {
		if _, exists := r.handlers[e.Descriptor.Name]; exists {
			return nil, fmt.Errorf("duplicate tool name %q", e.Descriptor.Name)
		}
		r.tools = append(r.tools, e.Descriptor)
		r.handlers[e.Descriptor.Name] = e.Handler
	}
	return r, nil
}

// MustNew is New that panics on error, for static registrations at startup.
func MustNew(entries ...Entry) *Registry {
	r, err := New(entries...)
	if err != nil {
		panic(err)
	}
	return r
}

// List returns the tool descriptors in registration order. The returned slice
// is a copy; callers may not mutate registry state.
func (r *Registry) List() []mcp.Tool {
	out := make([]mcp.Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Name
	}
	return names
}

// Invoke resolves name and delegates to its handler. It fails only with
// ErrUnknownTool; everything the tool itself gets wrong comes back inside the
// result.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return h(ctx, args), nil
}
