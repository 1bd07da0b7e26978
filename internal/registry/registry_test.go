package registry_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/zacharycox-tamu/mcp-checkuptime/internal/mcp"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/registry"
)

func echoEntry(name string) registry.Entry {
	return registry.Entry{
		Descriptor: mcp.Tool{Name: name, InputSchema: mcp.ToolInputSchema{Type: "object"}},
		Handler: func(ctx context.Context, args json.RawMessage) *mcp.CallToolResult {
			return mcp.TextResult(name)
		},
	}
}

func TestRegistry(t *testing.T) {
	t.Run("lists tools in registration order", func(t *testing.T) {
		r := registry.MustNew(echoEntry("alpha"), echoEntry("beta"))
		if diff := cmp.Diff([]string{"alpha", "beta"}, r.Names()); diff != "" {
			t.Fatalf("unexpected names (-want +got):\n%s", diff)
		}
	})

	t.Run("duplicate names fail construction", func(t *testing.T) {
		if _, err := registry.New(echoEntry("same"), echoEntry("same")); err == nil {
			t.Fatalf("expected duplicate-name error")
		}
	})

	t.Run("invoke resolves by name", func(t *testing.T) {
		r := registry.MustNew(echoEntry("alpha"))
		res, err := r.Invoke(context.Background(), "alpha", nil)
		if err != nil {
			t.Fatalf("Invoke: %v", err)
		}
		if want, got := "alpha", res.Content[0].Text; want != got {
			t.Fatalf("unexpected result text: want %q got %q", want, got)
		}
	})

	t.Run("unknown tool is ErrUnknownTool", func(t *testing.T) {
		r := registry.MustNew(echoEntry("alpha"))
		_, err := r.Invoke(context.Background(), "missing", nil)
		if !errors.Is(err, registry.ErrUnknownTool) {
			t.Fatalf("expected ErrUnknownTool, got %v", err)
		}
	})

	t.Run("list returns a copy", func(t *testing.T) {
		r := registry.MustNew(echoEntry("alpha"))
		list := r.List()
		list[0].Name = "mutated"
		if want, got := "alpha", r.List()[0].Name; want != got {
			t.Fatalf("registry state leaked: want %q got %q", want, got)
		}
	})
}

type typedArgs struct {
	Host  string `json:"host" jsonschema:"description=Hostname to probe"`
	Count int    `json:"count,omitempty"`
}

func TestTyped(t *testing.T) {
	entry := registry.Typed("probe", "Probe a host.",
		func(ctx context.Context, args typedArgs) *mcp.CallToolResult {
			return mcp.TextResult(args.Host)
		})

	t.Run("schema is reflected from the args struct", func(t *testing.T) {
		schema := entry.Descriptor.InputSchema
		if want, got := "object", schema.Type; want != got {
			t.Fatalf("unexpected schema type: want %q got %q", want, got)
		}
		host, ok := schema.Properties["host"]
		if !ok {
			t.Fatalf("schema missing host property: %+v", schema.Properties)
		}
		if want, got := "string", host.Type; want != got {
			t.Fatalf("unexpected host type: want %q got %q", want, got)
		}
		if want, got := "Hostname to probe", host.Description; want != got {
			t.Fatalf("unexpected host description: want %q got %q", want, got)
		}
		if diff := cmp.Diff([]string{"host"}, schema.Required); diff != "" {
			t.Fatalf("unexpected required list (-want +got):\n%s", diff)
		}
	})

	t.Run("arguments decode into the typed struct", func(t *testing.T) {
		res := entry.Handler(context.Background(), json.RawMessage(`{"host":"example.com"}`))
		if want, got := "example.com", res.Content[0].Text; want != got {
			t.Fatalf("unexpected result text: want %q got %q", want, got)
		}
	})

	t.Run("empty arguments yield zero values", func(t *testing.T) {
		res := entry.Handler(context.Background(), nil)
		if want, got := "", res.Content[0].Text; want != got {
			t.Fatalf("unexpected result text: want %q got %q", want, got)
		}
	})

	t.Run("malformed arguments become tool-level failure text", func(t *testing.T) {
		res := entry.Handler(context.Background(), json.RawMessage(`{"host":12}`))
		if !res.IsError {
			t.Fatalf("expected IsError result")
		}
		if got := res.Content[0].Text; len(got) == 0 || got[:8] != "[ERROR] " {
			t.Fatalf("expected [ERROR] prefix, got %q", got)
		}
	})
}
