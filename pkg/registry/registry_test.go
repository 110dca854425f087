package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/morezero/agent-link/pkg/codec"
)

const testPrefix = "registry:registry_test"

func okHandler(_ context.Context, _ *Request) (*Result, error) {
	return Value(map[string]any{"ok": true}), nil
}

func TestRegister_AndResolve(t *testing.T) {
	reg := New()
	if err := reg.Register(Descriptor{Name: "level.query_assets", Context: ContextAny}, okHandler); err != nil {
		t.Fatalf("%s - Register failed: %v", testPrefix, err)
	}
	if err := reg.Register(Descriptor{Name: "blueprint.compile"}, okHandler); err != nil {
		t.Fatalf("%s - Register failed: %v", testPrefix, err)
	}
	reg.Seal()

	e, err := reg.Resolve("level.query_assets")
	if err != nil {
		t.Fatalf("%s - Resolve failed: %v", testPrefix, err)
	}
	if e.Context != ContextAny {
		t.Errorf("%s - Context = %q, want %q", testPrefix, e.Context, ContextAny)
	}

	e, err = reg.Resolve("blueprint.compile")
	if err != nil {
		t.Fatalf("%s - Resolve failed: %v", testPrefix, err)
	}
	if e.Context != ContextMain {
		t.Errorf("%s - empty context should default to main, got %q", testPrefix, e.Context)
	}

	res, err := e.Invoke(context.Background(), &Request{Command: "blueprint.compile"})
	if err != nil {
		t.Fatalf("%s - Invoke failed: %v", testPrefix, err)
	}
	if res.Payload["ok"] != true {
		t.Errorf("%s - unexpected payload %v", testPrefix, res.Payload)
	}
}

func TestResolve_ExactCaseSensitive(t *testing.T) {
	reg := New()
	if err := reg.Register(Descriptor{Name: "system.ping", Context: ContextAny}, okHandler); err != nil {
		t.Fatalf("%s - Register failed: %v", testPrefix, err)
	}
	reg.Seal()

	for _, name := range []string{"System.Ping", "system.ping ", "system", "system.pin"} {
		_, err := reg.Resolve(name)
		if !errors.Is(err, ErrUnknownCommand) {
			t.Errorf("%s - Resolve(%q) err = %v, want UNKNOWN_COMMAND", testPrefix, name, err)
		}
	}
}

func TestRegister_AfterSeal(t *testing.T) {
	reg := New()
	reg.Seal()

	err := reg.Register(Descriptor{Name: "late.command"}, okHandler)
	if !errors.Is(err, ErrRegistryClosed) {
		t.Fatalf("%s - err = %v, want REGISTRY_CLOSED", testPrefix, err)
	}
	var ce *CommandError
	if !errors.As(err, &ce) || ce.Code != codec.CodeRegistryClosed {
		t.Errorf("%s - expected CommandError with code %s, got %v", testPrefix, codec.CodeRegistryClosed, err)
	}
	if reg.Len() != 0 {
		t.Errorf("%s - Len = %d, want 0", testPrefix, reg.Len())
	}
}

func TestRegister_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		desc    Descriptor
		handler Handler
	}{
		{"empty name", Descriptor{Name: ""}, okHandler},
		{"bad name", Descriptor{Name: "has space"}, okHandler},
		{"trailing dot", Descriptor{Name: "asset."}, okHandler},
		{"bad context", Descriptor{Name: "a.b", Context: "gpu"}, okHandler},
		{"nil handler", Descriptor{Name: "a.b"}, nil},
		{"bad schema", Descriptor{Name: "a.b", InputSchema: map[string]any{"type": 12}}, okHandler},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := New().Register(tt.desc, tt.handler); err == nil {
				t.Errorf("%s - expected error for %s", testPrefix, tt.name)
			}
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	reg := New()
	if err := reg.Register(Descriptor{Name: "a.b"}, okHandler); err != nil {
		t.Fatalf("%s - Register failed: %v", testPrefix, err)
	}
	if err := reg.Register(Descriptor{Name: "a.b", Context: ContextAny}, okHandler); err == nil {
		t.Fatalf("%s - expected duplicate registration to fail", testPrefix)
	}
	reg.Seal()
	e, _ := reg.Resolve("a.b")
	if e.Context != ContextMain {
		t.Errorf("%s - duplicate must not replace original descriptor", testPrefix)
	}
}

func TestDescribe_Sorted(t *testing.T) {
	reg := New()
	for _, n := range []string{"widget.create", "asset.list", "material.describe"} {
		if err := reg.Register(Descriptor{Name: n}, okHandler); err != nil {
			t.Fatalf("%s - Register(%s) failed: %v", testPrefix, n, err)
		}
	}
	got := reg.Describe()
	want := []string{"asset.list", "material.describe", "widget.create"}
	if len(got) != len(want) {
		t.Fatalf("%s - Describe len = %d, want %d", testPrefix, len(got), len(want))
	}
	for i := range want {
		if got[i].Name != want[i] {
			t.Errorf("%s - Describe[%d] = %q, want %q", testPrefix, i, got[i].Name, want[i])
		}
	}
}

func TestValidate_Schema(t *testing.T) {
	reg := New()
	schema := map[string]any{
		"type":     "object",
		"required": []any{"path"},
		"properties": map[string]any{
			"path":  map[string]any{"type": "string", "minLength": 1},
			"limit": map[string]any{"type": "integer", "minimum": 1},
		},
	}
	if err := reg.Register(Descriptor{Name: "content.search", Context: ContextAny, InputSchema: schema}, okHandler); err != nil {
		t.Fatalf("%s - Register failed: %v", testPrefix, err)
	}
	reg.Seal()
	e, _ := reg.Resolve("content.search")

	tests := []struct {
		name    string
		payload map[string]any
		valid   bool
	}{
		{"valid", map[string]any{"path": "/Game", "limit": float64(10)}, true},
		{"cbor integer", map[string]any{"path": "/Game", "limit": uint64(3)}, true},
		{"missing required", map[string]any{"limit": float64(10)}, false},
		{"nil payload", nil, false},
		{"wrong type", map[string]any{"path": 5}, false},
		{"below minimum", map[string]any{"path": "/Game", "limit": float64(0)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Validate(tt.payload)
			if tt.valid && err != nil {
				t.Errorf("%s - unexpected error: %v", testPrefix, err)
			}
			if !tt.valid {
				if !errors.Is(err, ErrInvalidArgument) {
					t.Errorf("%s - err = %v, want INVALID_ARGUMENT", testPrefix, err)
				}
			}
		})
	}
}

func TestValidate_NoSchemaAcceptsAnything(t *testing.T) {
	reg := New()
	if err := reg.Register(Descriptor{Name: "system.ping"}, okHandler); err != nil {
		t.Fatalf("%s - Register failed: %v", testPrefix, err)
	}
	e, _ := reg.Resolve("system.ping")
	if err := e.Validate(map[string]any{"anything": []any{1, 2}}); err != nil {
		t.Errorf("%s - unexpected error: %v", testPrefix, err)
	}
}
