// Package extensions holds the command sets the bridge ships with. Each
// extension registers its commands into a registry before it is sealed.
package extensions

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/agent-link/pkg/host"
	"github.com/morezero/agent-link/pkg/registry"
)

const logPrefix = "extensions:extensions"

// Deps are the collaborators handlers close over.
type Deps struct {
	Editor *host.Editor
	// Registry backs system.describe. It is the registry being filled.
	Registry *registry.Registry
	// Version is reported by system.ping.
	Version string
}

// Extension is a named group of commands.
type Extension struct {
	Name     string
	Register func(reg *registry.Registry, d Deps) error
}

// Builtin returns the bundled extensions in registration order.
func Builtin() []Extension {
	return []Extension{
		{Name: "system", Register: registerSystem},
		{Name: "content", Register: registerContent},
		{Name: "blueprint", Register: registerBlueprint},
		{Name: "material", Register: registerMaterial},
		{Name: "widget", Register: registerWidget},
		{Name: "actor", Register: registerActor},
		{Name: "editor", Register: registerEditor},
		{Name: "messagelog", Register: registerMessageLog},
	}
}

// RegisterAll registers exts, or every builtin extension when none are
// given. The first failure aborts.
func RegisterAll(reg *registry.Registry, d Deps, exts ...Extension) error {
	if d.Editor == nil {
		return fmt.Errorf("%s - editor is required", logPrefix)
	}
	if d.Registry == nil {
		d.Registry = reg
	}
	if len(exts) == 0 {
		exts = Builtin()
	}
	before := reg.Len()
	for _, ext := range exts {
		if err := ext.Register(reg, d); err != nil {
			return fmt.Errorf("%s - extension %s: %w", logPrefix, ext.Name, err)
		}
	}
	slog.Info(fmt.Sprintf("%s - registered %d commands from %d extensions", logPrefix, reg.Len()-before, len(exts)))
	return nil
}

type command struct {
	desc    registry.Descriptor
	handler registry.Handler
}

func registerCommands(reg *registry.Registry, tag string, cmds ...command) error {
	for _, c := range cmds {
		c.desc.Tags = append(c.desc.Tags, tag)
		if err := reg.Register(c.desc, c.handler); err != nil {
			return err
		}
	}
	return nil
}

// hostError maps editor errors onto command errors.
func hostError(err error) error {
	var nf *host.NotFoundError
	var conflict *host.ConflictError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, host.ErrInvalid):
		return registry.InvalidArgument("%v", err)
	case errors.As(err, &nf):
		return registry.Failure("not_found", "%v", err)
	case errors.As(err, &conflict):
		return registry.Failure("conflict", "%v", err)
	default:
		return registry.Failure("host_error", "%v", err)
	}
}

// object builds a JSON schema for an object payload.
func object(required []string, props map[string]any) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = stringsToAny(required)
	}
	return s
}

var (
	stringProp  = map[string]any{"type": "string"}
	nonEmpty    = map[string]any{"type": "string", "minLength": 1}
	boolProp    = map[string]any{"type": "boolean"}
	objectProp  = map[string]any{"type": "object"}
	intProp     = map[string]any{"type": "integer", "minimum": 0}
	limitProp   = map[string]any{"type": "integer", "minimum": 1, "maximum": 10000}
	stringArray = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	resolution  = map[string]any{
		"type":     "array",
		"items":    map[string]any{"type": "integer", "minimum": 1, "maximum": host.MaxFrameEdge},
		"minItems": 2,
		"maxItems": 2,
	}
)

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
