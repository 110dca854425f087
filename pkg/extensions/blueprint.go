package extensions

import (
	"context"

	"github.com/morezero/agent-link/pkg/host"
	"github.com/morezero/agent-link/pkg/registry"
)

type componentSpec struct {
	ComponentType string         `json:"component_type"`
	ComponentName string         `json:"component_name"`
	AttachTo      string         `json:"attach_to"`
	Properties    map[string]any `json:"properties"`
}

type createBlueprintInput struct {
	Name        string          `json:"name"`
	ParentClass string          `json:"parent_class"`
	Path        string          `json:"path"`
	Components  []componentSpec `json:"components"`
}

type addComponentInput struct {
	BlueprintName       string         `json:"blueprint_name"`
	ComponentType       string         `json:"component_type"`
	ComponentName       string         `json:"component_name"`
	AttachTo            string         `json:"attach_to"`
	ComponentProperties map[string]any `json:"component_properties"`
}

type setBlueprintPropertyInput struct {
	BlueprintPath string         `json:"blueprint_path"`
	ComponentName string         `json:"component_name"`
	Properties    map[string]any `json:"properties"`
}

type compileInput struct {
	BlueprintPath string `json:"blueprint_path"`
}

func blueprintPayload(bp *host.Blueprint) map[string]any {
	comps := make([]any, 0, len(bp.Components))
	for _, c := range bp.Components {
		item := map[string]any{"component_name": c.Name, "component_type": c.Type}
		if c.AttachTo != "" {
			item["attach_to"] = c.AttachTo
		}
		comps = append(comps, item)
	}
	return map[string]any{
		"ok":           true,
		"path":         bp.Path,
		"parent_class": bp.ParentClass,
		"components":   comps,
		"dirty":        bp.Dirty,
	}
}

func registerBlueprint(reg *registry.Registry, d Deps) error {
	componentSchema := object([]string{"component_type", "component_name"}, map[string]any{
		"component_type": nonEmpty,
		"component_name": nonEmpty,
		"attach_to":      stringProp,
		"properties":     objectProp,
	})

	return registerCommands(reg, "blueprint",
		command{
			desc: registry.Descriptor{Name: "blueprint.create", Context: registry.ContextMain,
				Description: "Create a blueprint class, optionally with components",
				InputSchema: object([]string{"name"}, map[string]any{
					"name":         nonEmpty,
					"parent_class": stringProp,
					"path":         stringProp,
					"components":   map[string]any{"type": "array", "items": componentSchema},
				})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in createBlueprintInput) (*registry.Result, error) {
				bp, err := d.Editor.CreateBlueprint(in.Name, in.ParentClass, in.Path)
				if err != nil {
					return nil, hostError(err)
				}
				for _, c := range in.Components {
					bp, err = d.Editor.AddComponent(bp.Path, c.ComponentType, c.ComponentName, c.AttachTo, c.Properties)
					if err != nil {
						return nil, hostError(err)
					}
				}
				return registry.Value(blueprintPayload(bp)), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "blueprint.add_component", Context: registry.ContextMain,
				Description: "Add a component to a blueprint",
				InputSchema: object([]string{"blueprint_name", "component_type", "component_name"}, map[string]any{
					"blueprint_name":       nonEmpty,
					"component_type":       nonEmpty,
					"component_name":       nonEmpty,
					"attach_to":            stringProp,
					"component_properties": objectProp,
				})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in addComponentInput) (*registry.Result, error) {
				bp, err := d.Editor.AddComponent(in.BlueprintName, in.ComponentType, in.ComponentName, in.AttachTo, in.ComponentProperties)
				if err != nil {
					return nil, hostError(err)
				}
				return registry.Value(blueprintPayload(bp)), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "blueprint.set_property", Context: registry.ContextMain,
				Description: "Set class defaults or component properties",
				InputSchema: object([]string{"blueprint_path", "properties"}, map[string]any{
					"blueprint_path": nonEmpty,
					"component_name": stringProp,
					"properties":     map[string]any{"type": "object", "minProperties": 1},
				})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in setBlueprintPropertyInput) (*registry.Result, error) {
				applied, err := d.Editor.SetBlueprintProperty(in.BlueprintPath, in.ComponentName, in.Properties)
				if err != nil {
					return nil, hostError(err)
				}
				return registry.Value(map[string]any{
					"ok":             true,
					"blueprint_path": in.BlueprintPath,
					"applied":        stringsToAny(applied),
				}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "blueprint.compile", Context: registry.ContextMain,
				Description: "Compile a blueprint",
				InputSchema: object([]string{"blueprint_path"}, map[string]any{"blueprint_path": nonEmpty})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in compileInput) (*registry.Result, error) {
				res, err := d.Editor.CompileBlueprint(in.BlueprintPath)
				if err != nil {
					return nil, hostError(err)
				}
				return registry.Value(map[string]any{
					"ok":       res.Status != "error",
					"path":     res.Path,
					"status":   res.Status,
					"errors":   stringsToAny(res.Errors),
					"warnings": stringsToAny(res.Warnings),
				}), nil
			}),
		},
	)
}
