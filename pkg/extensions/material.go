package extensions

import (
	"context"

	"github.com/morezero/agent-link/pkg/registry"
)

type createMaterialInput struct {
	MaterialName    string   `json:"material_name"`
	TexturePaths    []string `json:"texture_paths"`
	DestinationPath string   `json:"destination_path"`
	ParentMaterial  string   `json:"parent_material"`
}

type setParamInput struct {
	Path   string         `json:"path"`
	Params map[string]any `json:"params"`
}

type applyMaterialInput struct {
	MaterialPath string `json:"material_path"`
	Targets      struct {
		Paths []string `json:"paths"`
	} `json:"targets"`
	SlotIndex int `json:"slot_index"`
}

type pathInput struct {
	Path string `json:"path"`
}

func registerMaterial(reg *registry.Registry, d Deps) error {
	return registerCommands(reg, "material",
		command{
			desc: registry.Descriptor{Name: "material.create", Context: registry.ContextMain,
				Description: "Create a material or material instance from textures",
				InputSchema: object([]string{"material_name", "texture_paths"}, map[string]any{
					"material_name":    nonEmpty,
					"texture_paths":    map[string]any{"type": "array", "items": nonEmpty, "minItems": 1},
					"destination_path": stringProp,
					"parent_material":  stringProp,
				})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in createMaterialInput) (*registry.Result, error) {
				m, err := d.Editor.CreateMaterial(in.MaterialName, in.DestinationPath, in.ParentMaterial, in.TexturePaths)
				if err != nil {
					return nil, hostError(err)
				}
				return registry.Value(map[string]any{
					"ok":       true,
					"path":     m.Path,
					"parent":   m.Parent,
					"textures": stringsToAny(m.Textures),
				}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "material.set_param", Context: registry.ContextMain,
				Description: "Set material parameters",
				InputSchema: object([]string{"path", "params"}, map[string]any{
					"path":   nonEmpty,
					"params": map[string]any{"type": "object", "minProperties": 1},
				})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in setParamInput) (*registry.Result, error) {
				applied, err := d.Editor.SetMaterialParams(in.Path, in.Params)
				if err != nil {
					return nil, hostError(err)
				}
				return registry.Value(map[string]any{"ok": true, "path": in.Path, "applied": stringsToAny(applied)}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "material.apply", Context: registry.ContextMain,
				Description: "Assign a material to assets",
				InputSchema: object([]string{"material_path", "targets"}, map[string]any{
					"material_path": nonEmpty,
					"targets": object([]string{"paths"}, map[string]any{
						"paths": map[string]any{"type": "array", "items": nonEmpty, "minItems": 1},
					}),
					"slot_index": intProp,
				})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in applyMaterialInput) (*registry.Result, error) {
				applied, missing, err := d.Editor.ApplyMaterial(in.MaterialPath, in.Targets.Paths, in.SlotIndex)
				if err != nil {
					return nil, hostError(err)
				}
				return registry.Value(map[string]any{
					"ok":         len(missing) == 0,
					"path":       in.MaterialPath,
					"slot_index": in.SlotIndex,
					"applied":    stringsToAny(applied),
					"missing":    stringsToAny(missing),
				}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "material.describe", Context: registry.ContextAny, Idempotent: true,
				Description: "Describe a material",
				InputSchema: object([]string{"path"}, map[string]any{"path": nonEmpty})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in pathInput) (*registry.Result, error) {
				m, err := d.Editor.Material(in.Path)
				if err != nil {
					return nil, hostError(err)
				}
				users := make(map[string]any, len(m.Users))
				for k, v := range m.Users {
					users[k] = v
				}
				return registry.Value(map[string]any{
					"path":     m.Path,
					"parent":   m.Parent,
					"textures": stringsToAny(m.Textures),
					"params":   m.Params,
					"users":    users,
				}), nil
			}),
		},
	)
}
