package extensions

import (
	"context"

	"github.com/morezero/agent-link/pkg/registry"
)

type createWidgetInput struct {
	Name     string `json:"name"`
	Folder   string `json:"folder"`
	RootType string `json:"root_type"`
}

type addChildInput struct {
	Path        string `json:"path"`
	ParentName  string `json:"parent_name"`
	ControlType string `json:"control_type"`
	Name        string `json:"name"`
}

type setWidgetPropertyInput struct {
	Path       string         `json:"path"`
	WidgetName string         `json:"widget_name"`
	Properties map[string]any `json:"properties"`
}

type previewInput struct {
	Path       string `json:"path"`
	Resolution []int  `json:"resolution"`
}

func registerWidget(reg *registry.Registry, d Deps) error {
	return registerCommands(reg, "widget",
		command{
			desc: registry.Descriptor{Name: "widget.create", Context: registry.ContextMain,
				Description: "Create a widget blueprint",
				InputSchema: object([]string{"name"}, map[string]any{
					"name":      nonEmpty,
					"folder":    stringProp,
					"root_type": stringProp,
				})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in createWidgetInput) (*registry.Result, error) {
				w, err := d.Editor.CreateWidget(in.Name, in.Folder, in.RootType)
				if err != nil {
					return nil, hostError(err)
				}
				return registry.Value(map[string]any{"ok": true, "path": w.Path, "root": w.Root.Name}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "widget.add_child", Context: registry.ContextMain,
				Description: "Add a control to a widget",
				InputSchema: object([]string{"path", "control_type"}, map[string]any{
					"path":         nonEmpty,
					"parent_name":  stringProp,
					"control_type": nonEmpty,
					"name":         stringProp,
				})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in addChildInput) (*registry.Result, error) {
				node, err := d.Editor.AddChild(in.Path, in.ParentName, in.ControlType, in.Name)
				if err != nil {
					return nil, hostError(err)
				}
				return registry.Value(map[string]any{"ok": true, "path": in.Path, "name": node.Name, "type": node.Type}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "widget.set_property", Context: registry.ContextMain,
				Description: "Set properties on a widget control",
				InputSchema: object([]string{"path", "widget_name", "properties"}, map[string]any{
					"path":        nonEmpty,
					"widget_name": nonEmpty,
					"properties":  map[string]any{"type": "object", "minProperties": 1},
				})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in setWidgetPropertyInput) (*registry.Result, error) {
				applied, err := d.Editor.SetWidgetProperty(in.Path, in.WidgetName, in.Properties)
				if err != nil {
					return nil, hostError(err)
				}
				return registry.Value(map[string]any{
					"ok":          true,
					"path":        in.Path,
					"widget_name": in.WidgetName,
					"applied":     stringsToAny(applied),
				}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "widget.preview", Context: registry.ContextMain,
				Description: "Render a widget to PNG, returned as the attachment",
				InputSchema: object([]string{"path"}, map[string]any{
					"path":       nonEmpty,
					"resolution": resolution,
				})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in previewInput) (*registry.Result, error) {
				width, height := resolutionOf(in.Resolution)
				png, err := d.Editor.RenderWidget(in.Path, width, height)
				if err != nil {
					return nil, hostError(err)
				}
				width, height = frameOrDefault(width, height)
				return &registry.Result{
					Payload: map[string]any{
						"path":      in.Path,
						"width":     width,
						"height":    height,
						"mime_type": "image/png",
						"bytes":     len(png),
					},
					Attachment: png,
				}, nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "widget.get_hierarchy", Context: registry.ContextAny, Idempotent: true,
				Description: "Describe a widget's control tree",
				InputSchema: object([]string{"path"}, map[string]any{"path": nonEmpty})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in pathInput) (*registry.Result, error) {
				w, err := d.Editor.Widget(in.Path)
				if err != nil {
					return nil, hostError(err)
				}
				return registry.Value(map[string]any{"path": w.Path, "root": w.Hierarchy()}), nil
			}),
		},
	)
}
