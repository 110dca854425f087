package extensions

import (
	"context"
	"fmt"

	"github.com/morezero/agent-link/pkg/host"
	"github.com/morezero/agent-link/pkg/registry"
)

type queryAssetsInput struct {
	Scope struct {
		Type string `json:"type"`
		Path string `json:"path"`
	} `json:"scope"`
	Conditions struct {
		ClassFilter string `json:"class_filter"`
	} `json:"conditions"`
	SortBy string `json:"sort_by"`
	Limit  int    `json:"limit"`
}

type searchInput struct {
	Query       string `json:"query"`
	FilterClass string `json:"filter_class"`
	Limit       int    `json:"limit"`
}

type importInput struct {
	Files           []string `json:"files"`
	DestinationPath string   `json:"destination_path"`
	Overwrite       bool     `json:"overwrite"`
}

type moveInput struct {
	SourcePath      string `json:"source_path"`
	DestinationPath string `json:"destination_path"`
}

type deleteInput struct {
	Paths []string `json:"paths"`
}

const defaultQueryLimit = 50

func registerContent(reg *registry.Registry, d Deps) error {
	return registerCommands(reg, "content",
		command{
			desc: registry.Descriptor{Name: "level.query_assets", Context: registry.ContextAny, Idempotent: true,
				Description: "List content assets with optimisation hints",
				InputSchema: object(nil, map[string]any{
					"scope":      object(nil, map[string]any{"type": stringProp, "path": stringProp}),
					"conditions": object(nil, map[string]any{"class_filter": stringProp}),
					"sort_by":    map[string]any{"type": "string", "enum": []any{"", "name", "triangles", "disk_size"}},
					"limit":      limitProp,
				})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in queryAssetsInput) (*registry.Result, error) {
				if in.Limit == 0 {
					in.Limit = defaultQueryLimit
				}
				rows := d.Editor.QueryAssets(host.AssetQuery{
					Path:        in.Scope.Path,
					ClassFilter: in.Conditions.ClassFilter,
					SortBy:      in.SortBy,
					Limit:       in.Limit,
				})
				assets := make([]any, 0, len(rows))
				for _, r := range rows {
					assets = append(assets, map[string]any{
						"name": r.Name,
						"path": r.Path,
						"type": r.Class,
						"stats": map[string]any{
							"triangles":         r.Triangles,
							"disk_size":         r.DiskSize,
							"nanite":            r.Nanite,
							"missing_collision": r.MissingCollision,
							"shadow_casting":    r.ShadowCasting,
						},
						"suggestion": r.Suggestion,
					})
				}
				return registry.Value(map[string]any{"count": len(assets), "assets": assets}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "content.search", Context: registry.ContextAny, Idempotent: true,
				Description: "Find assets by name",
				InputSchema: object([]string{"query"}, map[string]any{
					"query":        stringProp,
					"filter_class": stringProp,
					"limit":        limitProp,
				})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in searchInput) (*registry.Result, error) {
				if in.Limit == 0 {
					in.Limit = defaultQueryLimit
				}
				hits := d.Editor.Search(in.Query, in.FilterClass, in.Limit)
				results := make([]any, 0, len(hits))
				for _, h := range hits {
					results = append(results, map[string]any{"name": h.Name, "path": h.Path, "class": h.Class})
				}
				return registry.Value(map[string]any{"ok": true, "count": len(results), "results": results}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "content.import", Context: registry.ContextMain,
				Description: "Import source files as assets",
				InputSchema: object([]string{"files"}, map[string]any{
					"files":            map[string]any{"type": "array", "items": nonEmpty, "minItems": 1},
					"destination_path": stringProp,
					"overwrite":        boolProp,
				})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in importInput) (*registry.Result, error) {
				imported, err := d.Editor.Import(in.Files, in.DestinationPath, in.Overwrite)
				if err != nil {
					return nil, hostError(err)
				}
				return registry.Value(map[string]any{
					"ok":              len(imported) > 0,
					"imported_count":  len(imported),
					"requested_count": len(in.Files),
					"imported":        stringsToAny(imported),
				}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "content.move", Context: registry.ContextMain,
				Description: "Move or rename an asset",
				InputSchema: object([]string{"source_path", "destination_path"}, map[string]any{
					"source_path":      nonEmpty,
					"destination_path": nonEmpty,
				})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in moveInput) (*registry.Result, error) {
				if err := d.Editor.Move(in.SourcePath, in.DestinationPath); err != nil {
					return nil, hostError(err)
				}
				return registry.Value(map[string]any{
					"ok":               true,
					"source_path":      in.SourcePath,
					"destination_path": in.DestinationPath,
					"message":          fmt.Sprintf("Moved %s to %s", in.SourcePath, in.DestinationPath),
				}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "content.delete", Context: registry.ContextMain,
				Description: "Delete assets",
				InputSchema: object([]string{"paths"}, map[string]any{
					"paths": map[string]any{"type": "array", "items": nonEmpty, "minItems": 1},
				})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in deleteInput) (*registry.Result, error) {
				deleted, failed := d.Editor.Delete(in.Paths)
				return registry.Value(map[string]any{
					"ok":              len(failed) == 0,
					"deleted_count":   len(deleted),
					"requested_count": len(in.Paths),
					"deleted":         stringsToAny(deleted),
					"failed":          stringsToAny(failed),
				}), nil
			}),
		},
	)
}
