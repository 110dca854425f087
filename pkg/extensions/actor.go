package extensions

import (
	"context"

	"github.com/morezero/agent-link/pkg/host"
	"github.com/morezero/agent-link/pkg/registry"
)

type spawnItem struct {
	Preset    string          `json:"preset"`
	Class     string          `json:"class"`
	AssetID   string          `json:"asset_id"`
	Name      string          `json:"name"`
	Mesh      string          `json:"mesh"`
	Location  *host.Vector    `json:"location"`
	Rotation  *host.Rotator   `json:"rotation"`
	Scale     *host.Vector    `json:"scale"`
	Transform *host.Transform `json:"transform"`
}

func (s spawnItem) spec() host.SpawnSpec {
	spec := host.SpawnSpec{Preset: s.Preset, Class: s.Class, AssetID: s.AssetID, Name: s.Name, Mesh: s.Mesh}
	t := host.IdentityTransform()
	if s.Transform != nil {
		t = *s.Transform
	}
	if s.Location != nil {
		t.Location = *s.Location
	}
	if s.Rotation != nil {
		t.Rotation = *s.Rotation
	}
	if s.Scale != nil {
		t.Scale = *s.Scale
	}
	spec.Transform = &t
	return spec
}

type spawnInput struct {
	Preset    string          `json:"preset"`
	Class     string          `json:"class"`
	AssetID   string          `json:"asset_id"`
	Name      string          `json:"name"`
	Mesh      string          `json:"mesh"`
	Location  *host.Vector    `json:"location"`
	Rotation  *host.Rotator   `json:"rotation"`
	Scale     *host.Vector    `json:"scale"`
	Transform *host.Transform `json:"transform"`
	Instances []spawnItem     `json:"instances"`
	Batch     []spawnItem     `json:"batch"`
}

func (in spawnInput) item() spawnItem {
	return spawnItem{
		Preset: in.Preset, Class: in.Class, AssetID: in.AssetID, Name: in.Name, Mesh: in.Mesh,
		Location: in.Location, Rotation: in.Rotation, Scale: in.Scale, Transform: in.Transform,
	}
}

// legacyTarget is the pre-targets way of naming one actor.
type legacyTarget struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// selectorOf prefers targets and falls back to a single name or path.
func selectorOf(targets *host.ActorSelector, name, path string) host.ActorSelector {
	if targets != nil {
		return *targets
	}
	var s host.ActorSelector
	if name != "" {
		s.Names = []string{name}
	}
	if path != "" {
		s.Paths = []string{path}
	}
	return s
}

type targetsInput struct {
	Name    string              `json:"name"`
	Path    string              `json:"path"`
	Targets *host.ActorSelector `json:"targets"`
}

type destroyBatchInput struct {
	Batch []legacyTarget `json:"batch"`
}

type getInfoInput struct {
	Name            string              `json:"name"`
	Path            string              `json:"path"`
	Targets         *host.ActorSelector `json:"targets"`
	ReturnTransform *bool               `json:"return_transform"`
	ReturnBounds    bool                `json:"return_bounds"`
	Limit           int                 `json:"limit"`
}

type inspectInput struct {
	Name       string              `json:"name"`
	Path       string              `json:"path"`
	Targets    *host.ActorSelector `json:"targets"`
	Properties []string            `json:"properties"`
}

type setPropertyInput struct {
	Name       string              `json:"name"`
	Path       string              `json:"path"`
	Targets    *host.ActorSelector `json:"targets"`
	Properties map[string]any      `json:"properties"`
}

type setTransformInput struct {
	Name      string              `json:"name"`
	Path      string              `json:"path"`
	Targets   *host.ActorSelector `json:"targets"`
	Operation host.TransformOp    `json:"operation"`
}

var (
	vectorProp  = object(nil, map[string]any{"x": numberProp, "y": numberProp, "z": numberProp})
	rotatorProp = object(nil, map[string]any{"pitch": numberProp, "yaw": numberProp, "roll": numberProp})
	numberProp  = map[string]any{"type": "number"}
	spawnProps  = map[string]any{
		"preset":   stringProp,
		"class":    stringProp,
		"asset_id": stringProp,
		"name":     stringProp,
		"mesh":     stringProp,
		"location": vectorProp,
		"rotation": rotatorProp,
		"scale":    vectorProp,
		"transform": object(nil, map[string]any{
			"location": vectorProp, "rotation": rotatorProp, "scale": vectorProp,
		}),
	}
	targetsProp = object(nil, map[string]any{
		"names": stringArray,
		"paths": stringArray,
		"filter": object(nil, map[string]any{
			"class":           stringProp,
			"name_pattern":    stringProp,
			"exclude_classes": stringArray,
		}),
	})
	deltaProp = object(nil, map[string]any{"location": vectorProp, "rotation": rotatorProp, "scale": vectorProp})
)

func targetProps(extra map[string]any) map[string]any {
	props := map[string]any{"targets": targetsProp, "name": stringProp, "path": stringProp}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

const defaultActorLimit = 50

func registerActor(reg *registry.Registry, d Deps) error {
	spawnBatch := func(items []spawnItem) *registry.Result {
		specs := make([]host.SpawnSpec, len(items))
		for i, it := range items {
			specs[i] = it.spec()
		}
		created, failed := d.Editor.SpawnActors(specs)
		rows := make([]any, 0, len(created))
		for _, a := range created {
			rows = append(rows, actorSummary(a))
		}
		out := map[string]any{"count": len(created), "created": rows}
		if len(failed) > 0 {
			fails := make([]any, 0, len(failed))
			for _, f := range failed {
				fails = append(fails, map[string]any{"index": f.Index, "error": f.Error})
			}
			out["failed"] = fails
		}
		return registry.Value(out)
	}
	items := map[string]any{"type": "array", "items": object(nil, spawnProps), "minItems": 1}

	return registerCommands(reg, "actor",
		command{
			desc: registry.Descriptor{Name: "actor.spawn", Context: registry.ContextMain,
				Description: "Place an actor from a preset, class or asset",
				InputSchema: object(nil, mergeProps(spawnProps, map[string]any{"instances": items, "batch": items}))},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in spawnInput) (*registry.Result, error) {
				if len(in.Instances) > 0 {
					return spawnBatch(in.Instances), nil
				}
				if len(in.Batch) > 0 {
					return spawnBatch(in.Batch), nil
				}
				spec := in.item().spec()
				a, err := d.Editor.SpawnActor(spec)
				if err != nil {
					return nil, hostError(err)
				}
				out := actorSummary(a)
				if spec.AssetID != "" {
					out["asset_id"] = spec.AssetID
				}
				if spec.Preset != "" {
					out["preset"] = spec.Preset
				}
				return registry.Value(out), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "actor.spawn_batch", Context: registry.ContextMain,
				Description: "Place several actors in one call",
				InputSchema: object([]string{"batch"}, map[string]any{"batch": items})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in spawnInput) (*registry.Result, error) {
				return spawnBatch(in.Batch), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "actor.destroy", Context: registry.ContextMain,
				Description: "Remove actors by name, path or filter",
				InputSchema: object(nil, targetProps(nil))},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in targetsInput) (*registry.Result, error) {
				sel := selectorOf(in.Targets, in.Name, in.Path)
				deleted, err := d.Editor.DestroyActors(sel)
				if err != nil {
					return nil, hostError(err)
				}
				return registry.Value(map[string]any{
					"count":          len(deleted),
					"target_count":   len(sel.Names) + len(sel.Paths),
					"deleted_actors": actorSummaries(deleted),
				}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "actor.destroy_batch", Context: registry.ContextMain,
				Description: "Remove a list of actors",
				InputSchema: object([]string{"batch"}, map[string]any{
					"batch": map[string]any{"type": "array", "minItems": 1,
						"items": object(nil, map[string]any{"name": stringProp, "path": stringProp})},
				})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in destroyBatchInput) (*registry.Result, error) {
				var sel host.ActorSelector
				for _, t := range in.Batch {
					s := selectorOf(nil, t.Name, t.Path)
					sel.Names = append(sel.Names, s.Names...)
					sel.Paths = append(sel.Paths, s.Paths...)
				}
				deleted, err := d.Editor.DestroyActors(sel)
				if err != nil {
					return nil, hostError(err)
				}
				return registry.Value(map[string]any{
					"count":          len(deleted),
					"target_count":   len(in.Batch),
					"deleted_actors": actorSummaries(deleted),
				}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "actor.get", Context: registry.ContextAny, Idempotent: true,
				Description: "Describe actors with their transforms",
				InputSchema: object(nil, targetProps(nil))},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in targetsInput) (*registry.Result, error) {
				actors, err := d.Editor.Actors(selectorOf(in.Targets, in.Name, in.Path))
				if err != nil {
					return nil, hostError(err)
				}
				if in.Targets == nil && len(actors) == 1 {
					return registry.Value(actors[0].Info(true)), nil
				}
				return registry.Value(map[string]any{"count": len(actors), "actors": actorInfos(actors, true)}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "actor.get_info", Context: registry.ContextAny, Idempotent: true,
				Description: "Describe matching actors, up to a limit",
				InputSchema: object(nil, targetProps(map[string]any{
					"return_transform": boolProp,
					"return_bounds":    boolProp,
					"limit":            limitProp,
				}))},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in getInfoInput) (*registry.Result, error) {
				actors, err := d.Editor.Actors(selectorOf(in.Targets, in.Name, in.Path))
				if err != nil {
					return nil, hostError(err)
				}
				if in.Limit == 0 {
					in.Limit = defaultActorLimit
				}
				total := len(actors)
				if len(actors) > in.Limit {
					actors = actors[:in.Limit]
				}
				withTransform := in.ReturnTransform == nil || *in.ReturnTransform
				infos := actorInfos(actors, withTransform)
				if in.ReturnBounds {
					for i, a := range actors {
						infos[i].(map[string]any)["bounds"] = actorBounds(a)
					}
				}
				return registry.Value(map[string]any{"count": len(infos), "total_found": total, "actors": infos}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "actor.inspect", Context: registry.ContextAny, Idempotent: true,
				Description: "Read actor properties",
				InputSchema: object(nil, targetProps(map[string]any{"properties": stringArray}))},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in inspectInput) (*registry.Result, error) {
				actors, err := d.Editor.Actors(selectorOf(in.Targets, in.Name, in.Path))
				if err != nil {
					return nil, hostError(err)
				}
				names := in.Properties
				if len(names) == 0 {
					names = host.DefaultInspectProps
				}
				rows := make([]any, 0, len(actors))
				for _, a := range actors {
					row := a.Info(true)
					props, unknown := a.Props(names)
					row["properties"] = props
					if len(unknown) > 0 {
						row["unknown_properties"] = stringsToAny(unknown)
					}
					rows = append(rows, row)
				}
				return registry.Value(map[string]any{"count": len(rows), "actors": rows}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "actor.set_transform", Context: registry.ContextMain,
				Description: "Set, add to or scale actor transforms",
				InputSchema: object([]string{"operation"}, targetProps(map[string]any{
					"operation": object(nil, map[string]any{
						"space":         map[string]any{"type": "string", "enum": []any{"world", "local"}},
						"snap_to_floor": boolProp,
						"set":           deltaProp,
						"add":           deltaProp,
						"multiply":      deltaProp,
					}),
				}))},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in setTransformInput) (*registry.Result, error) {
				actors, err := d.Editor.SetActorTransform(selectorOf(in.Targets, in.Name, in.Path), in.Operation)
				if err != nil {
					return nil, hostError(err)
				}
				rows := make([]any, 0, len(actors))
				for _, a := range actors {
					info := a.Info(true)
					delete(info, "class")
					delete(info, "folder_path")
					delete(info, "mesh")
					rows = append(rows, info)
				}
				return registry.Value(map[string]any{"count": len(rows), "actors": rows}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "actor.set_property", Context: registry.ContextMain,
				Description: "Write actor properties",
				InputSchema: object([]string{"properties"}, targetProps(map[string]any{
					"properties": map[string]any{"type": "object", "minProperties": 1},
				}))},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in setPropertyInput) (*registry.Result, error) {
				results, err := d.Editor.SetActorProperties(selectorOf(in.Targets, in.Name, in.Path), in.Properties)
				if err != nil {
					return nil, hostError(err)
				}
				rows := make([]any, 0, len(results))
				for _, r := range results {
					row := map[string]any{"name": r.Name, "path": r.Path, "updated": r.Updated, "errors": issues(r.Errors)}
					if len(r.Warnings) > 0 {
						row["warnings"] = issues(r.Warnings)
					}
					rows = append(rows, row)
				}
				return registry.Value(map[string]any{"count": len(rows), "actors": rows}), nil
			}),
		},
	)
}

func mergeProps(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func actorSummary(a *host.Actor) map[string]any {
	return map[string]any{"name": a.Name, "path": a.Path, "class": a.Class}
}

func actorSummaries(actors []*host.Actor) []any {
	out := make([]any, 0, len(actors))
	for _, a := range actors {
		out = append(out, actorSummary(a))
	}
	return out
}

func actorInfos(actors []*host.Actor, withTransform bool) []any {
	out := make([]any, 0, len(actors))
	for _, a := range actors {
		out = append(out, a.Info(withTransform))
	}
	return out
}

// actorBounds approximates a box of 100 units scaled by the actor.
func actorBounds(a *host.Actor) map[string]any {
	half := map[string]any{"x": 50 * a.Scale.X, "y": 50 * a.Scale.Y, "z": 50 * a.Scale.Z}
	return map[string]any{
		"origin": map[string]any{"x": a.Location.X, "y": a.Location.Y, "z": a.Location.Z},
		"extent": half,
	}
}

func issues(in []host.PropertyIssue) []any {
	out := make([]any, 0, len(in))
	for _, i := range in {
		row := map[string]any{"property": i.Property, "message": i.Message}
		if i.Requested != "" {
			row["requested"] = i.Requested
			row["actual"] = i.Actual
		}
		out = append(out, row)
	}
	return out
}
