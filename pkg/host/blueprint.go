package host

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/morezero/agent-link/pkg/events"
)

// Component is a node of a blueprint's component tree.
type Component struct {
	Name       string         `json:"component_name"`
	Type       string         `json:"component_type"`
	AttachTo   string         `json:"attach_to,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Blueprint is a scripted class asset.
type Blueprint struct {
	Path        string         `json:"path"`
	ParentClass string         `json:"parent_class"`
	Components  []*Component   `json:"components"`
	Defaults    map[string]any `json:"defaults,omitempty"`
	// Dirty is set by edits and cleared by a successful compile.
	Dirty     bool `json:"dirty"`
	Revisions int  `json:"revisions"`
}

func (b *Blueprint) component(name string) *Component {
	for _, c := range b.Components {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (b *Blueprint) clone() *Blueprint {
	cp := *b
	cp.Components = make([]*Component, len(b.Components))
	for i, c := range b.Components {
		cc := *c
		cc.Properties = cloneMap(c.Properties)
		cp.Components[i] = &cc
	}
	cp.Defaults = cloneMap(b.Defaults)
	return &cp
}

var blueprintParents = map[string]bool{
	"Actor": true, "Pawn": true, "Character": true, "PlayerController": true,
	"GameModeBase": true, "ActorComponent": true, "SceneComponent": true,
}

var componentTypes = map[string]bool{
	"StaticMeshComponent": true, "SkeletalMeshComponent": true, "SceneComponent": true,
	"PointLightComponent": true, "SpotLightComponent": true, "BoxComponent": true,
	"SphereComponent": true, "CapsuleComponent": true, "AudioComponent": true,
	"CameraComponent": true, "SpringArmComponent": true,
}

// CreateBlueprint creates a blueprint asset named name under folder.
func (e *Editor) CreateBlueprint(name, parentClass, folder string) (*Blueprint, error) {
	if parentClass == "" {
		parentClass = "Actor"
	}
	if !blueprintParents[parentClass] {
		return nil, invalid("unsupported parent class %q", parentClass)
	}
	if folder == "" {
		folder = "/Game/Blueprints"
	}
	p := path.Join(normalizeFolder(folder), name)

	e.mu.Lock()
	if _, exists := e.assets[p]; exists {
		e.mu.Unlock()
		return nil, &ConflictError{Kind: "blueprint", Name: p}
	}
	bp := &Blueprint{
		Path:        p,
		ParentClass: parentClass,
		Components:  []*Component{{Name: "DefaultSceneRoot", Type: "SceneComponent"}},
		Defaults:    map[string]any{},
		Dirty:       true,
	}
	e.blueprints[p] = bp
	e.addAsset(p, "Blueprint")
	out := bp.clone()
	e.mu.Unlock()

	e.publish(events.TopicAssetChanged, map[string]any{"action": "created", "path": p, "class": "Blueprint"})
	return out, nil
}

// AddComponent adds a component to a blueprint. attachTo defaults to the
// root component.
func (e *Editor) AddComponent(bpPath, componentType, componentName, attachTo string, props map[string]any) (*Blueprint, error) {
	if !componentTypes[componentType] {
		return nil, invalid("unsupported component type %q", componentType)
	}
	e.mu.Lock()
	bp, err := e.blueprintLocked(bpPath)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if bp.component(componentName) != nil {
		e.mu.Unlock()
		return nil, &ConflictError{Kind: "component", Name: componentName}
	}
	if attachTo == "" {
		attachTo = bp.Components[0].Name
	} else if bp.component(attachTo) == nil {
		e.mu.Unlock()
		return nil, &NotFoundError{Kind: "component", Name: attachTo}
	}
	bp.Components = append(bp.Components, &Component{
		Name: componentName, Type: componentType, AttachTo: attachTo, Properties: cloneMap(props),
	})
	bp.Dirty = true
	bp.Revisions++
	out := bp.clone()
	e.mu.Unlock()

	e.publish(events.TopicAssetChanged, map[string]any{"action": "modified", "path": out.Path, "class": "Blueprint"})
	return out, nil
}

// SetBlueprintProperty sets class defaults, or a component's properties
// when component is not empty. It returns the property names applied.
func (e *Editor) SetBlueprintProperty(bpPath, component string, props map[string]any) ([]string, error) {
	if len(props) == 0 {
		return nil, invalid("no properties")
	}
	e.mu.Lock()
	bp, err := e.blueprintLocked(bpPath)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	target := bp.Defaults
	if component != "" {
		c := bp.component(component)
		if c == nil {
			e.mu.Unlock()
			return nil, &NotFoundError{Kind: "component", Name: component}
		}
		if c.Properties == nil {
			c.Properties = map[string]any{}
		}
		target = c.Properties
	}
	applied := make([]string, 0, len(props))
	for k, v := range props {
		target[k] = v
		applied = append(applied, k)
	}
	sort.Strings(applied)
	bp.Dirty = true
	bp.Revisions++
	e.mu.Unlock()

	e.publish(events.TopicAssetChanged, map[string]any{"action": "modified", "path": bpPath, "class": "Blueprint"})
	return applied, nil
}

// CompileResult is the outcome of compiling a blueprint.
type CompileResult struct {
	Path     string   `json:"path"`
	Status   string   `json:"status"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// CompileBlueprint compiles a blueprint and raises blueprint.compiled.
// Components attached to a missing parent are compile errors; lights with
// no intensity are warnings.
func (e *Editor) CompileBlueprint(bpPath string) (CompileResult, error) {
	e.mu.Lock()
	bp, err := e.blueprintLocked(bpPath)
	if err != nil {
		e.mu.Unlock()
		return CompileResult{}, err
	}
	res := CompileResult{Path: bp.Path, Errors: []string{}, Warnings: []string{}}
	for _, c := range bp.Components {
		if c.AttachTo != "" && bp.component(c.AttachTo) == nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s is attached to missing component %s", c.Name, c.AttachTo))
		}
		if strings.HasSuffix(c.Type, "LightComponent") {
			if _, ok := c.Properties["Intensity"]; !ok {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s has no Intensity set", c.Name))
			}
		}
	}
	switch {
	case len(res.Errors) > 0:
		res.Status = "error"
	case len(res.Warnings) > 0:
		res.Status = "warning"
		bp.Dirty = false
	default:
		res.Status = "ok"
		bp.Dirty = false
	}
	e.mu.Unlock()

	e.publish(events.TopicBlueprintCompiled, map[string]any{
		"path":     res.Path,
		"status":   res.Status,
		"errors":   len(res.Errors),
		"warnings": len(res.Warnings),
	})
	if res.Status == "error" {
		for _, msg := range res.Errors {
			e.AppendLog("BlueprintLog", SeverityError, fmt.Sprintf("%s: %s", path.Base(res.Path), msg))
		}
	}
	return res, nil
}

// Blueprint returns a copy of the blueprint at p.
func (e *Editor) Blueprint(p string) (*Blueprint, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	bp, err := e.blueprintLocked(p)
	if err != nil {
		return nil, err
	}
	return bp.clone(), nil
}

// blueprintLocked accepts a full path or a bare blueprint name.
func (e *Editor) blueprintLocked(ref string) (*Blueprint, error) {
	if bp, ok := e.blueprints[ref]; ok {
		return bp, nil
	}
	if !strings.Contains(ref, "/") {
		var found *Blueprint
		for p, bp := range e.blueprints {
			if path.Base(p) == ref {
				if found != nil {
					return nil, invalid("blueprint name %q is ambiguous", ref)
				}
				found = bp
			}
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, &NotFoundError{Kind: "blueprint", Name: ref}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
