package host

import (
	"path"
	"sort"

	"github.com/morezero/agent-link/pkg/events"
)

// Material is a material or material instance asset.
type Material struct {
	Path     string         `json:"path"`
	Parent   string         `json:"parent,omitempty"`
	Textures []string       `json:"textures"`
	Params   map[string]any `json:"params"`
	// Users lists the actors or meshes the material is applied to, by slot.
	Users map[string]int `json:"users,omitempty"`
}

func (m *Material) clone() *Material {
	cp := *m
	cp.Textures = append([]string(nil), m.Textures...)
	cp.Params = cloneMap(m.Params)
	cp.Users = make(map[string]int, len(m.Users))
	for k, v := range m.Users {
		cp.Users[k] = v
	}
	return &cp
}

// CreateMaterial creates a material from textures. When parent is set the
// result is an instance of it.
func (e *Editor) CreateMaterial(name, folder, parent string, textures []string) (*Material, error) {
	if len(textures) == 0 {
		return nil, invalid("at least one texture is required")
	}
	if folder == "" {
		folder = "/Game/Materials"
	}
	p := path.Join(normalizeFolder(folder), name)

	e.mu.Lock()
	if _, exists := e.assets[p]; exists {
		e.mu.Unlock()
		return nil, &ConflictError{Kind: "material", Name: p}
	}
	for _, t := range textures {
		if a, ok := e.assets[t]; !ok || a.Class != "Texture2D" {
			e.mu.Unlock()
			return nil, &NotFoundError{Kind: "texture", Name: t}
		}
	}
	if parent != "" {
		if _, ok := e.materials[parent]; !ok {
			if a, ok := e.assets[parent]; !ok || a.Class != "Material" {
				e.mu.Unlock()
				return nil, &NotFoundError{Kind: "material", Name: parent}
			}
		}
	}
	m := &Material{
		Path:     p,
		Parent:   parent,
		Textures: append([]string(nil), textures...),
		Params:   map[string]any{"Roughness": 0.5, "Metallic": 0.0},
		Users:    map[string]int{},
	}
	e.materials[p] = m
	class := "Material"
	if parent != "" {
		class = "MaterialInstanceConstant"
	}
	e.addAsset(p, class)
	out := m.clone()
	e.mu.Unlock()

	e.publish(events.TopicAssetChanged, map[string]any{"action": "created", "path": p, "class": class})
	return out, nil
}

// SetMaterialParams updates scalar, vector or texture parameters and
// returns the names applied.
func (e *Editor) SetMaterialParams(p string, params map[string]any) ([]string, error) {
	if len(params) == 0 {
		return nil, invalid("no parameters")
	}
	e.mu.Lock()
	m, ok := e.materials[p]
	if !ok {
		e.mu.Unlock()
		return nil, &NotFoundError{Kind: "material", Name: p}
	}
	applied := make([]string, 0, len(params))
	for k, v := range params {
		m.Params[k] = v
		applied = append(applied, k)
	}
	sort.Strings(applied)
	e.mu.Unlock()

	e.publish(events.TopicMaterialChanged, map[string]any{"path": p, "params": stringsToAny(applied)})
	return applied, nil
}

// ApplyMaterial assigns a material to targets at the given slot. Targets
// are asset paths; missing ones are reported back.
func (e *Editor) ApplyMaterial(p string, targets []string, slot int) (applied, missing []string, err error) {
	if slot < 0 {
		return nil, nil, invalid("negative slot index")
	}
	e.mu.Lock()
	m, ok := e.materials[p]
	if !ok {
		e.mu.Unlock()
		return nil, nil, &NotFoundError{Kind: "material", Name: p}
	}
	applied = make([]string, 0, len(targets))
	missing = make([]string, 0)
	for _, t := range targets {
		if _, ok := e.assets[t]; !ok {
			missing = append(missing, t)
			continue
		}
		m.Users[t] = slot
		applied = append(applied, t)
	}
	e.mu.Unlock()

	if len(applied) > 0 {
		e.publish(events.TopicMaterialChanged, map[string]any{"path": p, "applied_to": stringsToAny(applied), "slot": slot})
	}
	return applied, missing, nil
}

// Material returns a copy of the material at p.
func (e *Editor) Material(p string) (*Material, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.materials[p]
	if !ok {
		return nil, &NotFoundError{Kind: "material", Name: p}
	}
	return m.clone(), nil
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
