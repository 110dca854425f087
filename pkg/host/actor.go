package host

import (
	"fmt"
	"math"
	"path"
	"sort"
	"strings"

	"github.com/morezero/agent-link/pkg/events"
)

// Vector is a location or scale in world units.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Rotator is an orientation in degrees.
type Rotator struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Transform places an actor in the level.
type Transform struct {
	Location Vector  `json:"location"`
	Rotation Rotator `json:"rotation"`
	Scale    Vector  `json:"scale"`
}

// IdentityTransform is the origin with unit scale.
func IdentityTransform() Transform {
	return Transform{Scale: Vector{X: 1, Y: 1, Z: 1}}
}

// Actor is an object placed in the open level.
type Actor struct {
	Name            string   `json:"name"`
	Path            string   `json:"path"`
	Class           string   `json:"class"`
	Mesh            string   `json:"mesh,omitempty"`
	Folder          string   `json:"folder_path"`
	Mobility        string   `json:"mobility"`
	Hidden          bool     `json:"hidden"`
	HiddenInEditor  bool     `json:"hidden_in_editor"`
	SimulatePhysics bool     `json:"simulate_physics"`
	Collision       string   `json:"collision_profile"`
	Tags            []string `json:"tags"`
	Transform
}

func (a *Actor) clone() *Actor {
	cp := *a
	cp.Tags = append([]string(nil), a.Tags...)
	return &cp
}

func (a *Actor) hasPrimitive() bool {
	return a.Class == "StaticMeshActor" || strings.HasSuffix(a.Class, "_C")
}

// Info renders the actor for get and get_info replies.
func (a *Actor) Info(withTransform bool) map[string]any {
	out := map[string]any{
		"name":        a.Name,
		"path":        a.Path,
		"class":       a.Class,
		"folder_path": a.Folder,
	}
	if a.Mesh != "" {
		out["mesh"] = a.Mesh
	}
	if withTransform {
		out["location"] = vectorMap(a.Location)
		out["rotation"] = map[string]any{"pitch": a.Rotation.Pitch, "yaw": a.Rotation.Yaw, "roll": a.Rotation.Roll}
		out["scale"] = vectorMap(a.Scale)
	}
	return out
}

// DefaultInspectProps are reported when actor.inspect names none.
var DefaultInspectProps = []string{"Mobility", "bHidden", "CollisionProfileName", "Tags"}

// Props reads the named properties. Names the actor does not have are
// returned in unknown.
func (a *Actor) Props(names []string) (props map[string]any, unknown []string) {
	props = make(map[string]any, len(names))
	for _, n := range names {
		switch n {
		case "ActorLabel":
			props[n] = a.Name
		case "FolderPath":
			props[n] = a.Folder
		case "Mobility":
			props[n] = a.Mobility
		case "bHidden":
			props[n] = a.Hidden
		case "bHiddenInEditor":
			props[n] = a.HiddenInEditor
		case "SimulatePhysics":
			props[n] = a.SimulatePhysics
		case "CollisionProfileName":
			props[n] = a.Collision
		case "Tags":
			props[n] = stringsToAny(a.Tags)
		case "StaticMesh":
			if a.Mesh == "" {
				unknown = append(unknown, n)
				continue
			}
			props[n] = a.Mesh
		default:
			unknown = append(unknown, n)
		}
	}
	return props, unknown
}

func vectorMap(v Vector) map[string]any {
	return map[string]any{"x": v.X, "y": v.Y, "z": v.Z}
}

type spawnPreset struct {
	class string
	mesh  string
}

var spawnPresets = map[string]spawnPreset{
	"cube":              {"StaticMeshActor", "/Engine/BasicShapes/Cube.Cube"},
	"sphere":            {"StaticMeshActor", "/Engine/BasicShapes/Sphere.Sphere"},
	"cylinder":          {"StaticMeshActor", "/Engine/BasicShapes/Cylinder.Cylinder"},
	"cone":              {"StaticMeshActor", "/Engine/BasicShapes/Cone.Cone"},
	"plane":             {"StaticMeshActor", "/Engine/BasicShapes/Plane.Plane"},
	"point_light":       {"PointLight", ""},
	"spot_light":        {"SpotLight", ""},
	"directional_light": {"DirectionalLight", ""},
	"rect_light":        {"RectLight", ""},
	"camera":            {"CameraActor", ""},
}

var spawnableClasses = map[string]bool{
	"StaticMeshActor": true, "PointLight": true, "SpotLight": true, "DirectionalLight": true,
	"RectLight": true, "SkyLight": true, "CameraActor": true, "PlayerStart": true,
	"TriggerBox": true, "ExponentialHeightFog": true,
}

// SpawnSpec describes one actor to spawn. Exactly one of AssetID, Preset
// or Class picks what is spawned, in that order of precedence.
type SpawnSpec struct {
	Preset  string `json:"preset"`
	Class   string `json:"class"`
	AssetID string `json:"asset_id"`
	Name    string `json:"name"`
	// Mesh overrides the static mesh of mesh actors.
	Mesh      string     `json:"mesh"`
	Transform *Transform `json:"transform"`
}

// SpawnFailure reports a spec that did not produce an actor.
type SpawnFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// SpawnActors places actors in the level. Specs fail independently.
func (e *Editor) SpawnActors(specs []SpawnSpec) ([]*Actor, []SpawnFailure) {
	created := make([]*Actor, 0, len(specs))
	var failed []SpawnFailure
	e.mu.Lock()
	for i, spec := range specs {
		a, err := e.spawnLocked(spec)
		if err != nil {
			failed = append(failed, SpawnFailure{Index: i, Error: err.Error()})
			continue
		}
		created = append(created, a.clone())
	}
	e.mu.Unlock()

	for _, a := range created {
		e.publish(events.TopicActorChanged, map[string]any{"action": "spawned", "name": a.Name, "path": a.Path, "class": a.Class})
	}
	return created, failed
}

// SpawnActor places a single actor.
func (e *Editor) SpawnActor(spec SpawnSpec) (*Actor, error) {
	e.mu.Lock()
	a, err := e.spawnLocked(spec)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	out := a.clone()
	e.mu.Unlock()

	e.publish(events.TopicActorChanged, map[string]any{"action": "spawned", "name": out.Name, "path": out.Path, "class": out.Class})
	return out, nil
}

func (e *Editor) spawnLocked(spec SpawnSpec) (*Actor, error) {
	class, mesh, err := e.resolveSpawnLocked(spec)
	if err != nil {
		return nil, err
	}
	if spec.Mesh != "" && class == "StaticMeshActor" {
		if !e.isMeshLocked(spec.Mesh) {
			return nil, &NotFoundError{Kind: "static mesh", Name: spec.Mesh}
		}
		mesh = spec.Mesh
	}
	base := spec.Name
	if base == "" {
		base = class
		if spec.Preset != "" {
			base = presetLabel(spec.Preset)
		}
	}
	t := IdentityTransform()
	if spec.Transform != nil {
		t = *spec.Transform
		if t.Scale == (Vector{}) {
			t.Scale = Vector{X: 1, Y: 1, Z: 1}
		}
	}
	a := &Actor{
		Name:      e.uniqueLabelLocked(base),
		Class:     class,
		Mesh:      mesh,
		Mobility:  defaultMobility(class),
		Collision: "NoCollision",
		Tags:      []string{},
		Transform: t,
	}
	if a.hasPrimitive() {
		a.Collision = "BlockAll"
	}
	a.Path = e.actorPath(a.Name)
	e.actors[a.Name] = a
	return a, nil
}

func (e *Editor) resolveSpawnLocked(spec SpawnSpec) (class, mesh string, err error) {
	switch {
	case spec.AssetID != "":
		if p, ok := spawnPresets[spec.AssetID]; ok {
			return p.class, p.mesh, nil
		}
		a, ok := e.assets[spec.AssetID]
		if !ok {
			return "", "", &NotFoundError{Kind: "asset", Name: spec.AssetID}
		}
		switch a.Class {
		case "StaticMesh":
			return "StaticMeshActor", a.Path, nil
		case "Blueprint":
			return path.Base(a.Path) + "_C", "", nil
		default:
			return "", "", invalid("asset %s of class %s cannot be placed in a level", a.Path, a.Class)
		}
	case spec.Preset != "":
		p, ok := spawnPresets[spec.Preset]
		if !ok {
			return "", "", &NotFoundError{Kind: "preset", Name: spec.Preset}
		}
		return p.class, p.mesh, nil
	case spec.Class != "":
		class := spec.Class
		if i := strings.LastIndex(class, "."); strings.HasPrefix(class, "/") && i >= 0 {
			class = class[i+1:]
		}
		if spawnableClasses[class] {
			return class, "", nil
		}
		if strings.HasSuffix(class, "_C") {
			for p := range e.blueprints {
				if path.Base(p)+"_C" == class {
					return class, "", nil
				}
			}
		}
		return "", "", &NotFoundError{Kind: "class", Name: spec.Class}
	default:
		return "", "", invalid("one of asset_id, preset or class is required")
	}
}

func (e *Editor) isMeshLocked(p string) bool {
	if strings.HasPrefix(p, "/Engine/BasicShapes/") {
		return true
	}
	a, ok := e.assets[p]
	return ok && a.Class == "StaticMesh"
}

func presetLabel(preset string) string {
	parts := strings.Split(preset, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "")
}

func defaultMobility(class string) string {
	switch class {
	case "StaticMeshActor":
		return "Static"
	case "PointLight", "SpotLight", "DirectionalLight", "RectLight", "SkyLight":
		return "Stationary"
	default:
		return "Movable"
	}
}

// uniqueLabelLocked returns base, or base_N when base is taken.
func (e *Editor) uniqueLabelLocked(base string) string {
	if _, taken := e.actors[base]; !taken {
		return base
	}
	for n := 1; ; n++ {
		label := fmt.Sprintf("%s_%d", base, n)
		if _, taken := e.actors[label]; !taken {
			return label
		}
	}
}

func (e *Editor) actorPath(name string) string {
	return e.level + ":PersistentLevel." + name
}

// levelName turns a map package like /Game/Maps/Main into its object path.
func levelName(mapPath string) string {
	if mapPath == "" {
		mapPath = "/Game/Maps/Untitled"
	}
	return mapPath + "." + path.Base(mapPath)
}

func (e *Editor) seedLevel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	floor := IdentityTransform()
	floor.Scale = Vector{X: 10, Y: 10, Z: 1}
	sun := IdentityTransform()
	sun.Rotation = Rotator{Pitch: -45, Yaw: 30}
	start := IdentityTransform()
	start.Location = Vector{Z: 100}
	for _, spec := range []SpawnSpec{
		{Preset: "plane", Name: "Floor", Transform: &floor},
		{Preset: "directional_light", Name: "Sun", Transform: &sun},
		{Class: "PlayerStart", Name: "PlayerStart", Transform: &start},
	} {
		if _, err := e.spawnLocked(spec); err != nil {
			panic(fmt.Sprintf("%s - seed level: %v", logPrefix, err))
		}
	}
}

// ActorFilter narrows a selection. An empty filter matches every actor.
type ActorFilter struct {
	// Class matches actors whose class contains it, ignoring case.
	Class string `json:"class"`
	// NamePattern is a shell pattern over actor labels.
	NamePattern    string   `json:"name_pattern"`
	ExcludeClasses []string `json:"exclude_classes"`
}

func (f *ActorFilter) match(a *Actor) bool {
	if f.Class != "" && !strings.Contains(strings.ToLower(a.Class), strings.ToLower(f.Class)) {
		return false
	}
	if f.NamePattern != "" {
		if ok, _ := path.Match(f.NamePattern, a.Name); !ok {
			return false
		}
	}
	for _, ex := range f.ExcludeClasses {
		if strings.EqualFold(a.Class, ex) {
			return false
		}
	}
	return true
}

// ActorSelector picks actors by label, by path, or by filter. When names
// or paths are given the filter narrows them; otherwise it selects from
// the whole level.
type ActorSelector struct {
	Names  []string     `json:"names"`
	Paths  []string     `json:"paths"`
	Filter *ActorFilter `json:"filter"`
}

// Empty reports whether the selector names nothing.
func (s ActorSelector) Empty() bool {
	return len(s.Names) == 0 && len(s.Paths) == 0 && s.Filter == nil
}

// selectLocked resolves s to actors sorted by label. No match is a
// not-found error.
func (e *Editor) selectLocked(s ActorSelector) ([]*Actor, error) {
	if s.Empty() {
		return nil, invalid("targets must name actors or carry a filter")
	}
	if s.Filter != nil && s.Filter.NamePattern != "" {
		if _, err := path.Match(s.Filter.NamePattern, ""); err != nil {
			return nil, invalid("bad name_pattern %q", s.Filter.NamePattern)
		}
	}
	picked := make(map[string]*Actor)
	if len(s.Names) > 0 || len(s.Paths) > 0 {
		for _, n := range s.Names {
			if a, ok := e.actors[n]; ok {
				picked[a.Name] = a
			}
		}
		for _, p := range s.Paths {
			for _, a := range e.actors {
				if a.Path == p {
					picked[a.Name] = a
				}
			}
		}
	} else {
		for _, a := range e.actors {
			picked[a.Name] = a
		}
	}
	out := make([]*Actor, 0, len(picked))
	for _, a := range picked {
		if s.Filter == nil || s.Filter.match(a) {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return nil, &NotFoundError{Kind: "actor", Name: s.describe()}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s ActorSelector) describe() string {
	parts := append(append([]string(nil), s.Names...), s.Paths...)
	if s.Filter != nil {
		parts = append(parts, "filter")
	}
	return strings.Join(parts, ",")
}

// Actors returns copies of the selected actors.
func (e *Editor) Actors(s ActorSelector) ([]*Actor, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sel, err := e.selectLocked(s)
	if err != nil {
		return nil, err
	}
	out := make([]*Actor, len(sel))
	for i, a := range sel {
		out[i] = a.clone()
	}
	return out, nil
}

// ActorCount is the number of actors in the level.
func (e *Editor) ActorCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.actors)
}

// DestroyActors removes the selected actors and returns what was removed.
func (e *Editor) DestroyActors(s ActorSelector) ([]*Actor, error) {
	e.mu.Lock()
	sel, err := e.selectLocked(s)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	for _, a := range sel {
		delete(e.actors, a.Name)
	}
	e.mu.Unlock()

	for _, a := range sel {
		e.publish(events.TopicActorChanged, map[string]any{"action": "destroyed", "name": a.Name, "path": a.Path, "class": a.Class})
	}
	return sel, nil
}

// VectorPatch changes only the components that are set.
type VectorPatch struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

// RotatorPatch changes only the components that are set.
type RotatorPatch struct {
	Pitch *float64 `json:"pitch"`
	Yaw   *float64 `json:"yaw"`
	Roll  *float64 `json:"roll"`
}

// TransformDelta groups the parts of one transform operation.
type TransformDelta struct {
	Location *VectorPatch  `json:"location"`
	Rotation *RotatorPatch `json:"rotation"`
	Scale    *VectorPatch  `json:"scale"`
}

// TransformOp applies set, then add, then multiply. In local space added
// locations are rotated by the actor's yaw.
type TransformOp struct {
	Space       string          `json:"space"`
	SnapToFloor bool            `json:"snap_to_floor"`
	Set         *TransformDelta `json:"set"`
	Add         *TransformDelta `json:"add"`
	Multiply    *TransformDelta `json:"multiply"`
}

func (op TransformOp) validate() error {
	switch strings.ToLower(op.Space) {
	case "", "world", "local":
	default:
		return invalid("space must be world or local, got %q", op.Space)
	}
	if op.Set == nil && op.Add == nil && op.Multiply == nil && !op.SnapToFloor {
		return invalid("operation needs set, add, multiply or snap_to_floor")
	}
	return nil
}

func (op TransformOp) apply(t Transform) Transform {
	pick := func(p *float64, cur float64) float64 {
		if p == nil {
			return cur
		}
		return *p
	}
	plus := func(p *float64) float64 {
		if p == nil {
			return 0
		}
		return *p
	}
	times := func(p *float64) float64 {
		if p == nil {
			return 1
		}
		return *p
	}
	if d := op.Set; d != nil {
		if v := d.Location; v != nil {
			t.Location = Vector{pick(v.X, t.Location.X), pick(v.Y, t.Location.Y), pick(v.Z, t.Location.Z)}
		}
		if r := d.Rotation; r != nil {
			t.Rotation = Rotator{pick(r.Pitch, t.Rotation.Pitch), pick(r.Yaw, t.Rotation.Yaw), pick(r.Roll, t.Rotation.Roll)}
		}
		if v := d.Scale; v != nil {
			t.Scale = Vector{pick(v.X, t.Scale.X), pick(v.Y, t.Scale.Y), pick(v.Z, t.Scale.Z)}
		}
	}
	if d := op.Add; d != nil {
		if v := d.Location; v != nil {
			dx, dy := plus(v.X), plus(v.Y)
			if strings.EqualFold(op.Space, "local") {
				yaw := t.Rotation.Yaw * math.Pi / 180
				dx, dy = dx*math.Cos(yaw)-dy*math.Sin(yaw), dx*math.Sin(yaw)+dy*math.Cos(yaw)
			}
			t.Location.X += dx
			t.Location.Y += dy
			t.Location.Z += plus(v.Z)
		}
		if r := d.Rotation; r != nil {
			t.Rotation.Pitch += plus(r.Pitch)
			t.Rotation.Yaw += plus(r.Yaw)
			t.Rotation.Roll += plus(r.Roll)
		}
		if v := d.Scale; v != nil {
			t.Scale.X += plus(v.X)
			t.Scale.Y += plus(v.Y)
			t.Scale.Z += plus(v.Z)
		}
	}
	if d := op.Multiply; d != nil {
		if v := d.Location; v != nil {
			t.Location = Vector{t.Location.X * times(v.X), t.Location.Y * times(v.Y), t.Location.Z * times(v.Z)}
		}
		if r := d.Rotation; r != nil {
			t.Rotation = Rotator{t.Rotation.Pitch * times(r.Pitch), t.Rotation.Yaw * times(r.Yaw), t.Rotation.Roll * times(r.Roll)}
		}
		if v := d.Scale; v != nil {
			t.Scale = Vector{t.Scale.X * times(v.X), t.Scale.Y * times(v.Y), t.Scale.Z * times(v.Z)}
		}
	}
	if op.SnapToFloor {
		t.Location.Z = 0
	}
	return t
}

// SetActorTransform applies op to every selected actor.
func (e *Editor) SetActorTransform(s ActorSelector, op TransformOp) ([]*Actor, error) {
	if err := op.validate(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	sel, err := e.selectLocked(s)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	out := make([]*Actor, len(sel))
	for i, a := range sel {
		a.Transform = op.apply(a.Transform)
		out[i] = a.clone()
	}
	e.mu.Unlock()

	for _, a := range out {
		e.publish(events.TopicActorChanged, map[string]any{"action": "transformed", "name": a.Name, "path": a.Path})
	}
	return out, nil
}

// PropertyIssue is a per-property error or warning.
type PropertyIssue struct {
	Property  string `json:"property"`
	Message   string `json:"message"`
	Requested string `json:"requested,omitempty"`
	Actual    string `json:"actual,omitempty"`
}

// PropertyResult is the outcome of set_property on one actor.
type PropertyResult struct {
	Name     string          `json:"name"`
	Path     string          `json:"path"`
	Updated  map[string]any  `json:"updated"`
	Errors   []PropertyIssue `json:"errors,omitempty"`
	Warnings []PropertyIssue `json:"warnings,omitempty"`
}

var mobilities = []string{"Static", "Stationary", "Movable"}

// SetActorProperties writes props on every selected actor. Bad values are
// reported per actor and property; the rest still apply.
func (e *Editor) SetActorProperties(s ActorSelector, props map[string]any) ([]PropertyResult, error) {
	if len(props) == 0 {
		return nil, invalid("no properties")
	}
	names := make([]string, 0, len(props))
	for k := range props {
		names = append(names, k)
	}
	sort.Strings(names)

	e.mu.Lock()
	sel, err := e.selectLocked(s)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	results := make([]PropertyResult, 0, len(sel))
	for _, a := range sel {
		res := PropertyResult{Updated: map[string]any{}}
		for _, name := range names {
			if issue := e.setPropLocked(a, name, props[name], &res); issue != nil {
				res.Errors = append(res.Errors, *issue)
			}
		}
		res.Name, res.Path = a.Name, a.Path
		results = append(results, res)
	}
	e.mu.Unlock()

	for _, r := range results {
		if len(r.Updated) == 0 {
			continue
		}
		keys := make([]string, 0, len(r.Updated))
		for k := range r.Updated {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		e.publish(events.TopicActorChanged, map[string]any{
			"action": "property_changed", "name": r.Name, "path": r.Path, "properties": stringsToAny(keys),
		})
	}
	return results, nil
}

func (e *Editor) setPropLocked(a *Actor, name string, v any, res *PropertyResult) *PropertyIssue {
	fail := func(msg string) *PropertyIssue { return &PropertyIssue{Property: name, Message: msg} }
	switch name {
	case "ActorLabel":
		label, ok := v.(string)
		if !ok || strings.TrimSpace(label) == "" {
			return fail("ActorLabel must be a non-empty string")
		}
		if label == a.Name {
			res.Updated[name] = label
			return nil
		}
		delete(e.actors, a.Name)
		final := e.uniqueLabelLocked(label)
		a.Name = final
		a.Path = e.actorPath(final)
		e.actors[final] = a
		res.Updated[name] = final
		if final != label {
			res.Warnings = append(res.Warnings, PropertyIssue{
				Property: name, Message: "Name conflict resolved with suffix", Requested: label, Actual: final,
			})
		}
	case "FolderPath":
		folder, ok := v.(string)
		if !ok {
			return fail("FolderPath must be a string")
		}
		a.Folder = folder
		res.Updated[name] = folder
	case "SimulatePhysics":
		b, ok := v.(bool)
		if !ok {
			return fail("SimulatePhysics must be a boolean")
		}
		if !a.hasPrimitive() {
			return fail("Actor has no primitive root component")
		}
		a.SimulatePhysics = b
		if b {
			a.Mobility = "Movable"
		}
		res.Updated[name] = b
	case "Mobility":
		m, ok := mobilityValue(v)
		if !ok {
			return fail("Mobility must be 'Static', 'Stationary', or 'Movable'")
		}
		a.Mobility = m
		res.Updated[name] = m
	case "bHidden":
		b, ok := v.(bool)
		if !ok {
			return fail("bHidden must be a boolean")
		}
		a.Hidden = b
		res.Updated[name] = b
	case "bHiddenInEditor":
		b, ok := v.(bool)
		if !ok {
			return fail("bHiddenInEditor must be a boolean")
		}
		a.HiddenInEditor = b
		res.Updated[name] = b
	case "Tags":
		tags, ok := applyTags(a.Tags, v)
		if !ok {
			return fail("Tags must be a string, array of strings, or object with 'add'/'remove' arrays")
		}
		a.Tags = tags
		res.Updated[name] = stringsToAny(tags)
	default:
		return fail("Property not found")
	}
	return nil
}

func mobilityValue(v any) (string, bool) {
	if s, ok := v.(string); ok {
		for _, m := range mobilities {
			if strings.EqualFold(s, m) {
				return m, true
			}
		}
		return "", false
	}
	n, ok := number(v)
	if !ok || n != math.Trunc(n) || n < 0 || int(n) >= len(mobilities) {
		return "", false
	}
	return mobilities[int(n)], true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// applyTags handles a single tag to add, a replacement list, or an
// add/remove object.
func applyTags(cur []string, v any) ([]string, bool) {
	strs := func(in any) ([]string, bool) {
		arr, ok := in.([]any)
		if !ok {
			return nil, false
		}
		out := make([]string, 0, len(arr))
		for _, x := range arr {
			s, ok := x.(string)
			if !ok {
				return nil, false
			}
			if s != "" {
				out = append(out, s)
			}
		}
		return out, true
	}
	add := func(tags []string, t string) []string {
		for _, have := range tags {
			if have == t {
				return tags
			}
		}
		return append(tags, t)
	}
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil, false
		}
		return add(append([]string(nil), cur...), val), true
	case []any:
		return strs(val)
	case map[string]any:
		out := append([]string(nil), cur...)
		if raw, ok := val["add"]; ok {
			list, ok := strs(raw)
			if !ok {
				return nil, false
			}
			for _, t := range list {
				out = add(out, t)
			}
		}
		if raw, ok := val["remove"]; ok {
			list, ok := strs(raw)
			if !ok {
				return nil, false
			}
			kept := out[:0]
			for _, t := range out {
				drop := false
				for _, r := range list {
					if t == r {
						drop = true
						break
					}
				}
				if !drop {
					kept = append(kept, t)
				}
			}
			out = kept
		}
		return out, true
	}
	return nil, false
}
