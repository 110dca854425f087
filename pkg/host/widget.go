package host

import (
	"fmt"
	"path"
	"sort"

	"github.com/morezero/agent-link/pkg/events"
)

// WidgetNode is one control of a widget tree.
type WidgetNode struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Children   []*WidgetNode  `json:"children,omitempty"`
}

// Widget is a UI widget blueprint.
type Widget struct {
	Path string      `json:"path"`
	Root *WidgetNode `json:"root"`
}

var panelTypes = map[string]bool{
	"CanvasPanel": true, "VerticalBox": true, "HorizontalBox": true,
	"Overlay": true, "GridPanel": true, "ScrollBox": true, "SizeBox": true, "Border": true,
}

var controlTypes = map[string]bool{
	"TextBlock": true, "Button": true, "Image": true, "ProgressBar": true,
	"CheckBox": true, "Slider": true, "EditableTextBox": true, "Spacer": true,
}

// CreateWidget creates a widget with a single root panel.
func (e *Editor) CreateWidget(name, folder, rootType string) (*Widget, error) {
	if rootType == "" {
		rootType = "CanvasPanel"
	}
	if !panelTypes[rootType] {
		return nil, invalid("root type %q is not a panel", rootType)
	}
	if folder == "" {
		folder = "/Game/UI"
	}
	p := path.Join(normalizeFolder(folder), name)

	e.mu.Lock()
	if _, exists := e.assets[p]; exists {
		e.mu.Unlock()
		return nil, &ConflictError{Kind: "widget", Name: p}
	}
	w := &Widget{Path: p, Root: &WidgetNode{Name: "Root" + rootType, Type: rootType}}
	e.widgets[p] = w
	e.addAsset(p, "WidgetBlueprint")
	out := w.clone()
	e.mu.Unlock()

	e.publish(events.TopicWidgetChanged, map[string]any{"action": "created", "path": p})
	return out, nil
}

// AddChild adds a control under the named parent panel. An empty name is
// generated from the control type.
func (e *Editor) AddChild(p, parentName, controlType, name string) (*WidgetNode, error) {
	if !panelTypes[controlType] && !controlTypes[controlType] {
		return nil, invalid("unknown control type %q", controlType)
	}
	e.mu.Lock()
	w, ok := e.widgets[p]
	if !ok {
		e.mu.Unlock()
		return nil, &NotFoundError{Kind: "widget", Name: p}
	}
	parent := w.Root
	if parentName != "" {
		parent = w.Root.find(parentName)
		if parent == nil {
			e.mu.Unlock()
			return nil, &NotFoundError{Kind: "widget control", Name: parentName}
		}
	}
	if !panelTypes[parent.Type] {
		e.mu.Unlock()
		return nil, invalid("%s is a %s and cannot hold children", parent.Name, parent.Type)
	}
	if name == "" {
		name = fmt.Sprintf("%s_%d", controlType, w.Root.count())
	}
	if w.Root.find(name) != nil {
		e.mu.Unlock()
		return nil, &ConflictError{Kind: "widget control", Name: name}
	}
	node := &WidgetNode{Name: name, Type: controlType}
	parent.Children = append(parent.Children, node)
	parentName = parent.Name
	out := *node
	e.mu.Unlock()

	e.publish(events.TopicWidgetChanged, map[string]any{"action": "child_added", "path": p, "name": name, "parent": parentName})
	return &out, nil
}

// SetWidgetProperty sets properties on a named control and returns the
// names applied.
func (e *Editor) SetWidgetProperty(p, widgetName string, props map[string]any) ([]string, error) {
	if len(props) == 0 {
		return nil, invalid("no properties")
	}
	e.mu.Lock()
	w, ok := e.widgets[p]
	if !ok {
		e.mu.Unlock()
		return nil, &NotFoundError{Kind: "widget", Name: p}
	}
	node := w.Root.find(widgetName)
	if node == nil {
		e.mu.Unlock()
		return nil, &NotFoundError{Kind: "widget control", Name: widgetName}
	}
	if node.Properties == nil {
		node.Properties = map[string]any{}
	}
	applied := make([]string, 0, len(props))
	for k, v := range props {
		node.Properties[k] = v
		applied = append(applied, k)
	}
	sort.Strings(applied)
	e.mu.Unlock()

	e.publish(events.TopicWidgetChanged, map[string]any{"action": "modified", "path": p, "name": widgetName})
	return applied, nil
}

// Widget returns a copy of the widget at p.
func (e *Editor) Widget(p string) (*Widget, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, ok := e.widgets[p]
	if !ok {
		return nil, &NotFoundError{Kind: "widget", Name: p}
	}
	return w.clone(), nil
}

// Hierarchy renders the widget tree as nested maps.
func (w *Widget) Hierarchy() map[string]any {
	return w.Root.tree()
}

func (n *WidgetNode) tree() map[string]any {
	children := make([]any, 0, len(n.Children))
	for _, c := range n.Children {
		children = append(children, c.tree())
	}
	out := map[string]any{"name": n.Name, "type": n.Type, "children": children}
	if len(n.Properties) > 0 {
		out["properties"] = cloneMap(n.Properties)
	}
	return out
}

func (n *WidgetNode) find(name string) *WidgetNode {
	if n.Name == name {
		return n
	}
	for _, c := range n.Children {
		if f := c.find(name); f != nil {
			return f
		}
	}
	return nil
}

func (n *WidgetNode) count() int {
	total := 1
	for _, c := range n.Children {
		total += c.count()
	}
	return total
}

func (n *WidgetNode) clone() *WidgetNode {
	cp := &WidgetNode{Name: n.Name, Type: n.Type, Properties: cloneMap(n.Properties)}
	for _, c := range n.Children {
		cp.Children = append(cp.Children, c.clone())
	}
	return cp
}

func (w *Widget) clone() *Widget {
	return &Widget{Path: w.Path, Root: w.Root.clone()}
}
