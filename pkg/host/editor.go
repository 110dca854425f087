// Package host is an in-memory stand-in for the editor the bridge drives.
// Mutating methods are meant to be called from the mutation context only;
// readers may run concurrently with them.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/morezero/agent-link/pkg/events"
	"github.com/morezero/agent-link/pkg/project"
)

const logPrefix = "host:editor"

// EventSource tags events raised by the editor.
const EventSource = "editor"

// Editor holds the state of one open project.
type Editor struct {
	mu         sync.RWMutex
	manifest   *project.Manifest
	assets     map[string]*Asset
	blueprints map[string]*Blueprint
	materials  map[string]*Material
	widgets    map[string]*Widget
	actors     map[string]*Actor
	level      string
	logs       map[string][]LogMessage
	console    []string
	started    time.Time

	pub events.EventPublisher
}

// New creates an Editor seeded from m. pub receives every host event; nil
// disables them.
func New(m *project.Manifest, pub events.EventPublisher) *Editor {
	if m == nil {
		m = project.DefaultManifest()
	}
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	e := &Editor{
		manifest:   m,
		assets:     make(map[string]*Asset, len(m.Assets)),
		blueprints: make(map[string]*Blueprint),
		materials:  make(map[string]*Material),
		widgets:    make(map[string]*Widget),
		actors:     make(map[string]*Actor),
		level:      levelName(m.DefaultMap),
		logs:       make(map[string][]LogMessage),
		started:    time.Now(),
		pub:        pub,
	}
	for _, a := range m.Assets {
		e.assets[a.Path] = &Asset{
			Path: a.Path, Class: a.Class, Triangles: a.Triangles, DiskSize: a.DiskSize, Nanite: a.Nanite,
			ShadowCasting: true,
		}
	}
	for _, c := range LogCategories {
		e.logs[c.Name] = nil
	}
	e.seedLevel()
	return e
}

// SetPublisher replaces the event publisher.
func (e *Editor) SetPublisher(pub events.EventPublisher) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	e.pub = pub
}

// Manifest returns a copy of the project manifest.
func (e *Editor) Manifest() *project.Manifest {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.manifest.Clone()
}

// ProjectInfo renders the project description.
func (e *Editor) ProjectInfo() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.manifest.Info()
}

// PerformanceStats is a frame timing sample.
type PerformanceStats struct {
	FPS            float64 `json:"fps"`
	FrameMs        float64 `json:"frame_ms"`
	GameThreadMs   float64 `json:"game_thread_ms"`
	RenderThreadMs float64 `json:"render_thread_ms"`
	RHIThreadMs    float64 `json:"rhi_thread_ms"`
	GPUMs          float64 `json:"gpu_ms"`
}

// Stats samples frame timings. The load scales with the number of
// triangles in the content browser.
func (e *Editor) Stats() PerformanceStats {
	e.mu.RLock()
	tris := 0
	for _, a := range e.assets {
		tris += a.Triangles
	}
	e.mu.RUnlock()

	wobble := math.Sin(float64(time.Since(e.started).Milliseconds())/1000) * 0.4
	game := 4.0 + wobble
	render := 5.0 + float64(tris)/1_000_000
	gpu := 6.0 + float64(tris)/500_000
	frame := math.Max(game, math.Max(render, gpu))
	return PerformanceStats{
		FPS:            round2(1000 / frame),
		FrameMs:        round2(frame),
		GameThreadMs:   round2(game),
		RenderThreadMs: round2(render),
		RHIThreadMs:    round2(render * 0.6),
		GPUMs:          round2(gpu),
	}
}

// ExecConsole runs a console command. Unknown commands fail.
func (e *Editor) ExecConsole(command string) (bool, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return false, invalid("empty console command")
	}
	e.mu.Lock()
	e.console = append(e.console, command)
	e.mu.Unlock()

	verb := strings.ToLower(strings.Fields(command)[0])
	switch verb {
	case "stat", "r.setres", "t.maxfps", "log", "obj", "showflag", "viewmode", "r.screenpercentage":
		e.AppendLog("PIE", SeverityInfo, "Cmd: "+command)
		return true, nil
	default:
		e.AppendLog("PIE", SeverityWarning, "Command not recognized: "+command)
		return false, nil
	}
}

// ConsoleHistory returns the executed console commands in order.
func (e *Editor) ConsoleHistory() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.console...)
}

// PluginState is the outcome of a plugin query or toggle.
type PluginState struct {
	Name            string `json:"plugin_name"`
	FriendlyName    string `json:"friendly_name"`
	Enabled         bool   `json:"is_enabled"`
	RequiresRestart bool   `json:"requires_restart"`
	Message         string `json:"message"`
}

// ManagePlugin queries, enables or disables a plugin.
func (e *Editor) ManagePlugin(name, action string) (PluginState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.manifest.Plugin(name)
	if p == nil {
		return PluginState{}, &NotFoundError{Kind: "plugin", Name: name}
	}
	state := PluginState{Name: p.Name, FriendlyName: p.FriendlyName, RequiresRestart: p.RequiresRestart}
	switch action {
	case "", "query":
		state.Message = "Plugin status retrieved"
	case "enable", "disable":
		want := action == "enable"
		if p.Enabled == want {
			state.Message = fmt.Sprintf("Plugin already %sd", action)
		} else {
			p.Enabled = want
			state.Message = fmt.Sprintf("Plugin %sd", action)
			if p.RequiresRestart {
				state.Message += ", restart the editor to apply"
			}
		}
	default:
		return PluginState{}, invalid("unknown plugin action %q", action)
	}
	state.Enabled = p.Enabled
	return state, nil
}

// ErrInvalid matches requests the editor rejects as malformed.
var ErrInvalid = errors.New("invalid request")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// NotFoundError reports a missing editor object.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Name)
}

// ConflictError reports an object that already exists.
type ConflictError struct {
	Kind string
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Kind, e.Name)
}

func (e *Editor) publish(topic string, payload map[string]any) {
	e.mu.RLock()
	pub := e.pub
	e.mu.RUnlock()
	if err := pub.Publish(context.Background(), events.NewHostEvent(topic, EventSource, payload)); err != nil {
		slog.Warn(fmt.Sprintf("%s - publish %s: %v", logPrefix, topic, err))
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
