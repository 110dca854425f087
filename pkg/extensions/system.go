package extensions

import (
	"context"
	"time"

	"github.com/morezero/agent-link/pkg/registry"
)

type topicInput struct {
	Topic  string   `json:"topic"`
	Topics []string `json:"topics"`
}

func (in topicInput) all() []string {
	out := append([]string(nil), in.Topics...)
	if in.Topic != "" {
		out = append(out, in.Topic)
	}
	return out
}

type pluginInput struct {
	PluginName string `json:"plugin_name"`
	Action     string `json:"action"`
}

func registerSystem(reg *registry.Registry, d Deps) error {
	projectInfo := func(_ context.Context, _ *registry.Request) (*registry.Result, error) {
		return registry.Value(d.Editor.ProjectInfo()), nil
	}
	topicSchema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"topic":  stringProp,
			"topics": stringArray,
		},
		"anyOf": []any{
			map[string]any{"required": []any{"topic"}},
			map[string]any{"required": []any{"topics"}},
		},
	}

	return registerCommands(reg, "system",
		command{
			desc: registry.Descriptor{Name: "system.ping", Context: registry.ContextAny, Idempotent: true,
				Description: "Round trip check"},
			handler: func(_ context.Context, _ *registry.Request) (*registry.Result, error) {
				return registry.Value(map[string]any{
					"pong":    true,
					"version": d.Version,
					"time":    time.Now().UTC().Format(time.RFC3339Nano),
				}), nil
			},
		},
		command{
			desc: registry.Descriptor{Name: "system.describe", Context: registry.ContextAny, Idempotent: true,
				Description: "List registered commands"},
			handler: func(_ context.Context, _ *registry.Request) (*registry.Result, error) {
				descs := d.Registry.Describe()
				out := make([]any, 0, len(descs))
				for _, desc := range descs {
					item := map[string]any{
						"name":       desc.Name,
						"context":    string(desc.Context),
						"idempotent": desc.Idempotent,
						"tags":       stringsToAny(desc.Tags),
					}
					if desc.Description != "" {
						item["description"] = desc.Description
					}
					if desc.InputSchema != nil {
						item["inputSchema"] = desc.InputSchema
					}
					out = append(out, item)
				}
				return registry.Value(map[string]any{"count": len(out), "commands": out}), nil
			},
		},
		command{
			desc: registry.Descriptor{Name: "system.get_performance_stats", Context: registry.ContextAny,
				Description: "Sample frame timings"},
			handler: func(_ context.Context, _ *registry.Request) (*registry.Result, error) {
				s := d.Editor.Stats()
				return registry.Value(map[string]any{
					"fps":              s.FPS,
					"frame_ms":         s.FrameMs,
					"game_thread_ms":   s.GameThreadMs,
					"render_thread_ms": s.RenderThreadMs,
					"rhi_thread_ms":    s.RHIThreadMs,
					"gpu_ms":           s.GPUMs,
				}), nil
			},
		},
		command{
			desc: registry.Descriptor{Name: "system.manage_plugin", Context: registry.ContextMain,
				Description: "Query, enable or disable a plugin",
				InputSchema: object([]string{"plugin_name"}, map[string]any{
					"plugin_name": nonEmpty,
					"action":      map[string]any{"type": "string", "enum": []any{"query", "enable", "disable"}},
				})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in pluginInput) (*registry.Result, error) {
				state, err := d.Editor.ManagePlugin(in.PluginName, in.Action)
				if err != nil {
					return nil, hostError(err)
				}
				return registry.Value(map[string]any{
					"plugin_name":      state.Name,
					"friendly_name":    state.FriendlyName,
					"is_enabled":       state.Enabled,
					"requires_restart": state.RequiresRestart,
					"message":          state.Message,
				}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "session.subscribe", Context: registry.ContextAny,
				Description: "Subscribe this connection to event topics", InputSchema: topicSchema},
			handler: registry.Typed(func(_ context.Context, req *registry.Request, in topicInput) (*registry.Result, error) {
				if req.Session == nil {
					return nil, registry.Failure("no_session", "session.subscribe needs a connection")
				}
				added := make([]string, 0)
				for _, topic := range in.all() {
					ok, err := req.Session.Subscribe(topic)
					if err != nil {
						return nil, registry.InvalidArgument("%v", err)
					}
					if ok {
						added = append(added, topic)
					}
				}
				return registry.Value(map[string]any{
					"added":  stringsToAny(added),
					"topics": stringsToAny(req.Session.Topics()),
				}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "session.unsubscribe", Context: registry.ContextAny,
				Description: "Drop event topic subscriptions", InputSchema: topicSchema},
			handler: registry.Typed(func(_ context.Context, req *registry.Request, in topicInput) (*registry.Result, error) {
				if req.Session == nil {
					return nil, registry.Failure("no_session", "session.unsubscribe needs a connection")
				}
				removed := make([]string, 0)
				for _, topic := range in.all() {
					if req.Session.Unsubscribe(topic) {
						removed = append(removed, topic)
					}
				}
				return registry.Value(map[string]any{
					"removed": stringsToAny(removed),
					"topics":  stringsToAny(req.Session.Topics()),
				}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "project.info", Context: registry.ContextAny, Idempotent: true,
				Description: "Describe the open project"},
			handler: projectInfo,
		},
		command{
			desc: registry.Descriptor{Name: "editor.get_project_info", Context: registry.ContextAny, Idempotent: true,
				Description: "Alias of project.info"},
			handler: projectInfo,
		},
	)
}
