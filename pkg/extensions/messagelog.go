package extensions

import (
	"context"

	"github.com/morezero/agent-link/pkg/events"
	"github.com/morezero/agent-link/pkg/host"
	"github.com/morezero/agent-link/pkg/registry"
)

type messageLogInput struct {
	Category string `json:"category"`
	Limit    int    `json:"limit"`
}

const defaultMessageLimit = 100

func registerMessageLog(reg *registry.Registry, d Deps) error {
	categorySchema := object([]string{"category"}, map[string]any{"category": nonEmpty})

	return registerCommands(reg, "messagelog",
		command{
			desc: registry.Descriptor{Name: "messagelog.list", Context: registry.ContextAny, Idempotent: true,
				Description: "List message log categories"},
			handler: func(_ context.Context, _ *registry.Request) (*registry.Result, error) {
				cats := make([]any, 0, len(host.LogCategories))
				for _, c := range host.LogCategories {
					cats = append(cats, map[string]any{"name": c.Name, "label": c.Label})
				}
				return registry.Value(map[string]any{"categories": cats}), nil
			},
		},
		command{
			desc: registry.Descriptor{Name: "messagelog.get", Context: registry.ContextAny,
				Description: "Read the newest lines of a category",
				InputSchema: object([]string{"category"}, map[string]any{
					"category": nonEmpty,
					"limit":    limitProp,
				})},
			handler: registry.Typed(func(_ context.Context, _ *registry.Request, in messageLogInput) (*registry.Result, error) {
				if in.Limit == 0 {
					in.Limit = defaultMessageLimit
				}
				msgs, total, err := d.Editor.LogMessages(in.Category, in.Limit)
				if err != nil {
					return nil, hostError(err)
				}
				lines := make([]any, 0, len(msgs))
				for _, m := range msgs {
					tokens := make([]any, 0, len(m.Tokens))
					for _, t := range m.Tokens {
						tokens = append(tokens, map[string]any{"text": t.Text, "type": t.Type})
					}
					lines = append(lines, map[string]any{
						"severity": string(m.Severity),
						"text":     m.Text,
						"tokens":   tokens,
					})
				}
				return registry.Value(map[string]any{
					"category": in.Category,
					"count":    len(lines),
					"total":    total,
					"messages": lines,
				}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "messagelog.subscribe", Context: registry.ContextAny,
				Description: "Stream new lines of a category as messagelog.<category> events",
				InputSchema: categorySchema},
			handler: registry.Typed(func(_ context.Context, req *registry.Request, in messageLogInput) (*registry.Result, error) {
				if req.Session == nil {
					return nil, registry.Failure("no_session", "messagelog.subscribe needs a connection")
				}
				if !d.Editor.HasLogCategory(in.Category) {
					return nil, registry.Failure("not_found", "message log category %s not found", in.Category)
				}
				added, err := req.Session.Subscribe(events.TopicMessageLogPrefix + in.Category)
				if err != nil {
					return nil, registry.InvalidArgument("%v", err)
				}
				if !added {
					return nil, registry.Failure("conflict", "already subscribed to %s", in.Category)
				}
				return registry.Value(map[string]any{"category": in.Category, "subscribed": true}), nil
			}),
		},
		command{
			desc: registry.Descriptor{Name: "messagelog.unsubscribe", Context: registry.ContextAny,
				Description: "Stop streaming a category", InputSchema: categorySchema},
			handler: registry.Typed(func(_ context.Context, req *registry.Request, in messageLogInput) (*registry.Result, error) {
				if req.Session == nil {
					return nil, registry.Failure("no_session", "messagelog.unsubscribe needs a connection")
				}
				if !req.Session.Unsubscribe(events.TopicMessageLogPrefix + in.Category) {
					return nil, registry.Failure("not_subscribed", "not subscribed to %s", in.Category)
				}
				return registry.Value(map[string]any{"category": in.Category, "subscribed": false}), nil
			}),
		},
	)
}
