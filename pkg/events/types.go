// Package events fans host events out to subscribed sessions and mirrors
// them to COMMS.
package events

import "time"

// HostEvent is an asynchronous notification raised by the host.
type HostEvent struct {
	Topic     string         `json:"topic"`
	Payload   map[string]any `json:"payload,omitempty"`
	Source    string         `json:"source,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewHostEvent stamps an event with the current time.
func NewHostEvent(topic, source string, payload map[string]any) *HostEvent {
	return &HostEvent{Topic: topic, Payload: payload, Source: source, Timestamp: time.Now().UTC()}
}

// Well-known topics raised by the bundled extensions.
const (
	TopicProjectInfo       = "project.info"
	TopicAssetChanged      = "asset.changed"
	TopicBlueprintCompiled = "blueprint.compiled"
	TopicMaterialChanged   = "material.changed"
	TopicWidgetChanged     = "widget.changed"
	TopicActorChanged      = "actor.changed"
	TopicMessageLogPrefix  = "messagelog."
)
