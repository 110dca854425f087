package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/agent-link/pkg/codec"
	"github.com/morezero/agent-link/pkg/session"
)

const hubLogPrefix = "events:hub"

// Deliverer queues an event envelope on one connection. It must not
// block; a full queue drops older events instead. Connections that are
// gone report codec.ErrConnectionClosed.
type Deliverer interface {
	DeliverEvent(connID, topic string, env *codec.Envelope) error
}

// Counter receives fan-out statistics. It may be nil.
type Counter interface {
	EventPublished(topic string)
}

// Hub fans host events out to every session subscribed to their topic.
// Delivery is best effort and never blocks the producer, which is
// usually a handler running on the mutation context.
type Hub struct {
	sessions *session.Manager
	out      Deliverer
	counter  Counter
}

// NewHub creates a Hub.
func NewHub(sessions *session.Manager, out Deliverer, counter Counter) *Hub {
	return &Hub{sessions: sessions, out: out, counter: counter}
}

// Publish implements EventPublisher.
func (h *Hub) Publish(_ context.Context, event *HostEvent) error {
	if event == nil || event.Topic == "" {
		return fmt.Errorf("%s - event without topic", hubLogPrefix)
	}
	if h.counter != nil {
		h.counter.EventPublished(event.Topic)
	}
	subscribers := h.sessions.Subscribers(event.Topic)
	for _, s := range subscribers {
		h.deliver(s, event)
	}
	slog.Debug(fmt.Sprintf("%s - %s fanned out to %d sessions", hubLogPrefix, event.Topic, len(subscribers)))
	return nil
}

// PublishTo sends an event to one connection regardless of its
// subscriptions.
func (h *Hub) PublishTo(connID string, event *HostEvent) error {
	s := h.sessions.Get(connID)
	if s == nil {
		return fmt.Errorf("%s - no session %s", hubLogPrefix, connID)
	}
	h.deliver(s, event)
	return nil
}

func (h *Hub) deliver(s *session.Session, event *HostEvent) {
	env := codec.NewEvent(event.Topic, s.NextEventSeq(), eventPayload(event))
	if err := h.out.DeliverEvent(s.ID(), event.Topic, env); err != nil {
		if errors.Is(err, codec.ErrConnectionClosed) {
			return
		}
		slog.Warn(fmt.Sprintf("%s - deliver %s to %s: %v", hubLogPrefix, event.Topic, s.ID(), err))
	}
}

func eventPayload(event *HostEvent) map[string]any {
	payload := make(map[string]any, len(event.Payload)+2)
	for k, v := range event.Payload {
		payload[k] = v
	}
	if event.Source != "" {
		payload["source"] = event.Source
	}
	if !event.Timestamp.IsZero() {
		payload["timestamp"] = event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	return payload
}
