package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/agent-link/pkg/commsutil"
	"github.com/morezero/agent-link/pkg/session"
)

const bridgeLogPrefix = "events:bridge"

// BridgeInbound lets external services raise host events by publishing a
// JSON HostEvent to <prefix>.inject.<topic>. The topic comes from the
// subject; a topic inside the body is ignored.
func BridgeInbound(nc *comms.Conn, prefix string, pub EventPublisher) (*comms.Subscription, error) {
	if prefix == "" {
		prefix = commsutil.DefaultEventSubjectPrefix
	}
	wildcard := commsutil.InjectWildcard(prefix)

	sub, err := nc.Subscribe(wildcard, func(msg *comms.Msg) {
		topic, ok := commsutil.TopicFromInjectSubject(prefix, msg.Subject)
		if !ok || session.ValidateTopic(topic) != nil || topic == "*" {
			slog.Warn(fmt.Sprintf("%s - ignoring inject on %s", bridgeLogPrefix, msg.Subject))
			return
		}
		event, err := commsutil.DecodePayload[HostEvent](msg.Data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - undecodable event on %s: %v", bridgeLogPrefix, msg.Subject, err))
			return
		}
		event.Topic = topic
		if event.Source == "" {
			event.Source = "comms"
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}
		if err := pub.Publish(context.Background(), event); err != nil {
			slog.Warn(fmt.Sprintf("%s - publish %s failed: %v", bridgeLogPrefix, topic, err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", bridgeLogPrefix, wildcard, err)
	}
	slog.Info(fmt.Sprintf("%s - accepting injected events on %s", bridgeLogPrefix, wildcard))
	return sub, nil
}
