package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/agent-link/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// SubjectPrefix overrides the mirror subject root (AGENTLINK_EVENT_SUBJECT_PREFIX).
	SubjectPrefix string
}

// CommsPublisher mirrors host events to COMMS subjects.
type CommsPublisher struct {
	nc     *comms.Conn
	prefix string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	prefix := commsutil.DefaultEventSubjectPrefix
	if opts != nil && opts.SubjectPrefix != "" {
		prefix = opts.SubjectPrefix
	}
	return &CommsPublisher{nc: nc, prefix: prefix}
}

// Publish sends the event to <prefix>.<topic>. Topics under "inject."
// are refused so a mirrored event can never re-enter through BridgeInbound.
func (p *CommsPublisher) Publish(_ context.Context, event *HostEvent) error {
	if strings.HasPrefix(event.Topic, "inject.") {
		return fmt.Errorf("%s - topic %q is reserved", commsPublisherLogPrefix, event.Topic)
	}
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	subject := commsutil.BuildEventSubject(p.prefix, event.Topic)
	if err := p.nc.Publish(subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - mirrored %s", commsPublisherLogPrefix, subject))
	return nil
}
