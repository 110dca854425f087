package transport

import "sync"

type queuedEvent struct {
	topic string
	body  []byte
}

// outbox is a connection's write queue. Replies are never dropped.
// Events are bounded: when the lane is full the oldest event of the
// same topic goes first, else the oldest event overall.
type outbox struct {
	mu       sync.Mutex
	replies  [][]byte
	events   []queuedEvent
	eventCap int
	closed   bool
	notify   chan struct{}
}

func newOutbox(eventCap int) *outbox {
	if eventCap <= 0 {
		eventCap = DefaultEventQueueSize
	}
	return &outbox{eventCap: eventCap, notify: make(chan struct{}, 1)}
}

func (o *outbox) pushReply(body []byte) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrConnectionClosed
	}
	o.replies = append(o.replies, body)
	o.mu.Unlock()
	o.wake()
	return nil
}

// pushEvent queues an event and reports whether an older one was dropped.
func (o *outbox) pushEvent(topic string, body []byte) (bool, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false, ErrConnectionClosed
	}
	dropped := false
	if len(o.events) >= o.eventCap {
		victim := 0
		for i, ev := range o.events {
			if ev.topic == topic {
				victim = i
				break
			}
		}
		copy(o.events[victim:], o.events[victim+1:])
		o.events[len(o.events)-1] = queuedEvent{}
		o.events = o.events[:len(o.events)-1]
		dropped = true
	}
	o.events = append(o.events, queuedEvent{topic: topic, body: body})
	o.mu.Unlock()
	o.wake()
	return dropped, nil
}

// pop returns the next body to write, replies first.
func (o *outbox) pop() ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.replies) > 0 {
		body := o.replies[0]
		o.replies[0] = nil
		o.replies = o.replies[1:]
		return body, true
	}
	if len(o.events) > 0 {
		ev := o.events[0]
		o.events[0] = queuedEvent{}
		o.events = o.events[1:]
		return ev.body, true
	}
	return nil, false
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.replies = nil
	o.events = nil
	o.mu.Unlock()
}

func (o *outbox) len() (replies, events int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.replies), len(o.events)
}

func (o *outbox) wake() {
	select {
	case o.notify <- struct{}{}:
	default:
	}
}
