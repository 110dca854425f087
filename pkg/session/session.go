// Package session holds per-connection state: the pending request table,
// event subscriptions, sequence counters and liveness.
package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrDuplicateRequestID = errors.New("duplicate request id")
	ErrBackpressure       = errors.New("too many requests in flight")
	ErrSessionClosed      = errors.New("session closed")
	ErrInvalidTopic       = errors.New("invalid topic")
)

// Info describes the connection a session belongs to.
type Info struct {
	ConnID          string `json:"connId"`
	Remote          string `json:"remote"`
	Transport       string `json:"transport"`
	Client          string `json:"client,omitempty"`
	ClientVersion   string `json:"clientVersion,omitempty"`
	Format          string `json:"format"`
	ProtocolVersion int    `json:"protocolVersion"`
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	Info
	OpenedAt    time.Time `json:"openedAt"`
	LastSeen    time.Time `json:"lastSeen"`
	Pending     int       `json:"pending"`
	InflightAny int       `json:"inflightAny"`
	Topics      []string  `json:"topics"`
	Received    uint64    `json:"received"`
	Completed   uint64    `json:"completed"`
}

// Session is the state of one live connection. It is created empty and
// never outlives its connection.
type Session struct {
	info     Info
	openedAt time.Time

	mu          sync.Mutex
	pending     map[string]*Pending
	inflightAny int
	topics      map[string]struct{}
	closed      bool

	eventSeq  atomic.Uint64
	received  atomic.Uint64
	completed atomic.Uint64
	lastSeen  atomic.Int64
}

func newSession(info Info, now time.Time) *Session {
	s := &Session{
		info:     info,
		openedAt: now,
		pending:  make(map[string]*Pending),
		topics:   make(map[string]struct{}),
	}
	s.lastSeen.Store(now.UnixNano())
	return s
}

// ID returns the connection id.
func (s *Session) ID() string {
	return s.info.ConnID
}

// Info returns the connection description.
func (s *Session) Info() Info {
	return s.info
}

// Begin records a new pending request. execContext names where it will
// run. Counted requests are limited to limit concurrent entries (limit <= 0
// disables the cap).
func (s *Session) Begin(requestID, command, execContext string, counted bool, limit int) (*Pending, error) {
	s.received.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if _, exists := s.pending[requestID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRequestID, requestID)
	}
	if counted && limit > 0 && s.inflightAny >= limit {
		return nil, fmt.Errorf("%w: %d of %d", ErrBackpressure, s.inflightAny, limit)
	}

	p := &Pending{
		ConnID:      s.info.ConnID,
		RequestID:   requestID,
		Command:     command,
		ExecContext: execContext,
		Counted:     counted,
		SubmittedAt: time.Now(),
	}
	s.pending[requestID] = p
	if counted {
		s.inflightAny++
	}
	return p, nil
}

// Complete removes p from the pending table and marks it completed.
func (s *Session) Complete(p *Pending) {
	s.mu.Lock()
	if cur, ok := s.pending[p.RequestID]; ok && cur == p {
		delete(s.pending, p.RequestID)
		if p.Counted {
			s.inflightAny--
		}
		s.completed.Add(1)
	}
	s.mu.Unlock()
	p.markCompleted()
}

// Lookup returns the pending entry for requestID.
func (s *Session) Lookup(requestID string) (*Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[requestID]
	return p, ok
}

// PendingCount returns the number of requests not yet completed.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// InflightAny returns the number of counted requests not yet completed.
func (s *Session) InflightAny() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflightAny
}

// Subscribe adds topic. It reports false if the topic was already present.
func (s *Session) Subscribe(topic string) (bool, error) {
	if err := ValidateTopic(topic); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrSessionClosed
	}
	if _, ok := s.topics[topic]; ok {
		return false, nil
	}
	s.topics[topic] = struct{}{}
	return true, nil
}

// Unsubscribe removes topic. It reports false if it was not subscribed.
func (s *Session) Unsubscribe(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.topics[topic]; !ok {
		return false
	}
	delete(s.topics, topic)
	return true
}

// Topics returns the subscribed topic patterns, sorted.
func (s *Session) Topics() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

// Matches reports whether any subscription covers topic.
func (s *Session) Matches(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pattern := range s.topics {
		if TopicMatches(pattern, topic) {
			return true
		}
	}
	return false
}

// NextEventSeq returns the next per-session event sequence number, starting at 1.
func (s *Session) NextEventSeq() uint64 {
	return s.eventSeq.Add(1)
}

// Touch records inbound activity.
func (s *Session) Touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// LastSeen returns the time of the last inbound activity.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Closed reports whether the owning connection has gone away.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Snapshot returns a copy of the session's observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Info:        s.info,
		OpenedAt:    s.openedAt,
		Pending:     len(s.pending),
		InflightAny: s.inflightAny,
	}
	s.mu.Unlock()
	snap.LastSeen = s.LastSeen()
	snap.Topics = s.Topics()
	snap.Received = s.received.Load()
	snap.Completed = s.completed.Load()
	return snap
}

// close cancels every submitted request and clears the session.
// Entries already executing stay in the table until their handler
// returns; their responses have nowhere to go.
func (s *Session) close() []*Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var cancelled []*Pending
	for _, p := range s.pending {
		if p.Cancel() {
			cancelled = append(cancelled, p)
		}
	}
	s.topics = make(map[string]struct{})
	return cancelled
}

// ValidateTopic checks a topic or subscription pattern.
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if topic == "*" {
		return nil
	}
	parts := strings.Split(topic, ".")
	for i, part := range parts {
		if part == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidTopic, topic)
		}
		if strings.Contains(part, "*") && (part != "*" || i != len(parts)-1) {
			return fmt.Errorf("%w: %q may only end in .*", ErrInvalidTopic, topic)
		}
	}
	return nil
}

// TopicMatches reports whether pattern covers topic. "*" covers all
// topics and "a.*" covers every topic below "a".
func TopicMatches(pattern, topic string) bool {
	if pattern == "*" || pattern == topic {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(topic, pattern[:len(pattern)-1])
	}
	return false
}
