package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/morezero/agent-link/pkg/codec"
	"github.com/morezero/agent-link/pkg/metrics"
	"github.com/morezero/agent-link/pkg/semver"
	"github.com/morezero/agent-link/pkg/session"
)

const logPrefix = "transport:manager"

// Defaults applied by NewManager for zero option values.
const (
	DefaultProtocolVersion   = 1
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultHeartbeatTimeout  = 30 * time.Second
	DefaultEventQueueSize    = 256

	writeWait = 10 * time.Second
)

// Handler receives requests from every connection. HandleEnvelope must
// not block on handler execution; it runs on the connection's read loop.
type Handler interface {
	HandleEnvelope(connID string, env *codec.Envelope)
	Disconnected(connID string)
}

// Options configures a Manager.
type Options struct {
	ProtocolVersion   int
	ClientConstraint  *semver.Constraint
	HandshakeTimeout  time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	EventQueueSize    int
	Limits            codec.Limits
	ServerName        string
	// AllowedOrigins restricts browser WebSocket origins. Empty allows all.
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	// OnOpen runs after the handshake reply is queued and before the
	// first request is read.
	OnOpen func(sess *session.Session)
}

// Manager owns every live connection. Deliver and DeliverEvent are the
// only way other components write to a connection.
type Manager struct {
	opts     Options
	codec    *codec.Codec
	sessions *session.Manager
	upgrader websocket.Upgrader

	handlerMu sync.RWMutex
	handler   Handler

	mu        sync.RWMutex
	conns     map[string]*Conn
	listeners []net.Listener
	closed    bool

	wg sync.WaitGroup
}

// Conn is one handshaken agent connection.
type Conn struct {
	id     string
	fc     FrameConn
	format codec.Format
	out    *outbox
	sess   *session.Session
	m      *Manager

	done      chan struct{}
	closeOnce sync.Once
}

// ID returns the connection id.
func (c *Conn) ID() string {
	return c.id
}

// NewManager creates a Manager. Call SetHandler before serving.
func NewManager(sessions *session.Manager, opts Options) *Manager {
	if opts.ProtocolVersion <= 0 {
		opts.ProtocolVersion = DefaultProtocolVersion
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if opts.EventQueueSize <= 0 {
		opts.EventQueueSize = DefaultEventQueueSize
	}
	if opts.Limits == (codec.Limits{}) {
		opts.Limits = codec.DefaultLimits()
	}
	if opts.ServerName == "" {
		opts.ServerName = "agent-link"
	}
	return &Manager{
		opts:     opts,
		codec:    codec.New(opts.Limits),
		sessions: sessions,
		upgrader: makeUpgrader(opts.AllowedOrigins),
		conns:    make(map[string]*Conn),
	}
}

// makeUpgrader creates a WebSocket upgrader with origin checking.
func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return originSet[origin]
		},
	}
}

// SetHandler installs the request handler.
func (m *Manager) SetHandler(h Handler) {
	m.handlerMu.Lock()
	m.handler = h
	m.handlerMu.Unlock()
}

func (m *Manager) currentHandler() Handler {
	m.handlerMu.RLock()
	defer m.handlerMu.RUnlock()
	return m.handler
}

// Serve accepts stream connections on ln until ctx is done or Shutdown
// is called.
func (m *Manager) Serve(ctx context.Context, ln net.Listener) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrConnectionClosed
	}
	m.listeners = append(m.listeners, ln)
	m.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	slog.Info(fmt.Sprintf("%s - accepting agents on %s", logPrefix, ln.Addr()))
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || m.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("%s - accept: %w", logPrefix, err)
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.ServeConn(NewStreamConn(c, m.opts.Limits.MaxFrame))
		}()
	}
}

// ServeHTTP upgrades an HTTP request to a WebSocket agent connection.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if m.isClosed() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - websocket upgrade from %s failed: %v", logPrefix, r.RemoteAddr, err))
		return
	}
	m.wg.Add(1)
	defer m.wg.Done()
	m.ServeConn(NewWebSocketConn(ws, m.opts.Limits.MaxFrame))
}

// ServeConn runs one connection to completion on the calling goroutine.
func (m *Manager) ServeConn(fc FrameConn) {
	agreed, err := m.handshake(fc)
	if err != nil {
		var refusal *handshakeError
		if errors.As(err, &refusal) {
			if body, encErr := m.codec.Encode(refusal.env, refusal.format); encErr == nil {
				_ = fc.WriteFrame(body)
			}
			slog.Warn(err.Error())
		} else {
			slog.Debug(fmt.Sprintf("%s - handshake with %s failed: %v", logPrefix, fc.RemoteAddr(), err))
		}
		_ = fc.Close()
		return
	}

	c, err := m.open(fc, agreed)
	if err != nil {
		slog.Error(err.Error())
		_ = fc.Close()
		return
	}

	go c.writeLoop()
	go c.heartbeatLoop()
	if m.opts.OnOpen != nil {
		m.opts.OnOpen(c.sess)
	}
	c.readLoop()
}

func (m *Manager) open(fc FrameConn, agreed *agreement) (*Conn, error) {
	info := session.Info{
		ConnID:          uuid.NewString(),
		Remote:          fc.RemoteAddr(),
		Transport:       fc.Transport(),
		Format:          agreed.format.String(),
		ProtocolVersion: agreed.version,
	}
	if agreed.client != nil {
		info.Client = agreed.client.Name
		info.ClientVersion = agreed.client.Version
	}

	sess, err := m.sessions.Open(info)
	if err != nil {
		return nil, fmt.Errorf("%s - open session: %w", logPrefix, err)
	}
	c := &Conn{
		id:     info.ConnID,
		fc:     fc,
		format: agreed.format,
		out:    newOutbox(m.opts.EventQueueSize),
		sess:   sess,
		m:      m,
		done:   make(chan struct{}),
	}

	welcome := &codec.Envelope{
		Kind: codec.KindHello,
		ID:   agreed.helloID,
		Payload: map[string]any{
			"version":     agreed.version,
			"session":     c.id,
			"heartbeatMs": m.opts.HeartbeatInterval.Milliseconds(),
			"server":      m.opts.ServerName,
		},
	}
	body, err := m.codec.Encode(welcome, c.format)
	if err != nil {
		m.sessions.Close(c.id)
		return nil, fmt.Errorf("%s - encode hello: %w", logPrefix, err)
	}
	_ = c.out.pushReply(body)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.sessions.Close(c.id)
		return nil, fmt.Errorf("%s - manager closed during handshake", logPrefix)
	}
	m.conns[c.id] = c
	m.mu.Unlock()

	m.opts.Metrics.ConnectionOpened()
	slog.Info(fmt.Sprintf("%s - connection %s open (%s %s, client=%s, format=%s)",
		logPrefix, c.id, info.Transport, info.Remote, agreed.clientString(), c.format))
	return c, nil
}

func (a *agreement) clientString() string {
	if a.client == nil {
		return "-"
	}
	return a.client.String()
}

// Deliver queues a reply on connID. Replies are never dropped.
func (m *Manager) Deliver(connID string, env *codec.Envelope) error {
	c := m.lookup(connID)
	if c == nil {
		return ErrConnectionClosed
	}
	body, err := m.encodeFor(c, env)
	if err != nil {
		return err
	}
	return c.out.pushReply(body)
}

// DeliverEvent queues an event on connID, dropping older events when
// the connection's event lane is full.
func (m *Manager) DeliverEvent(connID, topic string, env *codec.Envelope) error {
	c := m.lookup(connID)
	if c == nil {
		return ErrConnectionClosed
	}
	body, err := m.encodeFor(c, env)
	if err != nil {
		return err
	}
	dropped, err := c.out.pushEvent(topic, body)
	if dropped {
		m.opts.Metrics.EventDropped()
		slog.Debug(fmt.Sprintf("%s - event lane full on %s, dropped an older %s", logPrefix, connID, topic))
	}
	return err
}

// encodeFor encodes env in the connection's format. A response too
// large for the wire is replaced by HANDLER_FAILURE so the request
// still gets exactly one answer.
func (m *Manager) encodeFor(c *Conn, env *codec.Envelope) ([]byte, error) {
	body, err := m.codec.Encode(env, c.format)
	if err == nil {
		return body, nil
	}
	if errors.Is(err, codec.ErrTooLarge) && env.Kind == codec.KindResponse {
		slog.Warn(fmt.Sprintf("%s - response %s on %s too large: %v", logPrefix, env.ID, c.id, err))
		return m.codec.Encode(codec.NewError(env.ID, codec.CodeHandlerFailure, "response exceeds wire limits",
			map[string]any{"reason": "too_large"}), c.format)
	}
	return nil, fmt.Errorf("%s - encode %s for %s: %w", logPrefix, env.Kind, c.id, err)
}

// CloseConn closes connID if it is open.
func (m *Manager) CloseConn(connID string) {
	if c := m.lookup(connID); c != nil {
		c.close("closed by server")
	}
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Shutdown stops the listeners, closes every connection and waits for
// connection goroutines to finish or ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	listeners := m.listeners
	m.listeners = nil
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, ln := range listeners {
		_ = ln.Close()
	}
	for _, c := range conns {
		c.close("server shutting down")
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info(fmt.Sprintf("%s - transport stopped, closed %d connections", logPrefix, len(conns)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s - connections still draining: %w", logPrefix, ctx.Err())
	}
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *Manager) lookup(connID string) *Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conns[connID]
}

func (m *Manager) remove(c *Conn) {
	m.mu.Lock()
	if cur, ok := m.conns[c.id]; ok && cur == c {
		delete(m.conns, c.id)
	}
	m.mu.Unlock()
}

// readLoop runs on the connection's own goroutine until the peer goes away.
func (c *Conn) readLoop() {
	reason := "peer closed"
	defer func() { c.close(reason) }()

	for {
		body, err := c.fc.ReadFrame()
		if err != nil {
			if errors.Is(err, codec.ErrFrameTooLarge) {
				c.sess.Touch(time.Now())
				c.m.opts.Metrics.Malformed()
				slog.Warn(fmt.Sprintf("%s - %s sent an oversized frame: %v", logPrefix, c.id, err))
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				reason = err.Error()
			}
			return
		}
		c.sess.Touch(time.Now())

		env, _, err := c.m.codec.Decode(body)
		if err != nil {
			c.malformed(err)
			continue
		}

		switch env.Kind {
		case codec.KindRequest, codec.KindNotify:
			if h := c.m.currentHandler(); h != nil {
				h.HandleEnvelope(c.id, env)
			} else {
				c.reply(codec.NewError(env.ID, codec.CodeRegistryClosed, "no command handler installed", nil))
			}
		case codec.KindPing:
			c.reply(&codec.Envelope{Kind: codec.KindPong, ID: env.ID})
		case codec.KindPong:
		case codec.KindHello:
			if env.ID != "" {
				c.reply(codec.NewError(env.ID, codec.CodeMalformedMessage, "handshake already completed", nil))
			}
		default:
			slog.Debug(fmt.Sprintf("%s - ignoring %s envelope from %s", logPrefix, env.Kind, c.id))
		}
	}
}

func (c *Conn) malformed(err error) {
	c.m.opts.Metrics.Malformed()
	var me *codec.MalformedError
	if errors.As(err, &me) && me.ID != "" {
		c.reply(codec.NewError(me.ID, codec.CodeMalformedMessage, me.Reason, nil))
		return
	}
	slog.Warn(fmt.Sprintf("%s - dropping malformed frame from %s: %v", logPrefix, c.id, err))
}

func (c *Conn) reply(env *codec.Envelope) {
	if err := c.m.Deliver(c.id, env); err != nil && !errors.Is(err, ErrConnectionClosed) {
		slog.Warn(fmt.Sprintf("%s - reply on %s: %v", logPrefix, c.id, err))
	}
}

// writeLoop is the only writer of the connection after the handshake.
func (c *Conn) writeLoop() {
	for {
		body, ok := c.out.pop()
		if !ok {
			select {
			case <-c.out.notify:
				continue
			case <-c.done:
				return
			}
		}
		if err := c.fc.WriteFrame(body); err != nil {
			c.close(fmt.Sprintf("write failed: %v", err))
			return
		}
	}
}

// heartbeatLoop pings the peer and closes the connection after
// HeartbeatTimeout without inbound traffic.
func (c *Conn) heartbeatLoop() {
	ticker := time.NewTicker(c.m.opts.HeartbeatInterval)
	defer ticker.Stop()
	timeout := c.m.opts.HeartbeatTimeout

	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			if silent := now.Sub(c.sess.LastSeen()); silent > timeout {
				c.close(fmt.Sprintf("no traffic for %s", silent.Round(time.Millisecond)))
				return
			}
			c.reply(&codec.Envelope{Kind: codec.KindPing})
		}
	}
}

// close is idempotent. Queued main-context work of the connection is
// cancelled through the handler.
func (c *Conn) close(reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.m.remove(c)
		c.out.close()
		_ = c.fc.Close()
		if h := c.m.currentHandler(); h != nil {
			h.Disconnected(c.id)
		} else {
			c.m.sessions.Close(c.id)
		}
		c.m.opts.Metrics.ConnectionClosed()
		slog.Info(fmt.Sprintf("%s - connection %s closed: %s", logPrefix, c.id, reason))
	})
}
