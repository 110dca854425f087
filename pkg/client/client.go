// Package client is a Go agent-side connection to the bridge. It performs
// the hello handshake and correlates responses to calls by request id.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/morezero/agent-link/pkg/codec"
	"github.com/morezero/agent-link/pkg/transport"
)

const logPrefix = "client:client"

// ErrClosed is returned by calls on a client whose connection is gone.
var ErrClosed = codec.ErrConnectionClosed

// Options configures a Client. Zero values take defaults.
type Options struct {
	// Client identifies the agent as name@version.
	Client          string
	Format          codec.Format
	ProtocolVersion int
	Limits          codec.Limits
	DialTimeout     time.Duration
	// HandshakeTimeout bounds the wait for the hello reply.
	HandshakeTimeout time.Duration
	// EventBuffer is the capacity of the Events channel. Events arriving
	// while it is full are dropped.
	EventBuffer int
}

func (o *Options) applyDefaults() {
	if o.Client == "" {
		o.Client = "agentlink-go@1.0.0"
	}
	if o.ProtocolVersion == 0 {
		o.ProtocolVersion = transport.DefaultProtocolVersion
	}
	if o.Limits == (codec.Limits{}) {
		o.Limits = codec.DefaultLimits()
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
}

// Response is a successful call outcome.
type Response struct {
	Payload    map[string]any
	Attachment []byte
}

// Event is a host event received on the connection.
type Event struct {
	Topic   string
	Seq     uint64
	Payload map[string]any
}

// RemoteError is an error envelope returned by the host.
type RemoteError struct {
	Code      string
	Message   string
	Details   any
	Retryable bool
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCode reports whether err is a RemoteError carrying code.
func IsCode(err error, code string) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Code == code
}

func remoteError(d *codec.ErrorDetail) *RemoteError {
	if d == nil {
		return &RemoteError{Code: codec.CodeHandlerFailure, Message: "error envelope without detail"}
	}
	return &RemoteError{Code: d.Code, Message: d.Message, Details: d.Details, Retryable: d.Retryable}
}

// Client is one handshaken connection.
type Client struct {
	fc     transport.FrameConn
	codec  *codec.Codec
	format codec.Format

	session   string
	heartbeat time.Duration
	server    string

	writeMu sync.Mutex

	mu      sync.Mutex
	calls   map[string]chan *codec.Envelope
	closed  bool
	lastErr error

	events chan Event
	done   chan struct{}
	once   sync.Once
}

// Dial connects over TCP and performs the handshake.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	opts.applyDefaults()
	d := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%s - dial %s: %w", logPrefix, addr, err)
	}
	return New(ctx, transport.NewStreamConn(conn, opts.Limits.MaxFrame), opts)
}

// DialWebSocket connects to a ws:// or wss:// URL and performs the handshake.
func DialWebSocket(ctx context.Context, url string, header http.Header, opts Options) (*Client, error) {
	opts.applyDefaults()
	dialer := websocket.Dialer{HandshakeTimeout: opts.DialTimeout}
	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("%s - dial %s: %w", logPrefix, url, err)
	}
	return New(ctx, transport.NewWebSocketConn(ws, opts.Limits.MaxFrame), opts)
}

// New performs the handshake on an established frame connection. The
// connection is closed when the handshake fails.
func New(ctx context.Context, fc transport.FrameConn, opts Options) (*Client, error) {
	opts.applyDefaults()
	c := &Client{
		fc:     fc,
		codec:  codec.New(opts.Limits),
		format: opts.Format,
		calls:  make(map[string]chan *codec.Envelope),
		events: make(chan Event, opts.EventBuffer),
		done:   make(chan struct{}),
	}
	if err := c.handshake(ctx, opts); err != nil {
		_ = fc.Close()
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) handshake(ctx context.Context, opts Options) error {
	hello := &codec.Envelope{
		Kind: codec.KindHello,
		ID:   uuid.NewString(),
		Payload: map[string]any{
			"version": opts.ProtocolVersion,
			"client":  opts.Client,
			"format":  opts.Format.String(),
		},
	}
	if err := c.send(hello); err != nil {
		return fmt.Errorf("%s - send hello: %w", logPrefix, err)
	}

	deadline := time.Now().Add(opts.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.fc.SetReadDeadline(deadline)
	defer c.fc.SetReadDeadline(time.Time{})

	body, err := c.fc.ReadFrame()
	if err != nil {
		return fmt.Errorf("%s - read hello reply: %w", logPrefix, err)
	}
	env, _, err := c.codec.Decode(body)
	if err != nil {
		return fmt.Errorf("%s - decode hello reply: %w", logPrefix, err)
	}
	switch env.Kind {
	case codec.KindError:
		return remoteError(env.Error)
	case codec.KindHello:
	default:
		return fmt.Errorf("%s - expected hello reply, got %s", logPrefix, env.Kind)
	}
	c.session, _ = env.Payload["session"].(string)
	c.server, _ = env.Payload["server"].(string)
	c.heartbeat = time.Duration(millis(env.Payload["heartbeatMs"])) * time.Millisecond
	if c.session == "" {
		return fmt.Errorf("%s - hello reply without session id", logPrefix)
	}
	return nil
}

// millis reads a number decoded from either JSON or CBOR.
func millis(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case uint64:
		return int64(n)
	case int:
		return int64(n)
	}
	return 0
}

// Session returns the connection id the host assigned.
func (c *Client) Session() string {
	return c.session
}

// Server returns the host's name from the hello reply.
func (c *Client) Server() string {
	return c.server
}

// Heartbeat returns the ping interval announced by the host.
func (c *Client) Heartbeat() time.Duration {
	return c.heartbeat
}

// Events delivers host events until the connection closes.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection closed, or nil while it is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Call sends a request and waits for its response. An error envelope is
// returned as a *RemoteError.
func (c *Client) Call(ctx context.Context, command string, payload map[string]any, attachment []byte) (*Response, error) {
	id := uuid.NewString()
	ch := make(chan *codec.Envelope, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.calls[id] = ch
	c.mu.Unlock()

	env := &codec.Envelope{Kind: codec.KindRequest, ID: id, Command: command, Payload: payload, Attachment: attachment}
	if err := c.send(env); err != nil {
		c.forget(id)
		return nil, err
	}

	select {
	case reply := <-ch:
		if reply == nil {
			return nil, ErrClosed
		}
		if reply.Kind == codec.KindError {
			return nil, remoteError(reply.Error)
		}
		return &Response{Payload: reply.Payload, Attachment: reply.Attachment}, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

// Notify sends a fire-and-forget request. The host answers only errors,
// which are logged.
func (c *Client) Notify(command string, payload map[string]any) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.send(&codec.Envelope{Kind: codec.KindNotify, ID: uuid.NewString(), Command: command, Payload: payload})
}

// Close closes the connection. Pending calls fail with ErrClosed.
func (c *Client) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Client) send(env *codec.Envelope) error {
	body, err := c.codec.Encode(env, c.format)
	if err != nil {
		return fmt.Errorf("%s - encode %s: %w", logPrefix, env.Kind, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.fc.WriteFrame(body); err != nil {
		return fmt.Errorf("%s - write %s: %w", logPrefix, env.Kind, errors.Join(ErrClosed, err))
	}
	return nil
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.calls, id)
	c.mu.Unlock()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		body, err := c.fc.ReadFrame()
		if err != nil {
			if errors.Is(err, codec.ErrFrameTooLarge) {
				slog.Warn(fmt.Sprintf("%s - skipped oversized frame from host", logPrefix))
				continue
			}
			c.shutdown(err)
			return
		}
		env, _, err := c.codec.Decode(body)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - undecodable frame from host: %v", logPrefix, err))
			continue
		}
		switch env.Kind {
		case codec.KindResponse, codec.KindError:
			c.resolve(env)
		case codec.KindEvent:
			ev := Event{Topic: env.Command, Seq: env.Seq, Payload: env.Payload}
			select {
			case c.events <- ev:
			default:
				slog.Warn(fmt.Sprintf("%s - event buffer full, dropped %s #%d", logPrefix, ev.Topic, ev.Seq))
			}
		case codec.KindPing:
			if err := c.send(&codec.Envelope{Kind: codec.KindPong, ID: env.ID}); err != nil {
				c.shutdown(err)
				return
			}
		default:
			slog.Debug(fmt.Sprintf("%s - ignoring %s envelope", logPrefix, env.Kind))
		}
	}
}

func (c *Client) resolve(env *codec.Envelope) {
	c.mu.Lock()
	ch, ok := c.calls[env.ID]
	delete(c.calls, env.ID)
	c.mu.Unlock()
	if !ok {
		if env.Kind == codec.KindError && env.Error != nil {
			slog.Warn(fmt.Sprintf("%s - host error for %q: %s %s", logPrefix, env.ID, env.Error.Code, env.Error.Message))
		}
		return
	}
	ch <- env
}

func (c *Client) shutdown(cause error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		if cause == nil {
			cause = ErrClosed
		}
		c.lastErr = cause
		calls := c.calls
		c.calls = make(map[string]chan *codec.Envelope)
		c.mu.Unlock()

		_ = c.fc.Close()
		for _, ch := range calls {
			close(ch)
		}
		close(c.done)
	})
}
