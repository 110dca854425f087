package transport

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/agent-link/pkg/codec"
	"github.com/morezero/agent-link/pkg/semver"
	"github.com/morezero/agent-link/pkg/session"
)

type recordingHandler struct {
	mu           sync.Mutex
	envs         []*codec.Envelope
	conns        []string
	disconnected chan string
	sessions     *session.Manager
}

func newRecordingHandler(sessions *session.Manager) *recordingHandler {
	return &recordingHandler{disconnected: make(chan string, 8), sessions: sessions}
}

func (h *recordingHandler) HandleEnvelope(connID string, env *codec.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.envs = append(h.envs, env)
	h.conns = append(h.conns, connID)
}

func (h *recordingHandler) Disconnected(connID string) {
	h.sessions.Close(connID)
	h.disconnected <- connID
}

func (h *recordingHandler) received() []*codec.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*codec.Envelope(nil), h.envs...)
}

type testClient struct {
	t     *testing.T
	conn  net.Conn
	codec *codec.Codec
}

func (c *testClient) send(env *codec.Envelope, f codec.Format) {
	c.t.Helper()
	body, err := c.codec.Encode(env, f)
	require.NoError(c.t, err)
	require.NoError(c.t, codec.WriteFrame(c.conn, body))
}

func (c *testClient) sendRaw(body []byte) {
	c.t.Helper()
	require.NoError(c.t, codec.WriteFrame(c.conn, body))
}

func (c *testClient) recv() *codec.Envelope {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	body, err := codec.ReadFrame(c.conn, 0)
	require.NoError(c.t, err)
	env, _, err := c.codec.Decode(body)
	require.NoError(c.t, err)
	return env
}

// recvSkipPings returns the next envelope that is not a heartbeat ping.
func (c *testClient) recvSkipPings() *codec.Envelope {
	c.t.Helper()
	for {
		env := c.recv()
		if env.Kind != codec.KindPing {
			return env
		}
	}
}

func (c *testClient) expectClosed() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, err := codec.ReadFrame(c.conn, 0); err != nil {
			return
		}
	}
}

func hello(version int, extra map[string]any) *codec.Envelope {
	payload := map[string]any{"version": version}
	for k, v := range extra {
		payload[k] = v
	}
	return &codec.Envelope{Kind: codec.KindHello, ID: "h1", Payload: payload}
}

type fixture struct {
	m        *Manager
	sessions *session.Manager
	handler  *recordingHandler
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	sessions := session.NewManager()
	m := NewManager(sessions, opts)
	h := newRecordingHandler(sessions)
	m.SetHandler(h)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return &fixture{m: m, sessions: sessions, handler: h}
}

func (f *fixture) dial(t *testing.T) *testClient {
	t.Helper()
	server, client := net.Pipe()
	go f.m.ServeConn(NewStreamConn(server, 0))
	t.Cleanup(func() { _ = client.Close() })
	return &testClient{t: t, conn: client, codec: codec.New(codec.DefaultLimits())}
}

func (f *fixture) connect(t *testing.T, extra map[string]any) (*testClient, string) {
	t.Helper()
	c := f.dial(t)
	c.send(hello(1, extra), codec.FormatJSON)
	reply := c.recv()
	require.Equal(t, codec.KindHello, reply.Kind)
	id, _ := reply.Payload["session"].(string)
	require.NotEmpty(t, id)
	return c, id
}

func TestHandshake_VersionMismatch(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.dial(t)

	c.send(hello(2, nil), codec.FormatJSON)
	reply := c.recv()

	require.Equal(t, codec.KindError, reply.Kind)
	assert.Equal(t, "h1", reply.ID)
	assert.Equal(t, codec.CodeVersionMismatch, reply.Error.Code)
	details, ok := reply.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{float64(1)}, details["supported"])
	assert.Equal(t, float64(2), details["requested"])

	c.expectClosed()
	assert.Equal(t, 0, f.m.Count())
	assert.Equal(t, 0, f.sessions.Count())
}

func TestHandshake_FirstFrameMustBeHello(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.dial(t)

	c.send(&codec.Envelope{Kind: codec.KindRequest, ID: "r1", Command: "system.ping"}, codec.FormatJSON)
	reply := c.recv()
	assert.Equal(t, codec.CodeMalformedMessage, reply.Error.Code)
	assert.Equal(t, "r1", reply.ID)
	c.expectClosed()
	assert.Empty(t, f.handler.received())
}

func TestHandshake_ClientConstraint(t *testing.T) {
	constraint, err := semver.ParseConstraint("^2.0.0")
	require.NoError(t, err)
	f := newFixture(t, Options{ClientConstraint: constraint})

	c := f.dial(t)
	c.send(hello(1, map[string]any{"client": "bot@1.9.0"}), codec.FormatJSON)
	reply := c.recv()
	assert.Equal(t, codec.CodeVersionMismatch, reply.Error.Code)
	c.expectClosed()

	f.connect(t, map[string]any{"client": "bot@2.3.1"})
	snaps := f.sessions.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, "bot", snaps[0].Client)
	assert.Equal(t, "2.3.1", snaps[0].ClientVersion)
}

func TestHandshake_Success(t *testing.T) {
	var opened []string
	var mu sync.Mutex
	f := newFixture(t, Options{
		ServerName:        "test-host",
		HeartbeatInterval: time.Hour,
		OnOpen: func(sess *session.Session) {
			mu.Lock()
			opened = append(opened, sess.ID())
			mu.Unlock()
		},
	})
	c := f.dial(t)
	c.send(hello(1, map[string]any{"client": "bot@1.0.0"}), codec.FormatJSON)
	reply := c.recv()

	require.Equal(t, codec.KindHello, reply.Kind)
	assert.Equal(t, "h1", reply.ID)
	assert.Equal(t, float64(1), reply.Payload["version"])
	assert.Equal(t, "test-host", reply.Payload["server"])
	assert.Equal(t, float64(time.Hour.Milliseconds()), reply.Payload["heartbeatMs"])

	connID := reply.Payload["session"].(string)
	mu.Lock()
	assert.Equal(t, []string{connID}, opened)
	mu.Unlock()
	assert.Equal(t, 1, f.m.Count())
	require.NotNil(t, f.sessions.Get(connID))
	assert.Equal(t, "tcp", f.sessions.Get(connID).Info().Transport)
}

func TestHandshake_CBORFormat(t *testing.T) {
	f := newFixture(t, Options{HeartbeatInterval: time.Hour})
	c := f.dial(t)
	c.send(hello(1, map[string]any{"format": "cbor"}), codec.FormatJSON)

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	body, err := codec.ReadFrame(c.conn, 0)
	require.NoError(t, err)
	env, format, err := c.codec.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, codec.FormatCBOR, format)
	assert.Equal(t, codec.KindHello, env.Kind)
}

func TestPingPongAndRequests(t *testing.T) {
	f := newFixture(t, Options{HeartbeatInterval: time.Hour})
	c, connID := f.connect(t, nil)

	c.send(&codec.Envelope{Kind: codec.KindPing, ID: "p1"}, codec.FormatJSON)
	pong := c.recv()
	assert.Equal(t, codec.KindPong, pong.Kind)
	assert.Equal(t, "p1", pong.ID)

	c.send(&codec.Envelope{Kind: codec.KindRequest, ID: "r1", Command: "editor.screenshot", Attachment: []byte{}}, codec.FormatJSON)
	c.send(&codec.Envelope{Kind: codec.KindNotify, ID: "n1", Command: "cmd.exec_console"}, codec.FormatCBOR)

	require.Eventually(t, func() bool { return len(f.handler.received()) == 2 }, 5*time.Second, 5*time.Millisecond)
	got := f.handler.received()
	assert.Equal(t, "editor.screenshot", got[0].Command)
	assert.NotNil(t, got[0].Attachment)
	assert.Equal(t, codec.KindNotify, got[1].Kind)

	require.NoError(t, f.m.Deliver(connID, codec.NewResponse("r1", map[string]any{"width": 1280}, []byte{0x89, 'P', 'N', 'G'})))
	res := c.recv()
	assert.Equal(t, codec.KindResponse, res.Kind)
	assert.Equal(t, "r1", res.ID)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, res.Attachment)
}

func TestMalformedFrames(t *testing.T) {
	f := newFixture(t, Options{HeartbeatInterval: time.Hour})
	c, _ := f.connect(t, nil)

	// Recoverable id: answered and the connection survives.
	c.sendRaw(codec.WrapHeader([]byte(`{"type":"req","id":"m1"}`)))
	reply := c.recv()
	assert.Equal(t, codec.KindError, reply.Kind)
	assert.Equal(t, "m1", reply.ID)
	assert.Equal(t, codec.CodeMalformedMessage, reply.Error.Code)

	// No id: dropped silently.
	c.sendRaw([]byte{0xFF})
	c.send(&codec.Envelope{Kind: codec.KindPing, ID: "p2"}, codec.FormatJSON)
	pong := c.recv()
	assert.Equal(t, "p2", pong.ID)
}

func TestOversizedFrameIsSkipped(t *testing.T) {
	limits := codec.DefaultLimits()
	limits.MaxFrame = 64
	sessions := session.NewManager()
	m := NewManager(sessions, Options{Limits: limits, HeartbeatInterval: time.Hour})
	m.SetHandler(newRecordingHandler(sessions))
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	server, client := net.Pipe()
	go m.ServeConn(NewStreamConn(server, limits.MaxFrame))
	defer client.Close()
	c := &testClient{t: t, conn: client, codec: codec.New(codec.DefaultLimits())}
	c.send(hello(1, nil), codec.FormatJSON)
	require.Equal(t, codec.KindHello, c.recv().Kind)

	c.sendRaw(make([]byte, 200))
	c.send(&codec.Envelope{Kind: codec.KindPing, ID: "after"}, codec.FormatJSON)
	assert.Equal(t, "after", c.recv().ID)
}

func TestCloseNotifiesHandler(t *testing.T) {
	f := newFixture(t, Options{HeartbeatInterval: time.Hour})
	c, connID := f.connect(t, nil)

	require.NoError(t, c.conn.Close())
	select {
	case id := <-f.handler.disconnected:
		assert.Equal(t, connID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("Disconnected was not called")
	}
	assert.Equal(t, 0, f.m.Count())
	assert.ErrorIs(t, f.m.Deliver(connID, codec.NewResponse("x", nil, nil)), ErrConnectionClosed)
	assert.ErrorIs(t, f.m.DeliverEvent(connID, "asset.changed", codec.NewEvent("asset.changed", 1, nil)), ErrConnectionClosed)

	// Closing again is a no-op.
	f.m.CloseConn(connID)
}

func TestHeartbeatTimeoutClosesSilentPeer(t *testing.T) {
	f := newFixture(t, Options{HeartbeatInterval: 10 * time.Millisecond, HeartbeatTimeout: 50 * time.Millisecond})
	c, connID := f.connect(t, nil)

	go func() {
		for {
			if _, err := codec.ReadFrame(c.conn, 0); err != nil {
				return
			}
		}
	}()

	select {
	case id := <-f.handler.disconnected:
		assert.Equal(t, connID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("silent connection was not closed")
	}
}

func TestDeliverEvent(t *testing.T) {
	f := newFixture(t, Options{HeartbeatInterval: time.Hour})
	c, connID := f.connect(t, nil)

	require.NoError(t, f.m.DeliverEvent(connID, "asset.changed", codec.NewEvent("asset.changed", 7, map[string]any{"path": "/Game/A"})))
	evt := c.recvSkipPings()
	assert.Equal(t, codec.KindEvent, evt.Kind)
	assert.Equal(t, "asset.changed", evt.Command)
	assert.Equal(t, uint64(7), evt.Seq)

	assert.ErrorIs(t, f.m.DeliverEvent("nope", "asset.changed", codec.NewEvent("asset.changed", 1, nil)), ErrConnectionClosed)
}

func TestOversizedResponseBecomesHandlerFailure(t *testing.T) {
	limits := codec.DefaultLimits()
	limits.MaxAttachment = 8
	sessions := session.NewManager()
	m := NewManager(sessions, Options{Limits: limits, HeartbeatInterval: time.Hour})
	m.SetHandler(newRecordingHandler(sessions))
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	server, client := net.Pipe()
	go m.ServeConn(NewStreamConn(server, 0))
	defer client.Close()
	c := &testClient{t: t, conn: client, codec: codec.New(codec.DefaultLimits())}
	c.send(hello(1, nil), codec.FormatJSON)
	connID := c.recv().Payload["session"].(string)

	require.NoError(t, m.Deliver(connID, codec.NewResponse("big", nil, make([]byte, 64))))
	reply := c.recv()
	assert.Equal(t, "big", reply.ID)
	assert.Equal(t, codec.CodeHandlerFailure, reply.Error.Code)
}

func TestServe_TCPListener(t *testing.T) {
	f := newFixture(t, Options{HeartbeatInterval: time.Hour})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- f.m.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	c := &testClient{t: t, conn: conn, codec: codec.New(codec.DefaultLimits())}
	c.send(hello(1, nil), codec.FormatJSON)
	assert.Equal(t, codec.KindHello, c.recv().Kind)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestWebSocket_TextAndVersionMismatch(t *testing.T) {
	f := newFixture(t, Options{HeartbeatInterval: time.Hour})
	srv := httptest.NewServer(f.m)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello","id":"h1","payload":{"version":1}}`)))
	mt, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Contains(t, string(data), `"type":"hello"`)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","id":"p1"}`)))
	mt, data, err = ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Contains(t, string(data), `"type":"pong"`)

	bad, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer bad.Close()
	require.NoError(t, bad.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello","id":"h2","payload":{"version":2}}`)))
	_, data, err = bad.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), codec.CodeVersionMismatch)
	_, _, err = bad.ReadMessage()
	assert.Error(t, err)
}
