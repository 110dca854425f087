// Package tests contains end-to-end tests for agent-link. They start the
// full server on loopback listeners and talk to it over the wire, the way
// an external agent would.
package tests

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/agent-link/internal/config"
	"github.com/morezero/agent-link/internal/server"
	"github.com/morezero/agent-link/pkg/client"
	"github.com/morezero/agent-link/pkg/codec"
	"github.com/morezero/agent-link/pkg/events"
)

func testConfig() *config.Config {
	return &config.Config{
		ListenAddr:         "127.0.0.1:0",
		ProtocolVersion:    1,
		HandshakeTimeout:   5 * time.Second,
		HeartbeatInterval:  10 * time.Second,
		HeartbeatTimeout:   30 * time.Second,
		MaxFrameBytes:      32 << 20,
		MaxPayloadBytes:    1 << 20,
		MaxAttachmentBytes: 16 << 20,
		MaxInFlight:        8,
		EventQueueSize:     256,
		RequestTimeout:     10 * time.Second,
		DedupeIdempotent:   true,
		EventSubjectPrefix: "agentlink.events",
		HealthCheckTimeout: time.Second,
	}
}

type testEnv struct {
	srv   *server.Server
	agent string
	http  string
}

func setupE2E(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	srv, err := server.New(context.Background(), cfg)
	require.NoError(t, err)

	agentLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	httpLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, agentLn, httpLn) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(15 * time.Second):
			t.Error("tests:e2e_test - server did not stop")
		}
	})
	require.Eventually(t, srv.Ready, 5*time.Second, 5*time.Millisecond)
	return &testEnv{srv: srv, agent: agentLn.Addr().String(), http: httpLn.Addr().String()}
}

// rawConn speaks frames directly so tests control exactly what is sent.
type rawConn struct {
	t     *testing.T
	conn  net.Conn
	codec *codec.Codec
}

func dialRaw(t *testing.T, addr string) *rawConn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &rawConn{t: t, conn: conn, codec: codec.New(codec.DefaultLimits())}
}

func (r *rawConn) send(env *codec.Envelope) {
	r.t.Helper()
	body, err := r.codec.Encode(env, codec.FormatJSON)
	require.NoError(r.t, err)
	require.NoError(r.t, codec.WriteFrame(r.conn, body))
}

func (r *rawConn) recv() (*codec.Envelope, error) {
	require.NoError(r.t, r.conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	body, err := codec.ReadFrame(r.conn, 0)
	if err != nil {
		return nil, err
	}
	env, _, err := r.codec.Decode(body)
	return env, err
}

// recvReply skips events and pings.
func (r *rawConn) recvReply() *codec.Envelope {
	r.t.Helper()
	for {
		env, err := r.recv()
		require.NoError(r.t, err)
		if env.Kind == codec.KindResponse || env.Kind == codec.KindError || env.Kind == codec.KindHello {
			return env
		}
	}
}

func (r *rawConn) handshake(version int) *codec.Envelope {
	r.t.Helper()
	r.send(&codec.Envelope{Kind: codec.KindHello, ID: "hello-1", Payload: map[string]any{
		"version": version, "client": "e2e@1.0.0",
	}})
	return r.recvReply()
}

func TestE2E_ScreenshotThenListAssetsKeepCorrelation(t *testing.T) {
	env := setupE2E(t, testConfig())
	rc := dialRaw(t, env.agent)

	hello := rc.handshake(1)
	require.Equal(t, codec.KindHello, hello.Kind)
	require.NotEmpty(t, hello.Payload["session"])

	// Both requests go out before either response is read.
	rc.send(&codec.Envelope{Kind: codec.KindRequest, ID: "r-shot", Command: "editor.screenshot",
		Payload: map[string]any{"resolution": []any{640, 360}}})
	rc.send(&codec.Envelope{Kind: codec.KindRequest, ID: "r-assets", Command: "level.query_assets",
		Payload: map[string]any{"sort_by": "triangles", "limit": 3}})

	got := map[string]*codec.Envelope{}
	for len(got) < 2 {
		reply := rc.recvReply()
		require.Equal(t, codec.KindResponse, reply.Kind, "unexpected %+v", reply.Error)
		require.NotContains(t, got, reply.ID)
		got[reply.ID] = reply
	}

	shot := got["r-shot"]
	require.NotNil(t, shot)
	assert.EqualValues(t, 640, shot.Payload["width"])
	assert.Equal(t, "image/png", shot.Payload["mime_type"])
	require.Greater(t, len(shot.Attachment), 8)
	assert.Equal(t, "PNG", string(shot.Attachment[1:4]))

	assets := got["r-assets"]
	require.NotNil(t, assets)
	assert.Empty(t, assets.Attachment)
	assert.EqualValues(t, 3, assets.Payload["count"])
}

func TestE2E_VersionMismatchClosesConnection(t *testing.T) {
	env := setupE2E(t, testConfig())
	rc := dialRaw(t, env.agent)

	reply := rc.handshake(2)
	require.Equal(t, codec.KindError, reply.Kind)
	assert.Equal(t, "hello-1", reply.ID)
	assert.Equal(t, codec.CodeVersionMismatch, reply.Error.Code)

	_, err := rc.recv()
	assert.Error(t, err, "connection should be closed after refusal")
}

func TestE2E_RequestBeforeHelloIsRefused(t *testing.T) {
	env := setupE2E(t, testConfig())
	rc := dialRaw(t, env.agent)

	rc.send(&codec.Envelope{Kind: codec.KindRequest, ID: "early", Command: "system.ping"})
	reply := rc.recvReply()
	require.Equal(t, codec.KindError, reply.Kind)
	assert.Equal(t, codec.CodeMalformedMessage, reply.Error.Code)
	assert.Equal(t, "early", reply.ID)
}

func TestE2E_MainContextSerializesAcrossAgents(t *testing.T) {
	env := setupE2E(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	const agents, perAgent = 4, 5
	clients := make([]*client.Client, agents)
	for i := range clients {
		c, err := client.Dial(ctx, env.agent, client.Options{})
		require.NoError(t, err)
		defer c.Close()
		clients[i] = c
	}

	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		go func(i int, c *client.Client) {
			defer wg.Done()
			for j := 0; j < perAgent; j++ {
				_, err := c.Call(ctx, "widget.create", map[string]any{
					"name": "WBP_Agent" + string(rune('A'+i)) + string(rune('0'+j)),
				}, nil)
				assert.NoError(t, err)
			}
		}(i, c)
	}
	wg.Wait()

	// Every mutation landed exactly once; a lost or duplicated update would
	// show up as a conflict or a missing widget.
	for i := 0; i < agents; i++ {
		for j := 0; j < perAgent; j++ {
			resp, err := clients[0].Call(ctx, "widget.get_hierarchy", map[string]any{
				"path": "/Game/UI/WBP_Agent" + string(rune('A'+i)) + string(rune('0'+j)),
			}, nil)
			require.NoError(t, err)
			assert.NotNil(t, resp.Payload["root"])
		}
	}
}

func TestE2E_SubscribedEventsFollowMutations(t *testing.T) {
	env := setupE2E(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, env.agent, client.Options{Format: codec.FormatCBOR})
	require.NoError(t, err)
	defer c.Close()

	welcome := <-c.Events()
	assert.Equal(t, events.TopicProjectInfo, welcome.Topic)

	_, err = c.Call(ctx, "session.subscribe", map[string]any{"topic": "asset.*"}, nil)
	require.NoError(t, err)

	resp, err := c.Call(ctx, "content.delete", map[string]any{"paths": []any{"/Game/Meshes/SM_Crate", "/Game/Nope"}}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, resp.Payload["deleted_count"])

	select {
	case ev := <-c.Events():
		assert.Equal(t, events.TopicAssetChanged, ev.Topic)
		assert.Equal(t, "deleted", ev.Payload["action"])
		assert.Equal(t, "/Game/Meshes/SM_Crate", ev.Payload["path"])
		assert.Greater(t, ev.Seq, welcome.Seq)
	case <-ctx.Done():
		t.Fatal("tests:e2e_test - asset.changed not delivered")
	}
}

func TestE2E_ErrorsCarryCodes(t *testing.T) {
	env := setupE2E(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, env.agent, client.Options{})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Call(ctx, "no.such_command", nil, nil)
	assert.True(t, client.IsCode(err, codec.CodeUnknownCommand), "got %v", err)

	_, err = c.Call(ctx, "content.search", map[string]any{}, nil)
	assert.True(t, client.IsCode(err, codec.CodeInvalidArgument), "got %v", err)

	_, err = c.Call(ctx, "material.describe", map[string]any{"path": "/Game/Materials/M_Missing"}, nil)
	var re *client.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, codec.CodeHandlerFailure, re.Code)
	assert.False(t, re.Retryable)
}
