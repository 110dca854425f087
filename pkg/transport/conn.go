// Package transport accepts agent connections, runs the handshake and
// moves frames between the network and the dispatcher.
package transport

import (
	"bufio"
	"net"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/morezero/agent-link/pkg/codec"
)

// ErrConnectionClosed is returned when delivering to a connection that is gone.
var ErrConnectionClosed = codec.ErrConnectionClosed

// FrameConn moves whole frame bodies over one network connection.
// ReadFrame is called from one goroutine and WriteFrame from another.
type FrameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(body []byte) error
	SetReadDeadline(t time.Time) error
	RemoteAddr() string
	Transport() string
	Close() error
}

// streamConn frames a byte stream with a 4-byte length prefix.
type streamConn struct {
	c        net.Conn
	r        *bufio.Reader
	maxFrame int
}

// NewStreamConn wraps a raw stream connection such as TCP.
func NewStreamConn(c net.Conn, maxFrame int) FrameConn {
	return &streamConn{c: c, r: bufio.NewReaderSize(c, 64*1024), maxFrame: maxFrame}
}

func (s *streamConn) ReadFrame() ([]byte, error) {
	return codec.ReadFrame(s.r, s.maxFrame)
}

func (s *streamConn) WriteFrame(body []byte) error {
	_ = s.c.SetWriteDeadline(time.Now().Add(writeWait))
	return codec.WriteFrame(s.c, body)
}

func (s *streamConn) SetReadDeadline(t time.Time) error {
	return s.c.SetReadDeadline(t)
}

func (s *streamConn) RemoteAddr() string {
	return s.c.RemoteAddr().String()
}

func (s *streamConn) Transport() string {
	return "tcp"
}

func (s *streamConn) Close() error {
	return s.c.Close()
}

// wsConn carries one frame body per binary WebSocket message. A text
// message is a bare JSON header; once a client speaks text it is
// answered in text whenever the frame has no attachment.
type wsConn struct {
	c    *websocket.Conn
	text atomic.Bool
}

// NewWebSocketConn wraps an upgraded WebSocket connection.
func NewWebSocketConn(c *websocket.Conn, maxFrame int) FrameConn {
	if maxFrame > 0 {
		c.SetReadLimit(int64(maxFrame))
	}
	return &wsConn{c: c}
}

func (w *wsConn) ReadFrame() ([]byte, error) {
	mt, data, err := w.c.ReadMessage()
	if err != nil {
		// An oversized WebSocket message breaks the connection, unlike an
		// oversized stream frame which is skipped.
		return nil, err
	}
	if mt == websocket.TextMessage {
		w.text.Store(true)
		return codec.WrapHeader(data), nil
	}
	w.text.Store(false)
	return data, nil
}

func (w *wsConn) WriteFrame(body []byte) error {
	_ = w.c.SetWriteDeadline(time.Now().Add(writeWait))
	if w.text.Load() {
		if header, ok := codec.HeaderOnly(body); ok {
			return w.c.WriteMessage(websocket.TextMessage, header)
		}
	}
	return w.c.WriteMessage(websocket.BinaryMessage, body)
}

func (w *wsConn) SetReadDeadline(t time.Time) error {
	return w.c.SetReadDeadline(t)
}

func (w *wsConn) RemoteAddr() string {
	return w.c.RemoteAddr().String()
}

func (w *wsConn) Transport() string {
	return "ws"
}

func (w *wsConn) Close() error {
	_ = w.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return w.c.Close()
}
