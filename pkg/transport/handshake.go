package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/morezero/agent-link/pkg/codec"
	"github.com/morezero/agent-link/pkg/semver"
)

// Hello is the payload of the client's opening envelope.
type Hello struct {
	Version int    `json:"version"`
	Client  string `json:"client,omitempty"`
	Format  string `json:"format,omitempty"`
}

// handshakeError is answered on the wire and then the connection closes.
type handshakeError struct {
	env    *codec.Envelope
	format codec.Format
	msg    string
}

func (e *handshakeError) Error() string {
	return e.msg
}

// agreement is what a successful handshake settles.
type agreement struct {
	helloID string
	format  codec.Format
	client  *semver.AgentRef
	version int
}

// handshake reads the first frame and checks it. It returns a
// *handshakeError for every refusal the client should hear about.
func (m *Manager) handshake(fc FrameConn) (*agreement, error) {
	_ = fc.SetReadDeadline(time.Now().Add(m.opts.HandshakeTimeout))
	defer fc.SetReadDeadline(time.Time{})

	body, err := fc.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("%s - reading hello: %w", logPrefix, err)
	}
	env, frameFormat, err := m.codec.Decode(body)
	if err != nil {
		id := ""
		var me *codec.MalformedError
		if errors.As(err, &me) {
			id = me.ID
		}
		return nil, refuse(codec.NewError(id, codec.CodeMalformedMessage, err.Error(), nil), frameFormat)
	}
	if env.Kind != codec.KindHello {
		return nil, refuse(codec.NewError(env.ID, codec.CodeMalformedMessage,
			fmt.Sprintf("expected hello, got %s", env.Kind), nil), frameFormat)
	}

	var hello Hello
	if err := decodeHello(env.Payload, &hello); err != nil {
		return nil, refuse(codec.NewError(env.ID, codec.CodeMalformedMessage, err.Error(), nil), frameFormat)
	}

	if hello.Version != m.opts.ProtocolVersion {
		return nil, refuse(codec.NewError(env.ID, codec.CodeVersionMismatch,
			fmt.Sprintf("protocol version %d is not supported", hello.Version),
			map[string]any{"supported": []int{m.opts.ProtocolVersion}, "requested": hello.Version}), frameFormat)
	}

	agreed := &agreement{helloID: env.ID, format: frameFormat, version: hello.Version}
	if hello.Format != "" {
		f, err := codec.ParseFormat(hello.Format)
		if err != nil {
			return nil, refuse(codec.NewError(env.ID, codec.CodeMalformedMessage, err.Error(), nil), frameFormat)
		}
		agreed.format = f
	}

	if hello.Client != "" {
		ref, err := semver.ParseAgentRef(hello.Client)
		if err != nil {
			return nil, refuse(codec.NewError(env.ID, codec.CodeMalformedMessage,
				fmt.Sprintf("invalid client identity %q", hello.Client), nil), frameFormat)
		}
		agreed.client = ref
	}
	if !m.opts.ClientConstraint.Empty() {
		if err := m.opts.ClientConstraint.Check(agreed.client); err != nil {
			return nil, refuse(codec.NewError(env.ID, codec.CodeVersionMismatch,
				"client version is not accepted",
				map[string]any{"constraint": m.opts.ClientConstraint.String(), "client": hello.Client}), frameFormat)
		}
	}
	return agreed, nil
}

func refuse(env *codec.Envelope, f codec.Format) error {
	return &handshakeError{
		env:    env,
		format: f,
		msg:    fmt.Sprintf("%s - handshake refused: %s (%s)", logPrefix, env.Error.Message, strings.ToLower(env.Error.Code)),
	}
}

func decodeHello(payload map[string]any, out *Hello) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(payload); err != nil {
		return fmt.Errorf("invalid hello payload: %w", err)
	}
	return nil
}
