package codec

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Format selects the header encoding of a frame.
type Format uint8

const (
	FormatJSON Format = iota
	FormatCBOR
)

func (f Format) String() string {
	if f == FormatCBOR {
		return "cbor"
	}
	return "json"
}

// ParseFormat accepts "json", "cbor" or "" (json).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "cbor":
		return FormatCBOR, nil
	}
	return FormatJSON, fmt.Errorf("unknown format %q", s)
}

// Frame body layout: flags(1) | header length(4, big-endian) | header | attachment.
const (
	flagAttachment byte = 1 << 0
	flagCBOR       byte = 1 << 1
	knownFlags          = flagAttachment | flagCBOR

	bodyPrefixLen = 5
)

// Limits bounds the sizes the codec accepts.
type Limits struct {
	MaxPayload    int
	MaxAttachment int
	MaxFrame      int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxPayload:    1 << 20,
		MaxAttachment: 16 << 20,
		MaxFrame:      32 << 20,
	}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Canonical returns the deterministic CBOR encoding of v.
// Equal payloads always produce equal bytes.
func Canonical(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Codec encodes and decodes envelopes within a set of limits.
// It holds no mutable state and is safe for concurrent use.
type Codec struct {
	limits Limits
}

// New creates a Codec. Zero limit fields take their defaults.
func New(limits Limits) *Codec {
	def := DefaultLimits()
	if limits.MaxPayload <= 0 {
		limits.MaxPayload = def.MaxPayload
	}
	if limits.MaxAttachment <= 0 {
		limits.MaxAttachment = def.MaxAttachment
	}
	if limits.MaxFrame <= 0 {
		limits.MaxFrame = def.MaxFrame
	}
	return &Codec{limits: limits}
}

// Limits returns the effective limits.
func (c *Codec) Limits() Limits {
	return c.limits
}

// Encode serializes env into a frame body using format f for the header.
func (c *Codec) Encode(env *Envelope, f Format) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("codec: nil envelope")
	}
	var (
		header []byte
		err    error
	)
	if f == FormatCBOR {
		header, err = encMode.Marshal(env)
	} else {
		header, err = json.Marshal(env)
	}
	if err != nil {
		return nil, fmt.Errorf("codec: encode %s header: %w", f, err)
	}
	if len(header) > c.limits.MaxPayload {
		return nil, fmt.Errorf("codec: header %d bytes over %d: %w", len(header), c.limits.MaxPayload, ErrTooLarge)
	}
	if len(env.Attachment) > c.limits.MaxAttachment {
		return nil, fmt.Errorf("codec: attachment %d bytes over %d: %w", len(env.Attachment), c.limits.MaxAttachment, ErrTooLarge)
	}

	var flags byte
	if f == FormatCBOR {
		flags |= flagCBOR
	}
	if env.Attachment != nil {
		flags |= flagAttachment
	}

	body := make([]byte, bodyPrefixLen+len(header)+len(env.Attachment))
	body[0] = flags
	binary.BigEndian.PutUint32(body[1:bodyPrefixLen], uint32(len(header)))
	copy(body[bodyPrefixLen:], header)
	copy(body[bodyPrefixLen+len(header):], env.Attachment)
	return body, nil
}

// Decode parses a frame body. It returns the header format so the
// caller can answer in kind. Rejections are *MalformedError values
// carrying the correlation id whenever it could be read.
func (c *Codec) Decode(body []byte) (*Envelope, Format, error) {
	if len(body) < bodyPrefixLen {
		return nil, FormatJSON, malformed("", "truncated frame", nil)
	}
	flags := body[0]
	format := FormatJSON
	if flags&flagCBOR != 0 {
		format = FormatCBOR
	}
	if flags&^knownFlags != 0 {
		return nil, format, malformed("", fmt.Sprintf("unknown flags 0x%02x", flags), nil)
	}
	headerLen := int(binary.BigEndian.Uint32(body[1:bodyPrefixLen]))
	if headerLen > len(body)-bodyPrefixLen {
		return nil, format, malformed("", "header length exceeds frame", nil)
	}
	header := body[bodyPrefixLen : bodyPrefixLen+headerLen]
	rest := body[bodyPrefixLen+headerLen:]

	if headerLen > c.limits.MaxPayload {
		return nil, format, malformed(c.recoverID(format, header), fmt.Sprintf("payload %d bytes exceeds limit %d", headerLen, c.limits.MaxPayload), nil)
	}

	var in inbound
	if err := c.unmarshal(format, header, &in); err != nil {
		return nil, format, malformed(c.recoverID(format, header), "undecodable header", err)
	}
	env := &in.Envelope
	if env.Payload == nil && in.Params != nil {
		env.Payload = in.Params
	}
	if len(rest) > c.limits.MaxAttachment {
		return nil, format, malformed(env.ID, fmt.Sprintf("attachment %d bytes exceeds limit %d", len(rest), c.limits.MaxAttachment), nil)
	}
	if flags&flagAttachment != 0 {
		env.Attachment = make([]byte, len(rest))
		copy(env.Attachment, rest)
	} else if len(rest) > 0 {
		return nil, format, malformed(env.ID, "trailing bytes without attachment flag", nil)
	}

	if err := validate(env); err != nil {
		return nil, format, err
	}
	return env, format, nil
}

// inbound is the decode-side header. Some agents send the payload under
// "params"; "payload" wins when both are present.
type inbound struct {
	Envelope
	Params map[string]any `json:"params,omitempty"`
}

func (c *Codec) unmarshal(f Format, data []byte, v any) error {
	if f == FormatCBOR {
		return decMode.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

// recoverID makes a best-effort attempt to read only the id field.
func (c *Codec) recoverID(f Format, header []byte) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := c.unmarshal(f, header, &probe); err != nil {
		return ""
	}
	return probe.ID
}

func validate(env *Envelope) error {
	if !env.Kind.Valid() {
		return malformed(env.ID, fmt.Sprintf("unknown envelope type %q", env.Kind), nil)
	}
	if env.Kind.ExpectsCommand() {
		if env.ID == "" {
			return malformed("", "missing correlation id", nil)
		}
		if env.Command == "" {
			return malformed(env.ID, "missing command", nil)
		}
	}
	if env.Kind == KindError && env.Error == nil {
		return malformed(env.ID, "error envelope without error detail", nil)
	}
	return nil
}

// HeaderOnly returns the raw header of a JSON frame without attachment.
// It reports false for any other frame.
func HeaderOnly(body []byte) ([]byte, bool) {
	if len(body) < bodyPrefixLen || body[0] != 0 {
		return nil, false
	}
	n := int(binary.BigEndian.Uint32(body[1:bodyPrefixLen]))
	if n != len(body)-bodyPrefixLen {
		return nil, false
	}
	return body[bodyPrefixLen:], true
}

// WrapHeader turns a bare JSON header into a frame body.
func WrapHeader(header []byte) []byte {
	body := make([]byte, bodyPrefixLen+len(header))
	binary.BigEndian.PutUint32(body[1:bodyPrefixLen], uint32(len(header)))
	copy(body[bodyPrefixLen:], header)
	return body
}
