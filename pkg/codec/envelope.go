// Package codec defines the agent wire envelope and converts it to and from frames.
package codec

// Kind is the envelope discriminator carried in the "type" field.
type Kind string

// Envelope kinds.
const (
	KindHello    Kind = "hello"
	KindRequest  Kind = "req"
	KindNotify   Kind = "ntf"
	KindResponse Kind = "res"
	KindError    Kind = "err"
	KindEvent    Kind = "evt"
	KindPing     Kind = "ping"
	KindPong     Kind = "pong"
)

// Valid reports whether k is a known envelope kind.
func (k Kind) Valid() bool {
	switch k {
	case KindHello, KindRequest, KindNotify, KindResponse, KindError, KindEvent, KindPing, KindPong:
		return true
	}
	return false
}

// ExpectsCommand reports whether envelopes of this kind must name a command.
func (k Kind) ExpectsCommand() bool {
	return k == KindRequest || k == KindNotify
}

// Envelope is the unit of exchange between an agent and the host.
// For events, Command carries the topic.
type Envelope struct {
	Kind       Kind           `json:"type"`
	ID         string         `json:"id,omitempty"`
	Command    string         `json:"method,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	Error      *ErrorDetail   `json:"error,omitempty"`
	Seq        uint64         `json:"seq,omitempty"`
	Attachment []byte         `json:"-"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

// Error codes carried in ErrorDetail.Code.
const (
	CodeMalformedMessage   = "MALFORMED_MESSAGE"
	CodeUnknownCommand     = "UNKNOWN_COMMAND"
	CodeDuplicateRequestID = "DUPLICATE_REQUEST_ID"
	CodeBackpressure       = "BACKPRESSURE"
	CodeRegistryClosed     = "REGISTRY_CLOSED"
	CodeHandlerFailure     = "HANDLER_FAILURE"
	CodeConnectionClosed   = "CONNECTION_CLOSED"
	CodeVersionMismatch    = "VERSION_MISMATCH"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeRequestTimeout     = "REQUEST_TIMEOUT"
)

// Retryable reports whether a client may resend a request that failed with code.
func Retryable(code string) bool {
	return code == CodeBackpressure || code == CodeRequestTimeout
}

// NewResponse builds a success envelope for request id.
func NewResponse(id string, result map[string]any, attachment []byte) *Envelope {
	return &Envelope{Kind: KindResponse, ID: id, Payload: result, Attachment: attachment}
}

// NewError builds an error envelope for request id.
func NewError(id, code, message string, details interface{}) *Envelope {
	return &Envelope{
		Kind: KindError,
		ID:   id,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			Retryable: Retryable(code),
		},
	}
}

// NewEvent builds an event envelope for topic.
func NewEvent(topic string, seq uint64, payload map[string]any) *Envelope {
	return &Envelope{Kind: KindEvent, Command: topic, Seq: seq, Payload: payload}
}
