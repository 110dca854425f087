// Package registry holds the command table the dispatcher routes into.
package registry

import (
	"context"

	"github.com/xeipuuv/gojsonschema"

	"github.com/morezero/agent-link/pkg/session"
)

// ExecContext names where a command's handler must run.
type ExecContext string

const (
	// ContextMain handlers run on the host's single mutation context.
	ContextMain ExecContext = "main"
	// ContextAny handlers may run on any worker goroutine.
	ContextAny ExecContext = "any"
)

// Descriptor is the static description of a command.
type Descriptor struct {
	Name        string         `json:"name"`
	Context     ExecContext    `json:"context"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
	Idempotent  bool           `json:"idempotent"`
	Tags        []string       `json:"tags,omitempty"`
}

// Request is what a handler receives.
type Request struct {
	ConnID     string
	RequestID  string
	Command    string
	Payload    map[string]any
	Attachment []byte
	// Session is the caller's session. Nil when invoked outside a connection.
	Session *session.Session
}

// Result is a handler's successful outcome.
type Result struct {
	Payload    map[string]any
	Attachment []byte
}

// Handler executes a command.
type Handler func(ctx context.Context, req *Request) (*Result, error)

// Entry is a registered command.
type Entry struct {
	Descriptor
	handler Handler
	schema  *gojsonschema.Schema
}

// Invoke runs the handler. A nil result is normalized to an empty one.
func (e *Entry) Invoke(ctx context.Context, req *Request) (*Result, error) {
	res, err := e.handler(ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &Result{}
	}
	return res, nil
}

// Value builds a Result carrying only a payload.
func Value(payload map[string]any) *Result {
	return &Result{Payload: payload}
}
