package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/morezero/agent-link/pkg/codec"
	"github.com/morezero/agent-link/pkg/registry"
)

// errorEnvelope maps a lookup, validation or handler error onto the wire.
// Registry-level codes pass through. Anything a handler returns becomes
// HANDLER_FAILURE unless it is INVALID_ARGUMENT.
func errorEnvelope(id string, err error) *codec.Envelope {
	if errors.Is(err, context.DeadlineExceeded) {
		return codec.NewError(id, codec.CodeRequestTimeout, "handler exceeded the request timeout", nil)
	}
	if errors.Is(err, context.Canceled) {
		return codec.NewError(id, codec.CodeConnectionClosed, "host is shutting down", nil)
	}

	var cmdErr *registry.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case codec.CodeUnknownCommand, codec.CodeInvalidArgument, codec.CodeRequestTimeout,
			codec.CodeConnectionClosed, codec.CodeHandlerFailure, codec.CodeRegistryClosed:
			return codec.NewError(id, cmdErr.Code, cmdErr.Message, cmdErr.Details)
		}
		return codec.NewError(id, codec.CodeHandlerFailure, cmdErr.Message,
			map[string]any{"reason": cmdErr.Code, "details": cmdErr.Details})
	}
	return codec.NewError(id, codec.CodeHandlerFailure, fmt.Sprintf("handler failed: %v", err), nil)
}
