package registry

import (
	"fmt"

	"github.com/morezero/agent-link/pkg/codec"
)

// CommandError is a structured error from registration, lookup or a handler.
type CommandError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *CommandError) Error() string {
	return e.Code + ": " + e.Message
}

// Is matches any CommandError with the same code.
func (e *CommandError) Is(target error) bool {
	t, ok := target.(*CommandError)
	return ok && t.Code == e.Code
}

// NewCommandError creates a new CommandError.
func NewCommandError(code, message string) *CommandError {
	return &CommandError{Code: code, Message: message}
}

// Sentinels for errors.Is.
var (
	ErrRegistryClosed  = NewCommandError(codec.CodeRegistryClosed, "registry is sealed")
	ErrUnknownCommand  = NewCommandError(codec.CodeUnknownCommand, "unknown command")
	ErrInvalidArgument = NewCommandError(codec.CodeInvalidArgument, "invalid argument")
)

// InvalidArgument reports a payload the handler cannot accept.
func InvalidArgument(format string, args ...any) *CommandError {
	return NewCommandError(codec.CodeInvalidArgument, fmt.Sprintf(format, args...))
}

// Failure reports a handler-level failure. reason is a short machine
// readable tag such as "not_found" or "compile_failed".
func Failure(reason, format string, args ...any) *CommandError {
	return &CommandError{
		Code:    codec.CodeHandlerFailure,
		Message: fmt.Sprintf(format, args...),
		Details: map[string]any{"reason": reason},
	}
}
