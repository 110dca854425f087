package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed matches every MalformedError.
	ErrMalformed = errors.New("malformed message")
	// ErrFrameTooLarge is returned by ReadFrame for a frame above the limit.
	// The oversized frame has already been skipped; the stream stays usable.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrTooLarge is returned by Encode when an envelope exceeds the limits.
	ErrTooLarge = errors.New("envelope exceeds limits")
	// ErrConnectionClosed is returned when writing to a connection that is gone.
	ErrConnectionClosed = errors.New("connection closed")
)

// MalformedError reports an envelope that could not be accepted.
// ID holds the correlation id when it could be recovered, else "".
type MalformedError struct {
	ID     string
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	msg := fmt.Sprintf("malformed message: %s", e.Reason)
	if e.ID != "" {
		msg = fmt.Sprintf("malformed message %s: %s", e.ID, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrMalformed) true.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformed
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

func malformed(id, reason string, err error) *MalformedError {
	return &MalformedError{ID: id, Reason: reason, Err: err}
}
