package audit

import (
	"context"
	"time"
)

// Outcome is the terminal result of one request.
type Outcome struct {
	ConnID      string    `json:"connId"`
	RequestID   string    `json:"requestId"`
	Command     string    `json:"command"`
	Context     string    `json:"context"`
	Status      string    `json:"status"`
	ErrorCode   string    `json:"errorCode,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// Duration is the time from submission to completion.
func (o Outcome) Duration() time.Duration {
	return o.CompletedAt.Sub(o.SubmittedAt)
}

// Status values.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Recorder accepts outcomes. Record must not block the caller.
type Recorder interface {
	Record(o Outcome)
}

// NoOpRecorder is a Recorder that does nothing (audit disabled).
type NoOpRecorder struct{}

// Record is a no-op.
func (NoOpRecorder) Record(Outcome) {}

// CallbackRecorder is a Recorder that calls a callback function (for testing).
type CallbackRecorder struct {
	callback func(o Outcome)
}

// NewCallbackRecorder creates a new CallbackRecorder.
func NewCallbackRecorder(cb func(o Outcome)) *CallbackRecorder {
	return &CallbackRecorder{callback: cb}
}

// Record calls the callback.
func (r *CallbackRecorder) Record(o Outcome) {
	r.callback(o)
}

// Sink persists a batch of outcomes.
type Sink interface {
	InsertOutcomes(ctx context.Context, batch []Outcome) (int64, error)
}
