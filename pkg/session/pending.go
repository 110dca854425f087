package session

import (
	"sync/atomic"
	"time"
)

// State is the lifecycle position of a pending request.
type State int32

// Submitted moves to Executing or Cancelled, and both end in Completed.
const (
	StateSubmitted State = iota
	StateExecuting
	StateCancelled
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StateExecuting:
		return "executing"
	case StateCancelled:
		return "cancelled"
	case StateCompleted:
		return "completed"
	}
	return "unknown"
}

// Pending tracks one request from submission to its terminal response.
type Pending struct {
	ConnID      string
	RequestID   string
	Command     string
	ExecContext string
	Counted     bool
	SubmittedAt time.Time

	state atomic.Int32
}

// State returns the current state.
func (p *Pending) State() State {
	return State(p.state.Load())
}

// MarkExecuting moves a submitted request to executing. It returns false
// when the request was cancelled first; the handler must then not run.
func (p *Pending) MarkExecuting() bool {
	return p.state.CompareAndSwap(int32(StateSubmitted), int32(StateExecuting))
}

// Cancel moves a submitted request to cancelled. Requests already
// executing are not interrupted and Cancel returns false for them.
func (p *Pending) Cancel() bool {
	return p.state.CompareAndSwap(int32(StateSubmitted), int32(StateCancelled))
}

// Cancelled reports whether the request was cancelled before it ran.
func (p *Pending) Cancelled() bool {
	return p.State() == StateCancelled
}

func (p *Pending) markCompleted() {
	p.state.Store(int32(StateCompleted))
}
