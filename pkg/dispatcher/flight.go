package dispatcher

import (
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"

	"github.com/morezero/agent-link/pkg/codec"
	"github.com/morezero/agent-link/pkg/registry"
	"github.com/morezero/agent-link/pkg/session"
)

// waiter is one request attached to a flight.
type waiter struct {
	sess    *session.Session
	pending *session.Pending
	req     *registry.Request
	notify  bool
}

// flight is one handler execution shared by every waiter attached to it.
// Without dedupe a flight has exactly one waiter.
type flight struct {
	entry       *registry.Entry
	key         string
	submittedAt time.Time

	// guarded by Dispatcher.mu
	waiters []*waiter
	started bool
}

// attach puts w on an identical in-flight request when dedupe applies,
// or on a new flight. joined reports whether an existing flight was used.
func (d *Dispatcher) attach(entry *registry.Entry, w *waiter) (*flight, bool) {
	key := ""
	if d.opts.Dedupe && entry.Idempotent {
		key = dedupeKey(entry.Name, w.req.Payload, w.req.Attachment)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if key != "" {
		if f, ok := d.flights[key]; ok {
			if f.started && !w.pending.MarkExecuting() {
				return f, true
			}
			f.waiters = append(f.waiters, w)
			return f, true
		}
	}
	f := &flight{entry: entry, key: key, submittedAt: w.pending.SubmittedAt, waiters: []*waiter{w}}
	if key != "" {
		d.flights[key] = f
	}
	return f, false
}

// start moves every waiter to executing and returns those still alive.
// Waiters whose connection closed first are dropped.
func (d *Dispatcher) start(f *flight) []*waiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	f.started = true
	live := f.waiters[:0]
	for _, w := range f.waiters {
		if w.pending.MarkExecuting() {
			live = append(live, w)
		}
	}
	f.waiters = live
	return append([]*waiter(nil), live...)
}

// finish detaches the flight and answers each waiter. A nil err with a
// nil res means nobody was left to run for.
func (d *Dispatcher) finish(f *flight, res *registry.Result, err error) {
	d.mu.Lock()
	if f.key != "" && d.flights[f.key] == f {
		delete(d.flights, f.key)
	}
	waiters := f.waiters
	f.waiters = nil
	d.mu.Unlock()

	if res == nil && err == nil {
		return
	}
	for _, w := range waiters {
		if w.pending.Cancelled() {
			continue
		}
		d.reply(f, w, res, err)
	}
}

// dedupeKey identifies requests that would do the same work.
func dedupeKey(command string, payload map[string]any, attachment []byte) string {
	canon, err := codec.Canonical(payload)
	if err != nil {
		return ""
	}
	h := blake3.New()
	_, _ = h.Write(canon)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(attachment)
	return command + "\x00" + hex.EncodeToString(h.Sum(nil))
}
