// Package dispatcher routes decoded requests to registered handlers and
// marshals main-context work onto the mutation queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/agent-link/pkg/audit"
	"github.com/morezero/agent-link/pkg/codec"
	"github.com/morezero/agent-link/pkg/mainloop"
	"github.com/morezero/agent-link/pkg/metrics"
	"github.com/morezero/agent-link/pkg/registry"
	"github.com/morezero/agent-link/pkg/session"
)

const logPrefix = "dispatcher:dispatch"

// Deliverer queues a reply on a connection. Replies are never dropped
// while the connection lives; a gone connection reports
// codec.ErrConnectionClosed.
type Deliverer interface {
	Deliver(connID string, env *codec.Envelope) error
}

// Options tunes a Dispatcher. Zero values take defaults.
type Options struct {
	// MaxInflight caps concurrent any-context requests per connection.
	MaxInflight int
	// RequestTimeout bounds any-context handlers and how long a main
	// entry may wait in the queue before it is answered REQUEST_TIMEOUT.
	RequestTimeout time.Duration
	// Dedupe lets identical in-flight idempotent requests share one execution.
	Dedupe   bool
	Metrics  *metrics.Metrics
	Recorder audit.Recorder
}

const (
	DefaultMaxInflight    = 8
	DefaultRequestTimeout = 25 * time.Second
)

// Dispatcher routes requests from every connection. It is safe for
// concurrent use; each connection's read loop calls HandleEnvelope.
type Dispatcher struct {
	registry *registry.Registry
	sessions *session.Manager
	queue    *mainloop.Queue
	out      Deliverer
	opts     Options

	mu      sync.Mutex
	flights map[string]*flight

	baseCtx context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// New creates a Dispatcher. The registry must already be sealed.
func New(reg *registry.Registry, sessions *session.Manager, queue *mainloop.Queue, out Deliverer, opts Options) (*Dispatcher, error) {
	if reg == nil || sessions == nil || queue == nil || out == nil {
		return nil, fmt.Errorf("%s - registry, sessions, queue and deliverer are required", logPrefix)
	}
	if !reg.Sealed() {
		return nil, fmt.Errorf("%s - registry must be sealed before dispatching", logPrefix)
	}
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = DefaultMaxInflight
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Recorder == nil {
		opts.Recorder = audit.NoOpRecorder{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		registry: reg,
		sessions: sessions,
		queue:    queue,
		out:      out,
		opts:     opts,
		flights:  make(map[string]*flight),
		baseCtx:  ctx,
		cancel:   cancel,
	}, nil
}

// HandleEnvelope accepts one req or ntf envelope from connID. It never
// blocks on handler execution.
func (d *Dispatcher) HandleEnvelope(connID string, env *codec.Envelope) {
	sess := d.sessions.Get(connID)
	if sess == nil {
		slog.Debug(fmt.Sprintf("%s - dropping %s from closed connection %s", logPrefix, env.ID, connID))
		return
	}
	slog.Debug(fmt.Sprintf("%s - conn=%s id=%s command=%s", logPrefix, connID, env.ID, env.Command))

	entry, err := d.registry.Resolve(env.Command)
	if err != nil {
		d.reject(sess, env, "", errorEnvelope(env.ID, err))
		return
	}

	counted := entry.Context == registry.ContextAny
	p, err := sess.Begin(env.ID, env.Command, string(entry.Context), counted, d.opts.MaxInflight)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrDuplicateRequestID):
		d.reject(sess, env, entry.Context, codec.NewError(env.ID, codec.CodeDuplicateRequestID,
			fmt.Sprintf("request id %s is already pending", env.ID), nil))
		return
	case errors.Is(err, session.ErrBackpressure):
		d.opts.Metrics.Backpressure()
		d.reject(sess, env, entry.Context, codec.NewError(env.ID, codec.CodeBackpressure,
			fmt.Sprintf("more than %d requests in flight", d.opts.MaxInflight),
			map[string]any{"limit": d.opts.MaxInflight}))
		return
	default:
		// Session closed between Get and Begin.
		return
	}

	if err := entry.Validate(env.Payload); err != nil {
		sess.Complete(p)
		d.reject(sess, env, entry.Context, errorEnvelope(env.ID, err))
		return
	}

	w := &waiter{
		sess:    sess,
		pending: p,
		notify:  env.Kind == codec.KindNotify,
		req: &registry.Request{
			ConnID:     connID,
			RequestID:  env.ID,
			Command:    env.Command,
			Payload:    env.Payload,
			Attachment: env.Attachment,
			Session:    sess,
		},
	}

	f, joined := d.attach(entry, w)
	if joined {
		slog.Debug(fmt.Sprintf("%s - %s joined in-flight %s", logPrefix, env.ID, entry.Name))
		return
	}

	if entry.Context == registry.ContextAny {
		d.workers.Add(1)
		go func() {
			defer d.workers.Done()
			d.runAny(f)
		}()
		return
	}

	if err := d.queue.Submit(func() { d.runMain(f) }); err != nil {
		d.start(f)
		d.finish(f, nil, registry.NewCommandError(codec.CodeConnectionClosed, "host is shutting down"))
	}
}

// Disconnected cancels every request of connID still waiting for the
// mutation context. Cancelled entries are never invoked.
func (d *Dispatcher) Disconnected(connID string) {
	cancelled := d.sessions.Close(connID)
	now := time.Now()
	for _, p := range cancelled {
		d.record(p, registry.ExecContext(p.ExecContext), audit.StatusCancelled, codec.CodeConnectionClosed, now)
	}
	if len(cancelled) > 0 {
		slog.Info(fmt.Sprintf("%s - connection %s closed, cancelled %d queued requests", logPrefix, connID, len(cancelled)))
	}
}

// Shutdown cancels running any-context handlers and waits for them to
// return or for ctx to end.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.cancel()
	done := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s - workers still running: %w", logPrefix, ctx.Err())
	}
}

func (d *Dispatcher) runAny(f *flight) {
	live := d.start(f)
	if len(live) == 0 {
		d.finish(f, nil, nil)
		return
	}
	ctx, cancel := context.WithTimeout(d.baseCtx, d.opts.RequestTimeout)
	defer cancel()
	res, err := d.invoke(ctx, f.entry, live[0].req)
	d.finish(f, res, err)
}

// runMain executes on the mutation context.
func (d *Dispatcher) runMain(f *flight) {
	live := d.start(f)
	if len(live) == 0 {
		d.finish(f, nil, nil)
		return
	}
	if time.Since(f.submittedAt) > d.opts.RequestTimeout {
		d.finish(f, nil, registry.NewCommandError(codec.CodeRequestTimeout,
			fmt.Sprintf("%s waited longer than %s for the main context", f.entry.Name, d.opts.RequestTimeout)))
		return
	}
	ctx, cancel := context.WithTimeout(d.baseCtx, d.opts.RequestTimeout)
	defer cancel()
	res, err := d.invoke(ctx, f.entry, live[0].req)
	d.finish(f, res, err)
}

// invoke runs a handler and turns a panic into HANDLER_FAILURE.
func (d *Dispatcher) invoke(ctx context.Context, entry *registry.Entry, req *registry.Request) (res *registry.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - handler %s panicked: %v", logPrefix, entry.Name, r))
			res = nil
			err = registry.Failure("panic", "%s panicked: %v", entry.Name, r)
		}
	}()
	return entry.Invoke(ctx, req)
}

// reply sends the terminal envelope for one waiter and completes it.
func (d *Dispatcher) reply(f *flight, w *waiter, res *registry.Result, err error) {
	w.sess.Complete(w.pending)

	var env *codec.Envelope
	status, code := audit.StatusOK, ""
	if err != nil {
		env = errorEnvelope(w.req.RequestID, err)
		status, code = audit.StatusError, env.Error.Code
	} else if !w.notify {
		env = codec.NewResponse(w.req.RequestID, res.Payload, res.Attachment)
	}
	d.record(w.pending, f.entry.Context, status, code, time.Now())

	if env == nil {
		return
	}
	if err := d.out.Deliver(w.req.ConnID, env); err != nil && !errors.Is(err, codec.ErrConnectionClosed) {
		slog.Warn(fmt.Sprintf("%s - deliver %s to %s: %v", logPrefix, w.req.RequestID, w.req.ConnID, err))
	}
}

// reject answers a request refused before it reached a handler.
func (d *Dispatcher) reject(sess *session.Session, env *codec.Envelope, ctx registry.ExecContext, errEnv *codec.Envelope) {
	now := time.Now()
	d.opts.Metrics.CommandCompleted(env.Command, string(ctx), audit.StatusError, 0)
	d.opts.Recorder.Record(audit.Outcome{
		ConnID:      sess.ID(),
		RequestID:   env.ID,
		Command:     env.Command,
		Context:     string(ctx),
		Status:      audit.StatusError,
		ErrorCode:   errEnv.Error.Code,
		SubmittedAt: now,
		CompletedAt: now,
	})
	slog.Debug(fmt.Sprintf("%s - rejected %s (%s): %s", logPrefix, env.ID, env.Command, errEnv.Error.Code))
	if err := d.out.Deliver(sess.ID(), errEnv); err != nil && !errors.Is(err, codec.ErrConnectionClosed) {
		slog.Warn(fmt.Sprintf("%s - deliver rejection %s: %v", logPrefix, env.ID, err))
	}
}

func (d *Dispatcher) record(p *session.Pending, ctx registry.ExecContext, status, code string, at time.Time) {
	d.opts.Metrics.CommandCompleted(p.Command, string(ctx), status, at.Sub(p.SubmittedAt))
	d.opts.Recorder.Record(audit.Outcome{
		ConnID:      p.ConnID,
		RequestID:   p.RequestID,
		Command:     p.Command,
		Context:     string(ctx),
		Status:      status,
		ErrorCode:   code,
		SubmittedAt: p.SubmittedAt,
		CompletedAt: at,
	})
}
