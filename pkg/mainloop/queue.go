// Package mainloop serializes work onto the host's single mutation context.
package mainloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
)

const logPrefix = "mainloop:queue"

// ErrQueueClosed is returned by Submit after Close.
var ErrQueueClosed = errors.New("mutation queue closed")

// Task is an opaque continuation run on the mutation context.
type Task func()

// Observer receives queue depth changes. It may be nil.
type Observer interface {
	QueueDepth(n int)
}

// Queue is a strict FIFO of tasks guarded by one lock. Any goroutine may
// submit; tasks run one at a time, either from Run on a dedicated
// locked thread or from DrainOnce in a test or host tick.
type Queue struct {
	mu     sync.Mutex
	tasks  []Task
	closed bool
	wake   chan struct{}
	obs    Observer

	// running guards against two drains overlapping.
	running sync.Mutex
}

// New creates an empty Queue.
func New(obs Observer) *Queue {
	return &Queue{
		wake: make(chan struct{}, 1),
		obs:  obs,
	}
}

// Submit appends t to the queue. It never blocks on the mutation context.
func (q *Queue) Submit(t Task) error {
	if t == nil {
		return fmt.Errorf("%s - nil task", logPrefix)
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.tasks = append(q.tasks, t)
	depth := len(q.tasks)
	q.mu.Unlock()

	q.observe(depth)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// DrainOnce runs queued tasks on the calling goroutine until the queue
// is empty, including tasks submitted while draining. It returns the
// number of tasks run.
func (q *Queue) DrainOnce() int {
	q.running.Lock()
	defer q.running.Unlock()

	n := 0
	for {
		t, ok := q.pop()
		if !ok {
			return n
		}
		q.runTask(t)
		n++
	}
}

// Run pins the calling goroutine to its OS thread and executes tasks
// until ctx is done. Tasks still queued at that point are run before
// Run returns, so every accepted task gets its response.
func (q *Queue) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	slog.Info(fmt.Sprintf("%s - mutation context started", logPrefix))
	for {
		select {
		case <-ctx.Done():
			q.Close()
			drained := q.DrainOnce()
			slog.Info(fmt.Sprintf("%s - mutation context stopped, drained %d remaining tasks", logPrefix, drained))
			return nil
		case <-q.wake:
			q.DrainOnce()
		}
	}
}

// Close rejects further submissions. Queued tasks stay queued.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

func (q *Queue) pop() (Task, bool) {
	q.mu.Lock()
	if len(q.tasks) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	t := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	depth := len(q.tasks)
	q.mu.Unlock()

	q.observe(depth)
	return t, true
}

// runTask keeps the loop alive when a task panics.
func (q *Queue) runTask(t Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - task panicked: %v", logPrefix, r))
		}
	}()
	t()
}

func (q *Queue) observe(depth int) {
	if q.obs != nil {
		q.obs.QueueDepth(depth)
	}
}
