package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

const batchLogPrefix = "audit:batch"

// BatchRecorder buffers outcomes and writes them to a Sink in batches
// from one background goroutine. When the buffer is full new outcomes
// are dropped and counted; the dispatcher is never slowed by audit I/O.
type BatchRecorder struct {
	sink          Sink
	ch            chan Outcome
	batchSize     int
	flushInterval time.Duration
	dropped       atomic.Uint64
	written       atomic.Uint64
	done          chan struct{}
}

// BatchOptions tunes a BatchRecorder. Zero values take defaults.
type BatchOptions struct {
	Buffer        int
	BatchSize     int
	FlushInterval time.Duration
}

// NewBatchRecorder creates a BatchRecorder. Call Run to start writing.
func NewBatchRecorder(sink Sink, opts BatchOptions) *BatchRecorder {
	if opts.Buffer <= 0 {
		opts.Buffer = 1024
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	return &BatchRecorder{
		sink:          sink,
		ch:            make(chan Outcome, opts.Buffer),
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		done:          make(chan struct{}),
	}
}

// Record enqueues o without blocking.
func (b *BatchRecorder) Record(o Outcome) {
	select {
	case b.ch <- o:
	default:
		if b.dropped.Add(1)%100 == 1 {
			slog.Warn(fmt.Sprintf("%s - audit buffer full, %d outcomes dropped so far", batchLogPrefix, b.dropped.Load()))
		}
	}
}

// Dropped returns how many outcomes were discarded because the buffer was full.
func (b *BatchRecorder) Dropped() uint64 {
	return b.dropped.Load()
}

// Written returns how many outcomes the sink accepted.
func (b *BatchRecorder) Written() uint64 {
	return b.written.Load()
}

// Run writes batches until ctx is done, then flushes what is buffered.
func (b *BatchRecorder) Run(ctx context.Context) error {
	defer close(b.done)
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	batch := make([]Outcome, 0, b.batchSize)
	for {
		select {
		case o := <-b.ch:
			batch = append(batch, o)
			if len(batch) >= b.batchSize {
				batch = b.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = b.flush(ctx, batch)
		case <-ctx.Done():
			for {
				select {
				case o := <-b.ch:
					batch = append(batch, o)
				default:
					flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					b.flush(flushCtx, batch)
					cancel()
					return nil
				}
			}
		}
	}
}

// Done is closed when Run has returned.
func (b *BatchRecorder) Done() <-chan struct{} {
	return b.done
}

func (b *BatchRecorder) flush(ctx context.Context, batch []Outcome) []Outcome {
	if len(batch) == 0 {
		return batch
	}
	n, err := b.sink.InsertOutcomes(ctx, batch)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to write %d outcomes: %v", batchLogPrefix, len(batch), err))
	}
	b.written.Add(uint64(n))
	return batch[:0]
}
