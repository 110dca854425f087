package mainloop

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type depthRecorder struct {
	mu     sync.Mutex
	depths []int
}

func (d *depthRecorder) QueueDepth(n int) {
	d.mu.Lock()
	d.depths = append(d.depths, n)
	d.mu.Unlock()
}

func TestDrainOnce_FIFO(t *testing.T) {
	q := New(nil)
	var order []int
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, q.Submit(func() { order = append(order, i) }))
	}
	assert.Equal(t, 10, q.Len())
	assert.Equal(t, 10, q.DrainOnce())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
	assert.Equal(t, 0, q.Len())
}

func TestDrainOnce_RunsTasksSubmittedWhileDraining(t *testing.T) {
	q := New(nil)
	var order []string
	require.NoError(t, q.Submit(func() {
		order = append(order, "first")
		_ = q.Submit(func() { order = append(order, "nested") })
	}))
	require.NoError(t, q.Submit(func() { order = append(order, "second") }))

	assert.Equal(t, 3, q.DrainOnce())
	assert.Equal(t, []string{"first", "second", "nested"}, order)
}

func TestDrainOnce_SurvivesPanic(t *testing.T) {
	q := New(nil)
	ran := false
	require.NoError(t, q.Submit(func() { panic("boom") }))
	require.NoError(t, q.Submit(func() { ran = true }))

	assert.Equal(t, 2, q.DrainOnce())
	assert.True(t, ran)
}

func TestSubmit_AfterClose(t *testing.T) {
	q := New(nil)
	require.NoError(t, q.Submit(func() {}))
	q.Close()
	assert.ErrorIs(t, q.Submit(func() {}), ErrQueueClosed)
	assert.Equal(t, 1, q.DrainOnce(), "tasks accepted before Close still run")
}

func TestSubmit_Nil(t *testing.T) {
	assert.Error(t, New(nil).Submit(nil))
}

func TestRun_SerializesConcurrentProducers(t *testing.T) {
	q := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Run(ctx)
		close(done)
	}()

	const producers, perProducer = 8, 50
	var (
		active   atomic.Int32
		overlaps atomic.Int32
		count    atomic.Int32
		wg       sync.WaitGroup
		perSeq   = make([][]int, producers)
		seqMu    sync.Mutex
	)
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				i := i
				assert.NoError(t, q.Submit(func() {
					if active.Add(1) > 1 {
						overlaps.Add(1)
					}
					seqMu.Lock()
					perSeq[p] = append(perSeq[p], i)
					seqMu.Unlock()
					count.Add(1)
					active.Add(-1)
				}))
			}
		}(p)
	}
	wg.Wait()

	require.Eventually(t, func() bool { return count.Load() == producers*perProducer }, 5*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, int32(0), overlaps.Load(), "tasks must never overlap")
	for p := 0; p < producers; p++ {
		for i, v := range perSeq[p] {
			assert.Equal(t, i, v, "producer %d order", p)
		}
	}
}

func TestRun_DrainsOnShutdown(t *testing.T) {
	q := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := 0
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Submit(func() { ran++ }))
	}
	require.NoError(t, q.Run(ctx))
	assert.Equal(t, 3, ran)
	assert.ErrorIs(t, q.Submit(func() {}), ErrQueueClosed)
}

func TestObserver_SeesDepth(t *testing.T) {
	obs := &depthRecorder{}
	q := New(obs)
	require.NoError(t, q.Submit(func() {}))
	require.NoError(t, q.Submit(func() {}))
	q.DrainOnce()
	assert.Equal(t, []int{1, 2, 1, 0}, obs.depths)
}
