package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcTask adapts a closure to the Task interface.
type funcTask func()

func (f funcTask) Execute() { f() }

func TestPool_ExecutesSubmittedTasks(t *testing.T) {
	pool := NewPool(2, 10)
	pool.Start()
	defer pool.Stop()

	var completed int32
	for i := 0; i < 5; i++ {
		ok := pool.Submit(funcTask(func() {
			atomic.AddInt32(&completed, 1)
		}))
		require.True(t, ok)
	}

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(5), atomic.LoadInt32(&completed))
}

func TestPool_PanicRecovery(t *testing.T) {
	pool := NewPool(2, 10)
	pool.Start()
	defer pool.Stop()

	var completed int32

	pool.Submit(funcTask(func() { panic("intentional panic for testing") }))
	pool.Submit(funcTask(func() { panic("intentional panic for testing") }))
	pool.Submit(funcTask(func() { atomic.AddInt32(&completed, 1) }))
	pool.Submit(funcTask(func() { atomic.AddInt32(&completed, 1) }))
	pool.Submit(funcTask(func() { atomic.AddInt32(&completed, 1) }))

	time.Sleep(200 * time.Millisecond)

	// Workers survive the panics and keep draining the queue.
	assert.Equal(t, int32(3), atomic.LoadInt32(&completed))
}

func TestPool_QueueFullDropPolicy(t *testing.T) {
	pool := NewPool(1, 2)
	pool.Start()
	defer pool.Stop()

	blocker := make(chan struct{})
	defer close(blocker)

	pool.Submit(funcTask(func() { <-blocker }))
	time.Sleep(50 * time.Millisecond)

	// Fill the queue behind the blocked worker.
	require.True(t, pool.Submit(funcTask(func() {})))
	require.True(t, pool.Submit(funcTask(func() {})))

	// Next submission is dropped, not blocked.
	assert.False(t, pool.Submit(funcTask(func() {})))
}

func TestPool_GracefulShutdownDrainsInFlightWork(t *testing.T) {
	pool := NewPool(2, 10)
	pool.Start()

	var completed int32
	var started sync.WaitGroup
	started.Add(1)

	pool.Submit(funcTask(func() {
		started.Done()
		time.Sleep(300 * time.Millisecond)
		atomic.AddInt32(&completed, 1)
	}))

	started.Wait()

	begin := time.Now()
	pool.Stop()
	elapsed := time.Since(begin)

	assert.GreaterOrEqual(t, elapsed, 250*time.Millisecond, "Stop returned before in-flight work finished")
	assert.Equal(t, int32(1), atomic.LoadInt32(&completed))
}

func TestPool_DoubleStop(t *testing.T) {
	pool := NewPool(2, 10)
	pool.Start()
	pool.Stop()
	// Second stop must not panic.
	pool.Stop()
}

func TestPool_ConcurrentSubmit(t *testing.T) {
	pool := NewPool(4, 2000)
	pool.Start()
	defer pool.Stop()

	const goroutines = 50
	const tasksPerGoroutine = 20

	var completed int32
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < tasksPerGoroutine; j++ {
				pool.Submit(funcTask(func() {
					atomic.AddInt32(&completed, 1)
				}))
			}
		}()
	}

	wg.Wait()
	time.Sleep(500 * time.Millisecond)

	assert.Equal(t, int32(goroutines*tasksPerGoroutine), atomic.LoadInt32(&completed))
}

func TestPool_Defaults(t *testing.T) {
	pool := NewPool(0, 0)
	assert.Greater(t, pool.workers, 0)
	assert.Equal(t, 1000, cap(pool.queue))
}

func TestPool_TrySubmitRetries(t *testing.T) {
	pool := NewPool(1, 1)
	pool.Start()
	defer pool.Stop()

	blocker := make(chan struct{})
	pool.Submit(funcTask(func() { <-blocker }))
	time.Sleep(50 * time.Millisecond)

	// Queue slot taken; TrySubmit keeps retrying until the worker
	// frees up after the blocker releases.
	pool.Submit(funcTask(func() {}))

	go func() {
		time.Sleep(100 * time.Millisecond)
		close(blocker)
	}()

	ok := pool.TrySubmit(funcTask(func() {}), 10, 50*time.Millisecond)
	assert.True(t, ok)
}
