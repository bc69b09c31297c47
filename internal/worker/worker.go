// Package worker runs fire-and-forget background tasks on a bounded
// goroutine pool.
package worker

import (
	"context"
	"log"
	"runtime"
	"sync"
	"time"
)

// Task is one unit of asynchronous work.
type Task interface {
	Execute()
}

// Pool is a fixed-size goroutine pool with a bounded queue.
type Pool struct {
	workers int
	queue   chan Task
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
}

// NewPool creates a pool. Zero values pick defaults.
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	if queueSize <= 0 {
		queueSize = 1000
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers: workers,
		queue:   make(chan Task, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers. Idempotent.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	p.started = true
	log.Printf("Async worker pool started with %d workers", p.workers)
}

// Stop drains in-flight work and shuts the pool down.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	close(p.queue)

	p.mu.Lock()
	p.started = false
	p.mu.Unlock()

	log.Println("Async worker pool stopped")
}

// Submit enqueues a task without blocking. A full queue drops the
// task and returns false.
func (p *Pool) Submit(task Task) bool {
	select {
	case p.queue <- task:
		return true
	case <-p.ctx.Done():
		return false
	default:
		log.Println("WARN: Worker pool queue is full, task dropped")
		return false
	}
}

// SubmitBlocking enqueues a task, waiting up to timeout for space.
// A non-positive timeout waits indefinitely.
func (p *Pool) SubmitBlocking(task Task, timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case p.queue <- task:
			return true
		case <-p.ctx.Done():
			return false
		}
	}

	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	select {
	case p.queue <- task:
		return true
	case <-ctx.Done():
		return false
	}
}

// TrySubmit retries Submit with a fixed interval between attempts.
func (p *Pool) TrySubmit(task Task, retries int, interval time.Duration) bool {
	for i := 0; i <= retries; i++ {
		if i > 0 {
			time.Sleep(interval)
		}
		if p.Submit(task) {
			return true
		}
	}
	return false
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			p.executeTask(task)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) executeTask(task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic recovered in async task: %v", r)
		}
	}()
	task.Execute()
}
