package worker

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// imageSemaphore bounds the number of concurrent libvips operations.
// The pool can run many queued tasks, but decoding large images is
// memory-heavy, so transformation itself is throttled separately.
type imageSemaphore struct {
	sem *semaphore.Weighted
}

func newImageSemaphore(limit int) *imageSemaphore {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	return &imageSemaphore{sem: semaphore.NewWeighted(int64(limit))}
}

func (s *imageSemaphore) Acquire(ctx context.Context) error {
	return s.sem.Acquire(ctx, 1)
}

func (s *imageSemaphore) Release() {
	s.sem.Release(1)
}
