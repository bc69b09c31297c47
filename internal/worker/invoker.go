package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/galerly/galerly/cache"
	"github.com/galerly/galerly/internal/archive"
	"github.com/galerly/galerly/internal/rendition"
	"github.com/galerly/galerly/storage"
)

// Invoker turns fire-and-forget work orders into pool tasks. It is
// the async boundary between request handlers and background work:
// callers get an error only when the task could not be enqueued.
type Invoker struct {
	pool        *Pool
	store       storage.Provider
	renditions  RenditionRepository
	cacheHelper *cache.Helper
	builder     *archive.Builder
	maxBytes    int64
	semaphore   *imageSemaphore
}

// NewInvoker creates an invoker bound to the given pool and deps.
// vipsConcurrency bounds simultaneous image transformations.
func NewInvoker(pool *Pool, store storage.Provider, renditions RenditionRepository, cacheHelper *cache.Helper, builder *archive.Builder, maxBytes int64, vipsConcurrency int) *Invoker {
	return &Invoker{
		pool:        pool,
		store:       store,
		renditions:  renditions,
		cacheHelper: cacheHelper,
		builder:     builder,
		maxBytes:    maxBytes,
		semaphore:   newImageSemaphore(vipsConcurrency),
	}
}

// InvokeRendition enqueues generation of one rendition.
func (i *Invoker) InvokeRendition(payload rendition.GenerationPayload) error {
	task := &RenditionTask{
		Payload:     payload,
		MaxBytes:    i.maxBytes,
		Storage:     i.store,
		Renditions:  i.renditions,
		CacheHelper: i.cacheHelper,
		Semaphore:   i.semaphore,
	}

	if !i.pool.TrySubmit(task, 3, 100*time.Millisecond) {
		return fmt.Errorf("worker queue full, rendition %d dropped", payload.RenditionID)
	}
	return nil
}

// InvokeArchiveRebuild enqueues a rebuild of a gallery's archive.
// Called whenever gallery membership changes.
func (i *Invoker) InvokeArchiveRebuild(galleryID uint) error {
	task := &archiveTask{builder: i.builder, galleryID: galleryID}
	if !i.pool.TrySubmit(task, 3, 100*time.Millisecond) {
		return fmt.Errorf("worker queue full, archive rebuild for gallery %d dropped", galleryID)
	}
	return nil
}

// archiveTask rebuilds one gallery archive in the background.
type archiveTask struct {
	builder   *archive.Builder
	galleryID uint
}

func (t *archiveTask) Execute() {
	report, err := t.builder.Build(context.Background(), t.galleryID)
	if err != nil {
		log.Printf("[Archive] background rebuild failed for gallery %d: %v", t.galleryID, err)
		return
	}
	log.Printf("[Archive] rebuilt gallery %d: %d entries, %d skipped", t.galleryID, report.EntryCount, len(report.Skipped))
}
