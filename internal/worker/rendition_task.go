package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"

	"github.com/davidbyttow/govips/v2/vips"

	"github.com/galerly/galerly/cache"
	"github.com/galerly/galerly/database/models"
	"github.com/galerly/galerly/internal/rendition"
	"github.com/galerly/galerly/storage"
)

// RenditionRepository is the subset of the rendition store the task needs.
type RenditionRepository interface {
	UpdateStatusCAS(id uint, expected, newStatus, errMsg string) (bool, error)
	UpdateCompleted(id uint, storageKey string, byteSize int64, width, height int) error
	UpdateFailed(id uint, errMsg string, allowRetry bool) error
}

// readWithLimit reads r fully, rejecting streams over limit bytes.
func readWithLimit(r io.Reader, limit int64) ([]byte, error) {
	lr := io.LimitReader(r, limit+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file exceeds max size %d bytes", limit)
	}
	return data, nil
}

// RenditionTask generates one missing rendition: load the original,
// resize and transcode with libvips, store the result at the
// deterministic target key. Overwriting the same key on duplicate
// triggers is idempotent.
type RenditionTask struct {
	Payload     rendition.GenerationPayload
	MaxBytes    int64
	Storage     storage.Provider
	Renditions  RenditionRepository
	CacheHelper *cache.Helper
	Semaphore   *imageSemaphore
}

// Execute runs the task. Only a pending row is claimed; a lost CAS
// means another worker owns this rendition already.
func (t *RenditionTask) Execute() {
	defer t.recovery()

	ctx := context.Background()
	id := t.Payload.RenditionID

	acquired, err := t.Renditions.UpdateStatusCAS(id, models.RenditionStatusPending, models.RenditionStatusProcessing, "")
	if err != nil {
		log.Printf("[Rendition] CAS error for rendition %d: %v", id, err)
		return
	}
	if !acquired {
		return
	}

	if t.Semaphore != nil {
		if err := t.Semaphore.Acquire(ctx); err != nil {
			t.fail(fmt.Errorf("acquire semaphore: %w", err))
			return
		}
		defer t.Semaphore.Release()
	}

	if err := t.generate(ctx); err != nil {
		log.Printf("[Rendition] generation failed for rendition %d: %v", id, err)
		t.fail(err)
		return
	}
}

func (t *RenditionTask) generate(ctx context.Context) error {
	maxBytes := t.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 200 << 20
	}

	stream, err := t.Storage.GetWithContext(ctx, t.Payload.SourceKey)
	if err != nil {
		return fmt.Errorf("get source: %w", err)
	}

	fileBytes, err := readWithLimit(stream, maxBytes)
	if closer, ok := stream.(io.Closer); ok {
		_ = closer.Close()
	}
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	var img *vips.ImageRef
	if t.Payload.Width == 0 && t.Payload.Height == 0 {
		// Format-only request: transcode at the native size.
		img, err = vips.NewImageFromBuffer(fileBytes)
	} else {
		img, err = vips.NewThumbnailFromBuffer(
			fileBytes,
			t.Payload.Width,
			t.Payload.Height,
			vips.InterestingNone,
		)
	}
	if err != nil {
		return fmt.Errorf("load source image: %w", err)
	}
	defer img.Close()

	width := img.Width()
	height := img.Height()

	encoded, err := t.export(img)
	if err != nil {
		return err
	}

	if err := t.Storage.SaveWithContext(ctx, t.Payload.TargetKey, bytes.NewReader(encoded)); err != nil {
		return fmt.Errorf("save rendition: %w", err)
	}

	if err := t.Renditions.UpdateCompleted(t.Payload.RenditionID, t.Payload.TargetKey, int64(len(encoded)), width, height); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	t.invalidateCache(ctx)
	return nil
}

func (t *RenditionTask) export(img *vips.ImageRef) ([]byte, error) {
	quality := t.Payload.Quality
	if quality <= 0 {
		quality = 80
	}

	switch t.Payload.Format {
	case models.RenditionFormatJPEG:
		encoded, _, err := img.ExportJpeg(&vips.JpegExportParams{
			Quality:       quality,
			StripMetadata: true,
		})
		if err != nil {
			return nil, fmt.Errorf("export jpeg: %w", err)
		}
		return encoded, nil

	case models.RenditionFormatPNG:
		encoded, _, err := img.ExportPng(&vips.PngExportParams{
			StripMetadata: true,
		})
		if err != nil {
			return nil, fmt.Errorf("export png: %w", err)
		}
		return encoded, nil

	default:
		encoded, _, err := img.ExportWebp(&vips.WebpExportParams{
			Quality:         quality,
			Lossless:        false,
			ReductionEffort: 4,
			StripMetadata:   true,
		})
		if err != nil {
			return nil, fmt.Errorf("export webp: %w", err)
		}
		return encoded, nil
	}
}

func (t *RenditionTask) fail(err error) {
	if uerr := t.Renditions.UpdateFailed(t.Payload.RenditionID, err.Error(), true); uerr != nil {
		log.Printf("[Rendition] failed to record failure for rendition %d: %v", t.Payload.RenditionID, uerr)
	}
}

// invalidateCache drops any cached payload for the target key so the
// next read sees the fresh rendition.
func (t *RenditionTask) invalidateCache(ctx context.Context) {
	if t.CacheHelper == nil {
		return
	}
	if err := t.CacheHelper.InvalidateAssetData(ctx, t.Payload.TargetKey); err != nil {
		log.Printf("[Rendition] cache invalidation failed for %s: %v", t.Payload.TargetKey, err)
	}
}

func (t *RenditionTask) recovery() {
	if rec := recover(); rec != nil {
		log.Printf("[Rendition] panic recovered: %v", rec)
		_, _ = t.Renditions.UpdateStatusCAS(
			t.Payload.RenditionID,
			models.RenditionStatusProcessing,
			models.RenditionStatusFailed,
			fmt.Sprintf("panic: %v", rec),
		)
	}
}
