// Package asset implements the upload-time half of the delivery
// pipeline: validation, fingerprinting, duplicate detection and
// persistence of originals.
package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/galerly/galerly/cache"
	"github.com/galerly/galerly/database/models"
	"github.com/galerly/galerly/database/repo/assets"
	"github.com/galerly/galerly/database/repo/galleries"
	"github.com/galerly/galerly/internal/duplicate"
	"github.com/galerly/galerly/internal/fingerprint"
	"github.com/galerly/galerly/internal/imaging"
	"github.com/galerly/galerly/internal/rendition"
	"github.com/galerly/galerly/storage"
	"github.com/galerly/galerly/utils/generator"
)

// ErrFileTooLarge is returned when an upload exceeds the size limit.
var ErrFileTooLarge = errors.New("file exceeds maximum upload size")

// ErrBatchTooLarge is returned when a batch's combined size exceeds
// the batch limit.
var ErrBatchTooLarge = errors.New("batch exceeds maximum total upload size")

// ArchiveInvoker triggers a background archive rebuild.
type ArchiveInvoker interface {
	InvokeArchiveRebuild(galleryID uint) error
}

// UploadResult is the outcome for one uploaded file.
type UploadResult struct {
	Asset       *models.Asset         `json:"asset,omitempty"`
	Identifier  string                `json:"identifier,omitempty"`
	FileName    string                `json:"file_name"`
	FileSize    int64                 `json:"file_size,omitempty"`
	IsDuplicate bool                  `json:"is_duplicate"`
	Duplicates  []duplicate.Candidate `json:"duplicates,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// UploadService runs the upload pipeline.
type UploadService struct {
	repo        *assets.Repository
	galleryRepo *galleries.Repository
	validator   *imaging.Validator
	router      *rendition.Router
	archives    ArchiveInvoker
	store       storage.Provider
	paths       *generator.PathGenerator
	cacheHelper *cache.Helper
	maxBytes    int64

	maxBatchBytes int64
	pregenSizes   []models.RenditionSize
}

// NewUploadService creates the upload service.
func NewUploadService(
	repo *assets.Repository,
	galleryRepo *galleries.Repository,
	validator *imaging.Validator,
	router *rendition.Router,
	archives ArchiveInvoker,
	store storage.Provider,
	paths *generator.PathGenerator,
	cacheHelper *cache.Helper,
	maxBytes int64,
) *UploadService {
	return &UploadService{
		repo:        repo,
		galleryRepo: galleryRepo,
		validator:   validator,
		router:      router,
		archives:    archives,
		store:       store,
		paths:       paths,
		cacheHelper: cacheHelper,
		maxBytes:    maxBytes,
	}
}

// UploadSingle processes one file for a user, optionally attaching it
// to a gallery.
func (s *UploadService) UploadSingle(ctx context.Context, userID uint, fileHeader *multipart.FileHeader, galleryID uint, isPublic bool) (*UploadResult, error) {
	result, err := s.processAndSave(ctx, userID, fileHeader, galleryID, isPublic)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UploadBatch processes files concurrently. Per-file failures are
// reported in-place; only a context cancellation aborts the batch.
func (s *UploadService) UploadBatch(ctx context.Context, userID uint, files []*multipart.FileHeader, galleryID uint, isPublic bool) ([]*UploadResult, error) {
	if s.maxBatchBytes > 0 {
		var total int64
		for _, fileHeader := range files {
			total += fileHeader.Size
		}
		if total > s.maxBatchBytes {
			return nil, ErrBatchTooLarge
		}
	}

	results := make([]*UploadResult, len(files))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)

	for i, fileHeader := range files {
		i, fileHeader := i, fileHeader
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			result, err := s.processAndSave(ctx, userID, fileHeader, galleryID, isPublic)
			if err != nil {
				result = &UploadResult{
					FileName: fileHeader.Filename,
					Error:    err.Error(),
				}
			}

			mu.Lock()
			results[i] = result
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch upload failed: %w", err)
	}

	return results, nil
}

func (s *UploadService) processAndSave(ctx context.Context, userID uint, fileHeader *multipart.FileHeader, galleryID uint, isPublic bool) (*UploadResult, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	data, err := s.readWithLimit(file)
	if err != nil {
		return nil, err
	}

	// Validation first: a bad image must never reach storage.
	validated, err := s.validator.ValidateAndSanitize(data, fileHeader.Filename)
	if err != nil {
		return nil, err
	}

	// The fingerprint covers the sanitized bytes, which are exactly
	// what gets stored.
	fp := fingerprint.ComputeBytes(validated.Bytes)

	candidates, err := s.detectDuplicates(ctx, fp, fileHeader.Filename, galleryID, userID)
	if err != nil {
		return nil, err
	}

	// Exact content dedupe: the bytes are already stored, reuse the
	// existing asset instead of writing a second copy.
	existing, err := s.repo.WithContext(ctx).GetAssetByFingerprint(fp.ContentHash, fp.ByteSize)
	if err == nil {
		s.afterPersist(existing, galleryID, userID)
		return &UploadResult{
			Asset:       existing,
			Identifier:  existing.Identifier,
			FileName:    existing.OriginalName,
			FileSize:    existing.ByteSize,
			IsDuplicate: true,
			Duplicates:  candidates,
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New("database error during hash check")
	}

	if restored, ok := s.restoreSoftDeleted(ctx, fp.ContentHash, fileHeader.Filename, userID); ok {
		s.afterPersist(restored, galleryID, userID)
		return &UploadResult{
			Asset:       restored,
			Identifier:  restored.Identifier,
			FileName:    restored.OriginalName,
			FileSize:    restored.ByteSize,
			IsDuplicate: true,
			Duplicates:  candidates,
		}, nil
	}

	ids := s.paths.GenerateOriginalIdentifiers(fp.ContentHash, "."+validated.Format.Ext, time.Now())

	if err := s.store.SaveWithContext(ctx, ids.StorageKey, bytes.NewReader(validated.Bytes)); err != nil {
		return nil, errors.New("failed to save uploaded file")
	}

	newAsset := &models.Asset{
		Identifier:     ids.Identifier,
		OriginalName:   fileHeader.Filename,
		ByteSize:       fp.ByteSize,
		MimeType:       validated.MimeType,
		StorageKey:     ids.StorageKey,
		ContentHash:    fp.ContentHash,
		Width:          validated.Width,
		Height:         validated.Height,
		PreviewCapable: validated.PreviewCapable,
		IsPublic:       isPublic,
		UserID:         userID,
	}

	if err := s.repo.WithContext(ctx).SaveAsset(newAsset); err != nil {
		if derr := s.store.DeleteWithContext(ctx, ids.StorageKey); derr != nil {
			log.Printf("[Upload] failed to roll back storage object %s: %v", ids.StorageKey, derr)
		}
		return nil, errors.New("failed to save asset metadata")
	}

	s.afterPersist(newAsset, galleryID, userID)

	return &UploadResult{
		Asset:      newAsset,
		Identifier: newAsset.Identifier,
		FileName:   newAsset.OriginalName,
		FileSize:   newAsset.ByteSize,
		Duplicates: candidates,
	}, nil
}

func (s *UploadService) readWithLimit(r io.Reader) ([]byte, error) {
	limit := s.maxBytes
	if limit <= 0 {
		limit = 200 << 20
	}

	lr := io.LimitReader(r, limit+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload stream: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

// detectDuplicates produces the advisory candidate list: against the
// target gallery's current assets, or against the user's whole
// library when no gallery is targeted.
func (s *UploadService) detectDuplicates(ctx context.Context, fp fingerprint.Fingerprint, filename string, galleryID, userID uint) ([]duplicate.Candidate, error) {
	var rows []*models.Asset
	var err error
	if galleryID != 0 {
		rows, err = s.repo.WithContext(ctx).GetAllAssetsByGalleryID(galleryID)
	} else {
		rows, err = s.libraryCandidates(ctx, fp, filename, userID)
	}
	if err != nil {
		log.Printf("[Upload] duplicate check failed: %v", err)
		return nil, errors.New("database error during duplicate check")
	}

	return duplicate.FindDuplicates(fp, filename, rows), nil
}

// libraryCandidates pre-filters the user's library down to assets
// that could match the upload, one batch query per match type.
func (s *UploadService) libraryCandidates(ctx context.Context, fp fingerprint.Fingerprint, filename string, userID uint) ([]*models.Asset, error) {
	repo := s.repo.WithContext(ctx)

	byHash, err := repo.FindCandidatesByHashes([]string{fp.ContentHash}, userID)
	if err != nil {
		return nil, err
	}
	byName, err := repo.FindCandidatesByNameAndSize(filename, fp.ByteSize, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint]bool, len(byHash))
	for _, row := range byHash {
		seen[row.ID] = true
	}
	rows := byHash
	for _, row := range byName {
		if !seen[row.ID] {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// restoreSoftDeleted revives a soft-deleted asset whose bytes match,
// so the already-present storage object is reused.
func (s *UploadService) restoreSoftDeleted(ctx context.Context, hash, filename string, userID uint) (*models.Asset, bool) {
	deleted, err := s.repo.WithContext(ctx).GetSoftDeletedAssetByHash(hash)
	if err != nil {
		return nil, false
	}

	updates := map[string]interface{}{
		"deleted_at":          nil,
		"original_name":       filename,
		"user_id":             userID,
		"is_pending_deletion": false,
	}
	if err := s.repo.WithContext(ctx).DB().Model(&models.Asset{}).Unscoped().
		Where("identifier = ?", deleted.Identifier).Updates(updates).Error; err != nil {
		log.Printf("[Upload] failed to restore soft-deleted asset %s: %v", deleted.Identifier, err)
		return nil, false
	}

	restored, err := s.repo.WithContext(ctx).GetAssetByIdentifier(deleted.Identifier)
	if err != nil {
		return nil, false
	}
	return restored, true
}

// afterPersist runs the fire-and-forget follow-ups: attach to the
// gallery, warm the metadata cache, pre-generate default renditions,
// and rebuild the gallery archive.
func (s *UploadService) afterPersist(asset *models.Asset, galleryID, userID uint) {
	if galleryID != 0 {
		if err := s.galleryRepo.AddAssetsToGallery(galleryID, userID, []uint{asset.ID}); err != nil {
			log.Printf("[Upload] failed to attach asset %s to gallery %d: %v", asset.Identifier, galleryID, err)
		} else if s.archives != nil {
			if err := s.archives.InvokeArchiveRebuild(galleryID); err != nil {
				log.Printf("[Upload] archive rebuild trigger failed for gallery %d: %v", galleryID, err)
			}
		}
	}

	go s.warmCache(asset)
	go s.pregenerate(asset)
}

func (s *UploadService) warmCache(asset *models.Asset) {
	if s.cacheHelper == nil {
		return
	}
	if err := s.cacheHelper.CacheAsset(context.Background(), asset); err != nil {
		log.Printf("[Upload] cache warm failed for %s: %v", asset.Identifier, err)
	}
}

// SetPregenSizes overrides the variant set routed after upload. The
// default is models.DefaultRenditionSizes.
func (s *UploadService) SetPregenSizes(sizes []models.RenditionSize) {
	s.pregenSizes = sizes
}

// SetMaxBatchBytes caps the combined size of one batch upload. Zero
// disables the batch-level cap; the per-file limit still applies.
func (s *UploadService) SetMaxBatchBytes(n int64) {
	s.maxBatchBytes = n
}

// pregenerate routes the configured sizes once; each miss triggers
// worker generation so first viewers mostly hit cache.
func (s *UploadService) pregenerate(asset *models.Asset) {
	if s.router == nil || !asset.PreviewCapable {
		return
	}

	sizes := s.pregenSizes
	if len(sizes) == 0 {
		sizes = models.DefaultRenditionSizes
	}
	for _, size := range sizes {
		s.router.Route(context.Background(), asset, rendition.Spec{Width: size.Width, Height: size.Height})
	}
}
