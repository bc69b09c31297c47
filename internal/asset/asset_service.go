package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"gorm.io/gorm"

	"github.com/galerly/galerly/cache"
	"github.com/galerly/galerly/cache/types"
	"github.com/galerly/galerly/database/models"
	"github.com/galerly/galerly/database/repo/assets"
	"github.com/galerly/galerly/database/repo/galleries"
	"github.com/galerly/galerly/storage"
)

// ErrAssetNotFound is returned when an asset does not exist or the
// caller may not see it.
var ErrAssetNotFound = errors.New("asset not found")

// Service exposes read, list and delete operations on assets.
type Service struct {
	repo        *assets.Repository
	renditions  *assets.RenditionRepository
	galleryRepo *galleries.Repository
	archives    ArchiveInvoker
	store       storage.Provider
	cacheHelper *cache.Helper
}

// NewService creates the asset service.
func NewService(
	repo *assets.Repository,
	renditions *assets.RenditionRepository,
	galleryRepo *galleries.Repository,
	archives ArchiveInvoker,
	store storage.Provider,
	cacheHelper *cache.Helper,
) *Service {
	return &Service{
		repo:        repo,
		renditions:  renditions,
		galleryRepo: galleryRepo,
		archives:    archives,
		store:       store,
		cacheHelper: cacheHelper,
	}
}

// GetByIdentifier loads an asset, cache first.
func (s *Service) GetByIdentifier(ctx context.Context, identifier string) (*models.Asset, error) {
	if s.cacheHelper != nil {
		var cached models.Asset
		if err := s.cacheHelper.GetCachedAsset(ctx, identifier, &cached); err == nil {
			return &cached, nil
		} else if !types.IsCacheMiss(err) {
			log.Printf("[Asset] cache lookup failed for %s: %v", identifier, err)
		}
	}

	asset, err := s.repo.WithContext(ctx).GetAssetByIdentifier(identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssetNotFound
		}
		return nil, err
	}

	if s.cacheHelper != nil {
		if err := s.cacheHelper.CacheAsset(ctx, asset); err != nil {
			log.Printf("[Asset] cache store failed for %s: %v", identifier, err)
		}
	}

	return asset, nil
}

// UserStats summarizes a user's library.
type UserStats struct {
	AssetCount   int64 `json:"asset_count"`
	GalleryCount int64 `json:"gallery_count"`
	TotalBytes   int64 `json:"total_bytes"`
}

// Stats aggregates asset and gallery counts and stored bytes for a user.
func (s *Service) Stats(ctx context.Context, userID uint) (*UserStats, error) {
	repo := s.repo.WithContext(ctx)

	assetCount, err := repo.CountAssetsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("count assets: %w", err)
	}
	totalBytes, err := repo.SumAssetBytesByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("sum asset bytes: %w", err)
	}
	galleryCount, err := s.galleryRepo.WithContext(ctx).CountGalleriesByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("count galleries: %w", err)
	}

	return &UserStats{
		AssetCount:   assetCount,
		GalleryCount: galleryCount,
		TotalBytes:   totalBytes,
	}, nil
}

// List pages through a user's assets.
func (s *Service) List(ctx context.Context, userID uint, page, pageSize int) ([]*models.Asset, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	return s.repo.WithContext(ctx).ListAssetsByUser(userID, page, pageSize)
}

// ReadOriginal opens the stored payload for an asset. Small payloads
// go through the data cache; larger ones stream from storage.
func (s *Service) ReadOriginal(ctx context.Context, asset *models.Asset) ([]byte, error) {
	return s.ReadByKey(ctx, asset.StorageKey)
}

// ReadByKey loads a payload by storage key, cache first.
func (s *Service) ReadByKey(ctx context.Context, storageKey string) ([]byte, error) {
	if s.cacheHelper != nil {
		if data, err := s.cacheHelper.GetCachedAssetData(ctx, storageKey); err == nil {
			return data, nil
		} else if !types.IsCacheMiss(err) {
			log.Printf("[Asset] data cache lookup failed for %s: %v", storageKey, err)
		}
	}

	stream, err := s.store.GetWithContext(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", storageKey, err)
	}
	data, err := io.ReadAll(stream)
	if closer, ok := stream.(io.Closer); ok {
		_ = closer.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", storageKey, err)
	}

	if s.cacheHelper != nil {
		if err := s.cacheHelper.CacheAssetData(ctx, storageKey, data); err != nil {
			log.Printf("[Asset] data cache store failed for %s: %v", storageKey, err)
		}
	}

	return data, nil
}

// Delete removes a user's asset: the database row, its renditions,
// the storage objects, and the cached entries. Affected gallery
// archives are rebuilt in the background.
func (s *Service) Delete(ctx context.Context, identifier string, userID uint) error {
	asset, err := s.repo.WithContext(ctx).GetAssetByIdentifier(identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssetNotFound
		}
		return err
	}
	if asset.UserID != userID {
		return ErrAssetNotFound
	}

	galleryIDs, err := s.galleryRepo.GetGalleryIDsByAssetID(asset.ID)
	if err != nil {
		log.Printf("[Asset] failed to resolve galleries for %s: %v", identifier, err)
	}

	if err := s.repo.WithContext(ctx).DeleteAssetByIdentifierAndUser(identifier, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssetNotFound
		}
		return err
	}

	s.cleanupAssetObjects(ctx, asset)
	s.rebuildArchives(galleryIDs)

	return nil
}

// DeleteBatch removes a set of the caller's assets in two phases:
// the rows are flagged pending deletion, then the flagged set is
// cleaned up and swept in one statement. A crash between the phases
// leaves flagged rows behind for a later sweep instead of orphaned
// storage objects. Returns the number of rows removed.
func (s *Service) DeleteBatch(ctx context.Context, identifiers []string, userID uint) (int64, error) {
	if len(identifiers) == 0 {
		return 0, nil
	}

	marked, err := s.repo.WithContext(ctx).MarkAsPendingDeletion(identifiers, userID)
	if err != nil {
		return 0, err
	}
	if marked == 0 {
		return 0, nil
	}

	// Gather cleanup targets while the rows still exist.
	var doomed []*models.Asset
	galleryIDs := make(map[uint]bool)
	for _, identifier := range identifiers {
		row, err := s.repo.WithContext(ctx).GetAssetByIdentifier(identifier)
		if err != nil || row.UserID != userID || !row.IsPendingDeletion {
			continue
		}
		doomed = append(doomed, row)

		ids, err := s.galleryRepo.GetGalleryIDsByAssetID(row.ID)
		if err != nil {
			log.Printf("[Asset] failed to resolve galleries for %s: %v", identifier, err)
			continue
		}
		for _, id := range ids {
			galleryIDs[id] = true
		}
	}

	deleted, err := s.repo.WithContext(ctx).DeletePendingAssets(identifiers, userID)
	if err != nil {
		return 0, err
	}

	for _, row := range doomed {
		s.cleanupAssetObjects(ctx, row)
	}
	ids := make([]uint, 0, len(galleryIDs))
	for id := range galleryIDs {
		ids = append(ids, id)
	}
	s.rebuildArchives(ids)

	return deleted, nil
}

// cleanupAssetObjects removes an asset's rendition rows, storage
// objects and cached entries once its row is gone. Best effort: the
// row is already deleted and orphan objects are reclaimed later.
func (s *Service) cleanupAssetObjects(ctx context.Context, asset *models.Asset) {
	renditionRows, err := s.renditions.GetRenditionsByAssetID(asset.ID)
	if err != nil {
		log.Printf("[Asset] failed to list renditions for %s: %v", asset.Identifier, err)
	}
	if err := s.renditions.DeleteByAssetID(asset.ID); err != nil {
		log.Printf("[Asset] failed to delete rendition rows for %s: %v", asset.Identifier, err)
	}

	for _, row := range renditionRows {
		if row.StorageKey == "" {
			continue
		}
		if err := s.store.DeleteWithContext(ctx, row.StorageKey); err != nil {
			log.Printf("[Asset] failed to delete rendition object %s: %v", row.StorageKey, err)
		}
		s.invalidateData(ctx, row.StorageKey)
	}
	if err := s.store.DeleteWithContext(ctx, asset.StorageKey); err != nil {
		log.Printf("[Asset] failed to delete object %s: %v", asset.StorageKey, err)
	}
	s.invalidateData(ctx, asset.StorageKey)

	if s.cacheHelper != nil {
		if err := s.cacheHelper.InvalidateAsset(ctx, asset.Identifier); err != nil {
			log.Printf("[Asset] cache invalidation failed for %s: %v", asset.Identifier, err)
		}
	}
}

func (s *Service) rebuildArchives(galleryIDs []uint) {
	if s.archives == nil {
		return
	}
	for _, galleryID := range galleryIDs {
		if err := s.archives.InvokeArchiveRebuild(galleryID); err != nil {
			log.Printf("[Asset] archive rebuild trigger failed for gallery %d: %v", galleryID, err)
		}
	}
}

func (s *Service) invalidateData(ctx context.Context, storageKey string) {
	if s.cacheHelper == nil {
		return
	}
	if err := s.cacheHelper.InvalidateAssetData(ctx, storageKey); err != nil {
		log.Printf("[Asset] data cache invalidation failed for %s: %v", storageKey, err)
	}
}
