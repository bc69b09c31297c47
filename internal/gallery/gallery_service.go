// Package gallery manages galleries, their membership, share links
// and download archives.
package gallery

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/galerly/galerly/database/models"
	"github.com/galerly/galerly/database/repo/assets"
	"github.com/galerly/galerly/database/repo/galleries"
	"github.com/galerly/galerly/storage"
	"github.com/galerly/galerly/utils/generator"
)

// ErrGalleryNotFound mirrors the repository sentinel for callers that
// only import the service.
var ErrGalleryNotFound = galleries.ErrGalleryNotFound

// ErrArchiveNotReady is returned when a download is requested before
// any archive build has completed.
var ErrArchiveNotReady = errors.New("gallery archive not ready")

// ArchiveInvoker triggers a background archive rebuild.
type ArchiveInvoker interface {
	InvokeArchiveRebuild(galleryID uint) error
}

// Service exposes gallery CRUD, membership and sharing.
type Service struct {
	repo      *galleries.Repository
	archives  *galleries.ArchiveRepository
	assetRepo *assets.Repository
	invoker   ArchiveInvoker
	store     storage.Provider
	paths     *generator.PathGenerator
}

// NewService creates the gallery service.
func NewService(
	repo *galleries.Repository,
	archives *galleries.ArchiveRepository,
	assetRepo *assets.Repository,
	invoker ArchiveInvoker,
	store storage.Provider,
	paths *generator.PathGenerator,
) *Service {
	return &Service{
		repo:      repo,
		archives:  archives,
		assetRepo: assetRepo,
		invoker:   invoker,
		store:     store,
		paths:     paths,
	}
}

// Create makes a new gallery for the user.
func (s *Service) Create(ctx context.Context, userID uint, name, description string) (*models.Gallery, error) {
	if name == "" {
		return nil, errors.New("gallery name is required")
	}

	gallery := &models.Gallery{
		UserID:      userID,
		Name:        name,
		Description: description,
	}
	if err := s.repo.WithContext(ctx).CreateGallery(gallery); err != nil {
		return nil, err
	}
	return gallery, nil
}

// List pages through a user's galleries with counts and covers.
func (s *Service) List(ctx context.Context, userID uint, page, pageSize int) ([]*galleries.GalleryInfo, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.repo.WithContext(ctx).GetUserGalleries(userID, page, pageSize)
}

// Get loads a user's gallery with its assets.
func (s *Service) Get(ctx context.Context, galleryID, userID uint) (*models.Gallery, error) {
	gallery, err := s.repo.WithContext(ctx).GetGalleryWithAssetsByID(galleryID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGalleryNotFound
		}
		return nil, err
	}
	return gallery, nil
}

// GetShared resolves a gallery by share token and loads its assets.
func (s *Service) GetShared(ctx context.Context, token string) (*models.Gallery, []*models.Asset, error) {
	gallery, err := s.repo.WithContext(ctx).GetGalleryByShareToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrGalleryNotFound
		}
		return nil, nil, err
	}

	members, err := s.assetRepo.WithContext(ctx).GetAllAssetsByGalleryID(gallery.ID)
	if err != nil {
		return nil, nil, err
	}
	return gallery, members, nil
}

// Update renames or re-describes a gallery.
func (s *Service) Update(ctx context.Context, galleryID, userID uint, name, description string) (*models.Gallery, error) {
	gallery, err := s.repo.WithContext(ctx).GetGalleryByIDAndUser(galleryID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGalleryNotFound
		}
		return nil, err
	}

	if name != "" {
		gallery.Name = name
	}
	gallery.Description = description

	if err := s.repo.WithContext(ctx).UpdateGallery(gallery); err != nil {
		return nil, err
	}
	return gallery, nil
}

// Delete removes a gallery, its membership rows and its archive.
// Assets themselves are untouched.
func (s *Service) Delete(ctx context.Context, galleryID, userID uint) error {
	if err := s.repo.WithContext(ctx).DeleteGallery(galleryID, userID); err != nil {
		return err
	}

	// Archive cleanup is best effort; the gallery row is already gone.
	key := s.paths.ArchiveKey(galleryID)
	if exists, err := s.store.Exists(ctx, key); err == nil && exists {
		if err := s.store.DeleteWithContext(ctx, key); err != nil {
			log.Printf("[Gallery] failed to delete archive object %s: %v", key, err)
		}
	}
	if err := s.archives.DeleteByGalleryID(galleryID); err != nil {
		log.Printf("[Gallery] failed to delete archive row for gallery %d: %v", galleryID, err)
	}

	return nil
}

// AddAssets attaches a user's assets to a gallery and rebuilds the
// archive in the background.
func (s *Service) AddAssets(ctx context.Context, galleryID, userID uint, assetIDs []uint) error {
	if len(assetIDs) == 0 {
		return nil
	}

	// Ownership check: only the user's own assets can be attached.
	owned, err := s.assetRepo.WithContext(ctx).GetAssetsByIDsAndUser(assetIDs, userID)
	if err != nil {
		return err
	}
	if len(owned) != len(assetIDs) {
		return errors.New("one or more assets not found")
	}

	if err := s.repo.WithContext(ctx).AddAssetsToGallery(galleryID, userID, assetIDs); err != nil {
		return err
	}

	s.rebuildArchive(galleryID)
	return nil
}

// RemoveAsset detaches an asset and rebuilds the archive.
func (s *Service) RemoveAsset(ctx context.Context, galleryID, userID, assetID uint) error {
	asset, err := s.assetRepo.WithContext(ctx).GetAssetByIDAndUser(assetID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("asset not found")
		}
		return err
	}

	if err := s.repo.WithContext(ctx).RemoveAssetFromGallery(galleryID, userID, asset); err != nil {
		return err
	}

	s.rebuildArchive(galleryID)
	return nil
}

// Share sets a fresh share token on the gallery and returns it.
func (s *Service) Share(ctx context.Context, galleryID, userID uint) (string, error) {
	token := uuid.New().String()
	if err := s.repo.WithContext(ctx).SetShareToken(galleryID, userID, token); err != nil {
		return "", err
	}
	return token, nil
}

// Unshare clears the gallery's share token.
func (s *Service) Unshare(ctx context.Context, galleryID, userID uint) error {
	return s.repo.WithContext(ctx).SetShareToken(galleryID, userID, "")
}

// ArchiveStatus reports the current archive row for a user's gallery.
func (s *Service) ArchiveStatus(ctx context.Context, galleryID, userID uint) (*models.GalleryArchive, error) {
	if _, err := s.repo.WithContext(ctx).GetGalleryByIDAndUser(galleryID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGalleryNotFound
		}
		return nil, err
	}

	archive, err := s.archives.GetByGalleryID(galleryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrArchiveNotReady
		}
		return nil, err
	}
	return archive, nil
}

// RequestArchiveRebuild queues a rebuild for a user's gallery.
func (s *Service) RequestArchiveRebuild(ctx context.Context, galleryID, userID uint) error {
	if _, err := s.repo.WithContext(ctx).GetGalleryByIDAndUser(galleryID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrGalleryNotFound
		}
		return err
	}
	return s.invoker.InvokeArchiveRebuild(galleryID)
}

// OpenArchive returns a reader over the completed archive object.
func (s *Service) OpenArchive(ctx context.Context, galleryID, userID uint) (*models.GalleryArchive, storage.Provider, error) {
	archive, err := s.ArchiveStatus(ctx, galleryID, userID)
	if err != nil {
		return nil, nil, err
	}
	if archive.Status != models.ArchiveStatusCompleted {
		return nil, nil, ErrArchiveNotReady
	}
	return archive, s.store, nil
}

// OpenSharedArchive resolves a share token and returns the completed
// archive object for token-bearing clients.
func (s *Service) OpenSharedArchive(ctx context.Context, token string) (*models.GalleryArchive, storage.Provider, error) {
	gallery, err := s.repo.WithContext(ctx).GetGalleryByShareToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrGalleryNotFound
		}
		return nil, nil, err
	}

	archive, err := s.archives.GetByGalleryID(gallery.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrArchiveNotReady
		}
		return nil, nil, err
	}
	if archive.Status != models.ArchiveStatusCompleted {
		return nil, nil, ErrArchiveNotReady
	}
	return archive, s.store, nil
}

func (s *Service) rebuildArchive(galleryID uint) {
	if s.invoker == nil {
		return
	}
	if err := s.invoker.InvokeArchiveRebuild(galleryID); err != nil {
		log.Printf("[Gallery] archive rebuild trigger failed for gallery %d: %v", galleryID, err)
	}
}
