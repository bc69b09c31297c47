package galleries

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/galerly/galerly/database/models"
)

// ArchiveRepository persists the per-gallery archive rows.
type ArchiveRepository struct {
	db *gorm.DB
}

// NewArchiveRepository creates a new archive repository.
func NewArchiveRepository(db *gorm.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// GetByGalleryID loads the archive row for a gallery.
func (r *ArchiveRepository) GetByGalleryID(galleryID uint) (*models.GalleryArchive, error) {
	var archive models.GalleryArchive
	err := r.db.Where("gallery_id = ?", galleryID).First(&archive).Error
	return &archive, err
}

// UpsertPending creates a pending archive row for the gallery, or
// returns the existing row. One row per gallery.
func (r *ArchiveRepository) UpsertPending(galleryID uint, storageKey string) (*models.GalleryArchive, error) {
	var archive models.GalleryArchive
	err := r.db.Where("gallery_id = ?", galleryID).First(&archive).Error

	if err == nil {
		return &archive, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	archive = models.GalleryArchive{
		GalleryID:  galleryID,
		StorageKey: storageKey,
		Status:     models.ArchiveStatusPending,
	}

	err = r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gallery_id"}},
		DoNothing: true,
	}).Create(&archive).Error
	if err != nil {
		return nil, err
	}

	err = r.db.Where("gallery_id = ?", galleryID).First(&archive).Error
	return &archive, err
}

// UpdateStatusCAS transitions status only from the expected state.
func (r *ArchiveRepository) UpdateStatusCAS(id uint, expected, newStatus, errMsg string) (bool, error) {
	updates := map[string]interface{}{
		"status":     newStatus,
		"updated_at": time.Now(),
	}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}

	result := r.db.Model(&models.GalleryArchive{}).Where("id = ? AND status = ?", id, expected).Updates(updates)
	return result.RowsAffected > 0, result.Error
}

// UpdateCompleted marks a processing archive as completed.
func (r *ArchiveRepository) UpdateCompleted(id uint, byteSize int64, entryCount int) error {
	result := r.db.Model(&models.GalleryArchive{}).Where("id = ? AND status = ?", id, models.ArchiveStatusProcessing).Updates(map[string]interface{}{
		"status":        models.ArchiveStatusCompleted,
		"byte_size":     byteSize,
		"entry_count":   entryCount,
		"error_message": "",
		"updated_at":    time.Now(),
	})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("CAS failed: archive not in processing state")
	}
	return nil
}

// UpdateFailed marks an archive build as failed.
func (r *ArchiveRepository) UpdateFailed(id uint, errMsg string) error {
	return r.db.Model(&models.GalleryArchive{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        models.ArchiveStatusFailed,
		"error_message": errMsg,
		"updated_at":    time.Now(),
	}).Error
}

// DeleteByGalleryID removes the archive row for a gallery.
func (r *ArchiveRepository) DeleteByGalleryID(galleryID uint) error {
	return r.db.Where("gallery_id = ?", galleryID).Delete(&models.GalleryArchive{}).Error
}
