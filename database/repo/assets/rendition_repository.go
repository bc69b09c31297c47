package assets

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/galerly/galerly/database/models"
)

// RenditionRepository persists derived asset variants.
type RenditionRepository struct {
	db *gorm.DB
}

// NewRenditionRepository creates a new rendition repository.
func NewRenditionRepository(db *gorm.DB) *RenditionRepository {
	return &RenditionRepository{db: db}
}

// GetRenditionsByAssetID loads all renditions of an asset.
func (r *RenditionRepository) GetRenditionsByAssetID(assetID uint) ([]models.Rendition, error) {
	var renditions []models.Rendition
	err := r.db.Where("asset_id = ?", assetID).Find(&renditions).Error
	return renditions, err
}

// GetRendition loads the rendition with the given cache key.
func (r *RenditionRepository) GetRendition(assetID uint, cacheKey string) (*models.Rendition, error) {
	var rendition models.Rendition
	err := r.db.Where("asset_id = ? AND cache_key = ?", assetID, cacheKey).First(&rendition).Error
	return &rendition, err
}

// GetByID loads a rendition by primary key.
func (r *RenditionRepository) GetByID(id uint) (*models.Rendition, error) {
	var rendition models.Rendition
	err := r.db.First(&rendition, id).Error
	return &rendition, err
}

// UpsertPending creates a pending rendition row, or returns the
// existing one. Safe to call concurrently for the same key.
func (r *RenditionRepository) UpsertPending(assetID uint, cacheKey, format, storageKey string, width, height int) (*models.Rendition, error) {
	var rendition models.Rendition
	err := r.db.Where("asset_id = ? AND cache_key = ?", assetID, cacheKey).First(&rendition).Error

	if err == nil {
		return &rendition, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	rendition = models.Rendition{
		AssetID:       assetID,
		CacheKey:      cacheKey,
		Format:        format,
		StorageKey:    storageKey,
		RequestWidth:  width,
		RequestHeight: height,
		Status:        models.RenditionStatusPending,
	}

	err = r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asset_id"}, {Name: "cache_key"}},
		DoNothing: true,
	}).Create(&rendition).Error
	if err != nil {
		return nil, err
	}

	err = r.db.Where("asset_id = ? AND cache_key = ?", assetID, cacheKey).First(&rendition).Error
	return &rendition, err
}

// UpdateStatusCAS transitions status only if the row is still in the
// expected state. Returns whether the transition happened.
func (r *RenditionRepository) UpdateStatusCAS(id uint, expected, newStatus, errMsg string) (bool, error) {
	updates := map[string]interface{}{
		"status":     newStatus,
		"updated_at": time.Now(),
	}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}

	result := r.db.Model(&models.Rendition{}).Where("id = ? AND status = ?", id, expected).Updates(updates)
	return result.RowsAffected > 0, result.Error
}

// UpdateCompleted marks a processing rendition as completed.
func (r *RenditionRepository) UpdateCompleted(id uint, storageKey string, byteSize int64, width, height int) error {
	result := r.db.Model(&models.Rendition{}).Where("id = ? AND status = ?", id, models.RenditionStatusProcessing).Updates(map[string]interface{}{
		"status":        models.RenditionStatusCompleted,
		"storage_key":   storageKey,
		"byte_size":     byteSize,
		"width":         width,
		"height":        height,
		"error_message": "",
		"updated_at":    time.Now(),
	})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("CAS failed: rendition not in processing state")
	}
	return nil
}

// UpdateFailed marks a rendition as failed, optionally scheduling a retry.
func (r *RenditionRepository) UpdateFailed(id uint, errMsg string, allowRetry bool) error {
	updates := map[string]interface{}{
		"status":        models.RenditionStatusFailed,
		"error_message": errMsg,
		"updated_at":    time.Now(),
	}
	if allowRetry {
		updates["retry_count"] = gorm.Expr("retry_count + 1")
		updates["next_retry_at"] = time.Now().Add(5 * time.Minute)
	}
	return r.db.Model(&models.Rendition{}).Where("id = ?", id).Updates(updates).Error
}

func calculateBackoff(base time.Duration, retryCount int) time.Duration {
	if retryCount >= 5 {
		return 60 * time.Minute
	}
	return base * time.Duration(1<<retryCount)
}

// ResetForRetry moves a failed rendition back to pending with backoff.
func (r *RenditionRepository) ResetForRetry(id uint, baseBackoff time.Duration) error {
	var rendition models.Rendition
	if err := r.db.First(&rendition, id).Error; err != nil {
		return err
	}

	nextRetry := time.Now().Add(calculateBackoff(baseBackoff, rendition.RetryCount))

	result := r.db.Model(&models.Rendition{}).Where("id = ? AND status = ?", id, models.RenditionStatusFailed).Updates(map[string]interface{}{
		"retry_count":   gorm.Expr("retry_count + 1"),
		"next_retry_at": nextRetry,
		"status":        models.RenditionStatusPending,
		"updated_at":    time.Now(),
	})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("rendition is not in failed state")
	}
	return nil
}

// GetRetryableRenditions lists failed renditions due for a retry.
func (r *RenditionRepository) GetRetryableRenditions(now time.Time, maxRetries, limit int) ([]models.Rendition, error) {
	var renditions []models.Rendition
	err := r.db.Where("status = ? AND retry_count < ? AND (next_retry_at IS NULL OR next_retry_at <= ?)",
		models.RenditionStatusFailed, maxRetries, now).Limit(limit).Find(&renditions).Error
	return renditions, err
}

// GetAssetByID loads the parent asset of a rendition task.
func (r *RenditionRepository) GetAssetByID(assetID uint) (*models.Asset, error) {
	var asset models.Asset
	err := r.db.First(&asset, assetID).Error
	return &asset, err
}

// DeleteByAssetID removes all renditions of an asset.
func (r *RenditionRepository) DeleteByAssetID(assetID uint) error {
	return r.db.Where("asset_id = ?", assetID).Delete(&models.Rendition{}).Error
}

// GetOrphanRenditions lists tasks stuck in processing longer than threshold.
func (r *RenditionRepository) GetOrphanRenditions(threshold time.Duration, limit int) ([]models.Rendition, error) {
	cutoff := time.Now().Add(-threshold)
	var renditions []models.Rendition
	err := r.db.Where("status = ? AND updated_at < ?", models.RenditionStatusProcessing, cutoff).Limit(limit).Find(&renditions).Error
	return renditions, err
}

// ResetProcessingToPending reclaims an orphaned processing task.
func (r *RenditionRepository) ResetProcessingToPending(id uint) error {
	return r.db.Model(&models.Rendition{}).Where("id = ? AND status = ?", id, models.RenditionStatusProcessing).Updates(map[string]interface{}{
		"status":     models.RenditionStatusPending,
		"updated_at": time.Now(),
	}).Error
}
