package assets

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/galerly/galerly/database/models"
)

// Repository persists assets.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new asset repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// SaveAsset inserts an asset row.
func (r *Repository) SaveAsset(asset *models.Asset) error {
	return r.db.Create(asset).Error
}

// GetAssetByFingerprint looks up an asset by content hash and byte size.
func (r *Repository) GetAssetByFingerprint(hash string, size int64) (*models.Asset, error) {
	var asset models.Asset
	err := r.db.Where("content_hash = ? AND byte_size = ?", hash, size).First(&asset).Error
	return &asset, err
}

// GetAssetByIdentifier looks up an asset by identifier.
func (r *Repository) GetAssetByIdentifier(identifier string) (*models.Asset, error) {
	var asset models.Asset
	result := r.db.Where("identifier = ?", identifier).First(&asset)
	return &asset, result.Error
}

// GetAssetByIDAndUser looks up a user's asset by primary key.
func (r *Repository) GetAssetByIDAndUser(id, userID uint) (*models.Asset, error) {
	var asset models.Asset
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&asset).Error
	return &asset, err
}

// GetAssetsByIDsAndUser batch-loads a user's assets by primary key.
func (r *Repository) GetAssetsByIDsAndUser(ids []uint, userID uint) ([]*models.Asset, error) {
	if len(ids) == 0 {
		return []*models.Asset{}, nil
	}
	var out []*models.Asset
	err := r.db.Where("id IN ? AND user_id = ?", ids, userID).Find(&out).Error
	return out, err
}

// FindCandidatesByHashes batch-loads a user's assets matching any of the
// given content hashes. Used by the duplicate detector to resolve a whole
// upload batch in one query.
func (r *Repository) FindCandidatesByHashes(hashes []string, userID uint) ([]*models.Asset, error) {
	if len(hashes) == 0 {
		return []*models.Asset{}, nil
	}
	var out []*models.Asset
	err := r.db.Where("content_hash IN ? AND user_id = ?", hashes, userID).Find(&out).Error
	return out, err
}

// FindCandidatesByNameAndSize loads a user's assets whose normalized
// original name and byte size both match. Name normalization is
// lowercase with surrounding whitespace trimmed; the comparison runs
// on the database side so an index on original_name stays usable for
// the exact-case fast path.
func (r *Repository) FindCandidatesByNameAndSize(name string, size int64, userID uint) ([]*models.Asset, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	var out []*models.Asset
	err := r.db.Where("LOWER(original_name) = ? AND byte_size = ? AND user_id = ?", normalized, size, userID).Find(&out).Error
	return out, err
}

// ListAssetsByUser pages through a user's assets, newest first.
func (r *Repository) ListAssetsByUser(userID uint, page, pageSize int) ([]*models.Asset, int64, error) {
	var out []*models.Asset
	var total int64

	db := r.db.Model(&models.Asset{}).Where("user_id = ?", userID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := db.Order("created_at desc").Offset(offset).Limit(pageSize).Find(&out).Error
	return out, total, err
}

// GetAllAssetsByGalleryID loads the full membership of a gallery in
// insertion order. The archive builder needs the complete set.
func (r *Repository) GetAllAssetsByGalleryID(galleryID uint) ([]*models.Asset, error) {
	var out []*models.Asset
	err := r.db.Model(&models.Asset{}).
		Joins("JOIN gallery_assets ON gallery_assets.asset_id = assets.id").
		Where("gallery_assets.gallery_id = ?", galleryID).
		Order("assets.id asc").
		Find(&out).Error
	return out, err
}

// DeleteAssetByIdentifierAndUser deletes a user's asset by identifier.
func (r *Repository) DeleteAssetByIdentifierAndUser(identifier string, userID uint) error {
	if identifier == "" {
		return gorm.ErrRecordNotFound
	}

	result := r.db.Where("identifier = ? AND user_id = ?", identifier, userID).Delete(&models.Asset{})
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return result.Error
}

// MarkAsPendingDeletion flags assets for asynchronous cleanup.
func (r *Repository) MarkAsPendingDeletion(identifiers []string, userID uint) (int64, error) {
	if len(identifiers) == 0 {
		return 0, nil
	}

	result := r.db.Model(&models.Asset{}).
		Where("identifier IN ? AND user_id = ?", identifiers, userID).
		Update("is_pending_deletion", true)

	return result.RowsAffected, result.Error
}

// DeletePendingAssets removes assets previously flagged for deletion.
func (r *Repository) DeletePendingAssets(identifiers []string, userID uint) (int64, error) {
	if len(identifiers) == 0 {
		return 0, nil
	}

	result := r.db.Where("identifier IN ? AND user_id = ? AND is_pending_deletion = ?", identifiers, userID, true).Delete(&models.Asset{})
	return result.RowsAffected, result.Error
}

// CountAssetsByUser counts a user's assets.
func (r *Repository) CountAssetsByUser(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Asset{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// SumAssetBytesByUser totals the stored original bytes of a user's assets.
func (r *Repository) SumAssetBytesByUser(userID uint) (int64, error) {
	var total int64
	err := r.db.Model(&models.Asset{}).Where("user_id = ?", userID).
		Select("COALESCE(SUM(byte_size), 0)").Scan(&total).Error
	return total, err
}

// GetSoftDeletedAssetByHash finds a soft-deleted asset with the given
// content hash so its storage object can be revived instead of re-uploaded.
func (r *Repository) GetSoftDeletedAssetByHash(hash string) (*models.Asset, error) {
	var asset models.Asset
	err := r.db.Unscoped().Where("content_hash = ? AND deleted_at IS NOT NULL", hash).First(&asset).Error
	return &asset, err
}

// WithContext returns a context-bound copy of the repository.
func (r *Repository) WithContext(ctx context.Context) *Repository {
	return &Repository{db: r.db.WithContext(ctx)}
}

// DB returns the underlying *gorm.DB.
func (r *Repository) DB() *gorm.DB {
	return r.db
}
