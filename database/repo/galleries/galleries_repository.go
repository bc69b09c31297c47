package galleries

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/galerly/galerly/database/models"
)

// ErrGalleryNotFound is returned when a gallery does not exist or the
// caller does not own it.
var ErrGalleryNotFound = errors.New("gallery not found or access denied")

// Repository persists galleries and their asset membership.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new gallery repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GalleryInfo is a gallery with its asset count and cover identifier.
type GalleryInfo struct {
	Gallery    *models.Gallery
	AssetCount int64
	CoverID    string
}

// GetUserGalleries pages through a user's galleries with asset counts
// and covers resolved in two batch queries.
func (r *Repository) GetUserGalleries(userID uint, page, pageSize int) ([]*GalleryInfo, int64, error) {
	var rows []*models.Gallery
	var total int64
	db := r.db.Model(&models.Gallery{}).Where("user_id = ?", userID)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := db.Order("created_at desc").Offset(offset).Limit(pageSize).Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	if len(rows) == 0 {
		return []*GalleryInfo{}, total, nil
	}

	galleryIDs := make([]uint, len(rows))
	for i, g := range rows {
		galleryIDs[i] = g.ID
	}

	var assetCounts []struct {
		GalleryID uint
		Count     int64
	}
	r.db.Table("gallery_assets").
		Select("gallery_id, COUNT(*) as count").
		Where("gallery_id IN ?", galleryIDs).
		Group("gallery_id").
		Scan(&assetCounts)

	countMap := make(map[uint]int64)
	for _, c := range assetCounts {
		countMap[c.GalleryID] = c.Count
	}

	var covers []struct {
		GalleryID  uint
		Identifier string
	}
	r.db.Raw(`
		SELECT ga.gallery_id, MAX(a.identifier) as identifier
		FROM gallery_assets ga
		JOIN assets a ON ga.asset_id = a.id
		WHERE ga.gallery_id IN ?
		GROUP BY ga.gallery_id
	`, galleryIDs).Scan(&covers)

	coverMap := make(map[uint]string)
	for _, c := range covers {
		coverMap[c.GalleryID] = c.Identifier
	}

	result := make([]*GalleryInfo, len(rows))
	for i, g := range rows {
		result[i] = &GalleryInfo{
			Gallery:    g,
			AssetCount: countMap[g.ID],
			CoverID:    coverMap[g.ID],
		}
	}

	return result, total, nil
}

// GetGalleryWithAssetsByID loads a gallery and its assets.
func (r *Repository) GetGalleryWithAssetsByID(galleryID, userID uint) (*models.Gallery, error) {
	var gallery models.Gallery
	err := r.db.Preload("Assets").First(&gallery, "id = ? AND user_id = ?", galleryID, userID).Error
	return &gallery, err
}

// GetGalleryByShareToken loads a shared gallery by its token.
func (r *Repository) GetGalleryByShareToken(token string) (*models.Gallery, error) {
	if token == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var gallery models.Gallery
	err := r.db.Where("share_token = ?", token).First(&gallery).Error
	return &gallery, err
}

// RemoveAssetFromGallery detaches an asset.
func (r *Repository) RemoveAssetFromGallery(galleryID, userID uint, asset *models.Asset) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var gallery models.Gallery
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&gallery, "id = ? AND user_id = ?", galleryID, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrGalleryNotFound
			}
			return err
		}
		return tx.Model(&gallery).Association("Assets").Delete(asset)
	})
}

// AddAssetsToGallery attaches a batch of assets in one insert.
func (r *Repository) AddAssetsToGallery(galleryID, userID uint, assetIDs []uint) error {
	if len(assetIDs) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		var gallery models.Gallery
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&gallery, "id = ? AND user_id = ?", galleryID, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrGalleryNotFound
			}
			return err
		}

		associations := make([]map[string]interface{}, len(assetIDs))
		for i, id := range assetIDs {
			associations[i] = map[string]interface{}{
				"gallery_id": galleryID,
				"asset_id":   id,
			}
		}
		return tx.Table("gallery_assets").Clauses(clause.OnConflict{DoNothing: true}).Create(associations).Error
	})
}

// GetGalleryIDsByAssetID lists the galleries an asset belongs to.
// Used to fan out archive rebuilds when an asset goes away.
func (r *Repository) GetGalleryIDsByAssetID(assetID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Table("gallery_assets").
		Where("asset_id = ?", assetID).
		Pluck("gallery_id", &ids).Error
	return ids, err
}

// CreateGallery inserts a gallery row.
func (r *Repository) CreateGallery(gallery *models.Gallery) error {
	return r.db.Create(gallery).Error
}

// DeleteGallery removes a gallery and clears its membership.
func (r *Repository) DeleteGallery(galleryID, userID uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var gallery models.Gallery
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&gallery, "id = ? AND user_id = ?", galleryID, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrGalleryNotFound
			}
			return err
		}

		if err := tx.Model(&gallery).Association("Assets").Clear(); err != nil {
			return err
		}
		return tx.Delete(&gallery).Error
	})
}

// GetGalleryByIDAndUser loads a user's gallery by primary key.
func (r *Repository) GetGalleryByIDAndUser(galleryID, userID uint) (*models.Gallery, error) {
	var gallery models.Gallery
	err := r.db.Where("id = ? AND user_id = ?", galleryID, userID).First(&gallery).Error
	return &gallery, err
}

// CountGalleriesByUser counts a user's galleries.
func (r *Repository) CountGalleriesByUser(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Gallery{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// UpdateGallery saves the full gallery row.
func (r *Repository) UpdateGallery(gallery *models.Gallery) error {
	return r.db.Save(gallery).Error
}

// SetShareToken sets or clears the gallery's share token.
func (r *Repository) SetShareToken(galleryID, userID uint, token string) error {
	result := r.db.Model(&models.Gallery{}).
		Where("id = ? AND user_id = ?", galleryID, userID).
		Update("share_token", token)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrGalleryNotFound
	}
	return nil
}

// WithContext returns a context-bound copy of the repository.
func (r *Repository) WithContext(ctx context.Context) *Repository {
	return &Repository{db: r.db.WithContext(ctx)}
}
