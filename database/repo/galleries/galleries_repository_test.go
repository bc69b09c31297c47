package galleries

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/galerly/galerly/database/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.User{}, &models.Gallery{}, &models.Asset{}, &models.GalleryArchive{})
	require.NoError(t, err)

	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	user := &models.User{Username: username, Password: "password"}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestAsset(t *testing.T, db *gorm.DB, userID uint, name, hash string) *models.Asset {
	asset := &models.Asset{
		Identifier:   hash[:12],
		OriginalName: name,
		ByteSize:     1000,
		MimeType:     "image/jpeg",
		StorageKey:   "original/2026/01/01/" + hash[:12] + ".jpg",
		ContentHash:  hash,
		UserID:       userID,
	}
	require.NoError(t, db.Create(asset).Error)
	return asset
}

func TestRepository_CreateGallery(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	user := createTestUser(t, db, "creator")
	gallery := &models.Gallery{Name: "spring wedding", Description: "client shoot", UserID: user.ID}

	require.NoError(t, repo.CreateGallery(gallery))
	assert.NotZero(t, gallery.ID)
	assert.NotZero(t, gallery.CreatedAt)
}

func TestRepository_GetUserGalleries(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	user := createTestUser(t, db, "pager")
	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&models.Gallery{Name: fmt.Sprintf("g%d", i), UserID: user.ID}).Error)
	}

	result, total, err := repo.GetUserGalleries(user.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, result, 2)

	result, total, err = repo.GetUserGalleries(user.ID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, result, 1)
}

func TestRepository_GetUserGalleries_CountsAndCovers(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	user := createTestUser(t, db, "covers")
	gallery := &models.Gallery{Name: "portraits", UserID: user.ID}
	require.NoError(t, db.Create(gallery).Error)

	a1 := createTestAsset(t, db, user.ID, "a.jpg", strings.Repeat("1", 64))
	a2 := createTestAsset(t, db, user.ID, "b.jpg", strings.Repeat("2", 64))
	require.NoError(t, db.Model(gallery).Association("Assets").Append(a1, a2))

	result, total, err := repo.GetUserGalleries(user.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, result, 1)
	assert.Equal(t, int64(2), result[0].AssetCount)
	assert.NotEmpty(t, result[0].CoverID)
}

func TestRepository_GetGalleryWithAssetsByID_WrongUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	owner := createTestUser(t, db, "owner")
	stranger := createTestUser(t, db, "stranger")

	gallery := &models.Gallery{Name: "private", UserID: owner.ID}
	require.NoError(t, db.Create(gallery).Error)

	_, err := repo.GetGalleryWithAssetsByID(gallery.ID, stranger.ID)
	assert.Error(t, err)
}

func TestRepository_AddAssetsToGallery(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	user := createTestUser(t, db, "adder")
	gallery := &models.Gallery{Name: "batch", UserID: user.ID}
	require.NoError(t, db.Create(gallery).Error)

	a1 := createTestAsset(t, db, user.ID, "a.jpg", strings.Repeat("3", 64))
	a2 := createTestAsset(t, db, user.ID, "b.jpg", strings.Repeat("4", 64))

	err := repo.AddAssetsToGallery(gallery.ID, user.ID, []uint{a1.ID, a2.ID})
	require.NoError(t, err)

	var count int64
	db.Table("gallery_assets").Where("gallery_id = ?", gallery.ID).Count(&count)
	assert.Equal(t, int64(2), count)

	// Unknown gallery is rejected before any insert.
	err = repo.AddAssetsToGallery(9999, user.ID, []uint{a1.ID})
	assert.ErrorIs(t, err, ErrGalleryNotFound)
}

func TestRepository_RemoveAssetFromGallery(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	user := createTestUser(t, db, "remover")
	gallery := &models.Gallery{Name: "shrinking", UserID: user.ID}
	require.NoError(t, db.Create(gallery).Error)

	asset := createTestAsset(t, db, user.ID, "a.jpg", strings.Repeat("5", 64))
	require.NoError(t, db.Model(gallery).Association("Assets").Append(asset))

	require.NoError(t, repo.RemoveAssetFromGallery(gallery.ID, user.ID, asset))

	var count int64
	db.Table("gallery_assets").Where("gallery_id = ?", gallery.ID).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestRepository_DeleteGallery(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	user := createTestUser(t, db, "deleter")
	gallery := &models.Gallery{Name: "doomed", UserID: user.ID}
	require.NoError(t, db.Create(gallery).Error)

	asset := createTestAsset(t, db, user.ID, "a.jpg", strings.Repeat("6", 64))
	require.NoError(t, db.Model(gallery).Association("Assets").Append(asset))

	require.NoError(t, repo.DeleteGallery(gallery.ID, user.ID))

	// Membership cleared, asset itself survives.
	var count int64
	db.Table("gallery_assets").Where("gallery_id = ?", gallery.ID).Count(&count)
	assert.Equal(t, int64(0), count)

	db.Model(&models.Asset{}).Where("id = ?", asset.ID).Count(&count)
	assert.Equal(t, int64(1), count)

	err := repo.DeleteGallery(9999, user.ID)
	assert.ErrorIs(t, err, ErrGalleryNotFound)
}

func TestRepository_ShareToken(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	user := createTestUser(t, db, "sharer")
	gallery := &models.Gallery{Name: "shared", UserID: user.ID}
	require.NoError(t, db.Create(gallery).Error)

	require.NoError(t, repo.SetShareToken(gallery.ID, user.ID, "tok123"))

	got, err := repo.GetGalleryByShareToken("tok123")
	require.NoError(t, err)
	assert.Equal(t, gallery.ID, got.ID)

	_, err = repo.GetGalleryByShareToken("")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// Clearing the token revokes access.
	require.NoError(t, repo.SetShareToken(gallery.ID, user.ID, ""))
	_, err = repo.GetGalleryByShareToken("tok123")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	err = repo.SetShareToken(9999, user.ID, "tok456")
	assert.ErrorIs(t, err, ErrGalleryNotFound)
}

func TestArchiveRepository_UpsertAndTransitions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewArchiveRepository(db)

	user := createTestUser(t, db, "archiver")
	gallery := &models.Gallery{Name: "zipped", UserID: user.ID}
	require.NoError(t, db.Create(gallery).Error)

	first, err := repo.UpsertPending(gallery.ID, "archives/gallery-1.zip")
	require.NoError(t, err)
	assert.Equal(t, models.ArchiveStatusPending, first.Status)

	second, err := repo.UpsertPending(gallery.ID, "archives/gallery-1.zip")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	ok, err := repo.UpdateStatusCAS(first.ID, models.ArchiveStatusPending, models.ArchiveStatusProcessing, "")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.UpdateCompleted(first.ID, 4096, 3))

	got, err := repo.GetByGalleryID(gallery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArchiveStatusCompleted, got.Status)
	assert.Equal(t, 3, got.EntryCount)

	require.NoError(t, repo.DeleteByGalleryID(gallery.ID))
	_, err = repo.GetByGalleryID(gallery.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
