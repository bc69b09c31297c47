package assets

import (
	"fmt"
	"strings"
	"testing"
	"time"

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

	err = db.AutoMigrate(&models.User{}, &models.Gallery{}, &models.Asset{}, &models.Rendition{})
	require.NoError(t, err)

	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	user := &models.User{Username: username, Password: "password"}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestAsset(t *testing.T, db *gorm.DB, userID uint, name, hash string, size int64) *models.Asset {
	asset := &models.Asset{
		Identifier:     hash[:12],
		OriginalName:   name,
		ByteSize:       size,
		MimeType:       "image/jpeg",
		StorageKey:     "original/2026/01/01/" + hash[:12] + ".jpg",
		ContentHash:    hash,
		Width:          800,
		Height:         600,
		PreviewCapable: true,
		UserID:         userID,
	}
	require.NoError(t, db.Create(asset).Error)
	return asset
}

func TestRepository_GetAssetByFingerprint(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	user := createTestUser(t, db, "fpuser")
	hash := strings.Repeat("b", 64)
	created := createTestAsset(t, db, user.ID, "photo.jpg", hash, 1234)

	got, err := repo.GetAssetByFingerprint(hash, 1234)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, hash, got.ContentHash)

	// Same hash but wrong size must miss.
	_, err = repo.GetAssetByFingerprint(hash, 9999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.GetAssetByFingerprint(strings.Repeat("f", 64), 1234)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_FindCandidatesByHashes(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	user := createTestUser(t, db, "batchuser")
	other := createTestUser(t, db, "batchother")

	h1 := strings.Repeat("1", 64)
	h2 := strings.Repeat("2", 64)
	h3 := strings.Repeat("3", 64)
	createTestAsset(t, db, user.ID, "one.jpg", h1, 100)
	createTestAsset(t, db, user.ID, "two.jpg", h2, 200)
	createTestAsset(t, db, other.ID, "three.jpg", h3, 300)

	got, err := repo.FindCandidatesByHashes([]string{h1, h2, h3}, user.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repo.FindCandidatesByHashes(nil, user.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRepository_FindCandidatesByNameAndSize(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	user := createTestUser(t, db, "nameuser")
	createTestAsset(t, db, user.ID, "Vacation.JPG", strings.Repeat("c", 64), 5000)
	createTestAsset(t, db, user.ID, "vacation.jpg", strings.Repeat("d", 64), 5000)
	createTestAsset(t, db, user.ID, "vacation.jpg", strings.Repeat("e", 64), 6000)

	// Name match is case-insensitive, size must be exact.
	got, err := repo.FindCandidatesByNameAndSize("  VACATION.jpg ", 5000, user.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repo.FindCandidatesByNameAndSize("vacation.jpg", 7000, user.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRepository_ListAssetsByUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	user := createTestUser(t, db, "listuser")
	for i := 0; i < 3; i++ {
		createTestAsset(t, db, user.ID, fmt.Sprintf("p%d.jpg", i), strings.Repeat(fmt.Sprintf("%d", i+4), 64), int64(i+1))
	}

	page1, total, err := repo.ListAssetsByUser(user.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page1, 2)

	page2, total, err := repo.ListAssetsByUser(user.ID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page2, 1)
}

func TestRepository_GetAllAssetsByGalleryID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	user := createTestUser(t, db, "galuser")
	gallery := &models.Gallery{Name: "wedding", UserID: user.ID}
	require.NoError(t, db.Create(gallery).Error)

	a1 := createTestAsset(t, db, user.ID, "a.jpg", strings.Repeat("7", 64), 10)
	a2 := createTestAsset(t, db, user.ID, "b.jpg", strings.Repeat("8", 64), 20)
	require.NoError(t, db.Model(gallery).Association("Assets").Append(a1, a2))

	got, err := repo.GetAllAssetsByGalleryID(gallery.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a1.ID, got[0].ID)
	assert.Equal(t, a2.ID, got[1].ID)

	got, err = repo.GetAllAssetsByGalleryID(9999)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRepository_DeleteAssetByIdentifierAndUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	user := createTestUser(t, db, "deluser")
	asset := createTestAsset(t, db, user.ID, "gone.jpg", strings.Repeat("9", 64), 42)

	err := repo.DeleteAssetByIdentifierAndUser(asset.Identifier, user.ID+1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	err = repo.DeleteAssetByIdentifierAndUser(asset.Identifier, user.ID)
	require.NoError(t, err)

	_, err = repo.GetAssetByIdentifier(asset.Identifier)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_PendingDeletionFlow(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	user := createTestUser(t, db, "penduser")
	asset := createTestAsset(t, db, user.ID, "pending.jpg", strings.Repeat("0", 64), 77)

	n, err := repo.MarkAsPendingDeletion([]string{asset.Identifier}, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.DeletePendingAssets([]string{asset.Identifier}, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetAssetByIdentifier(asset.Identifier)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRenditionRepository_UpsertPending(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRenditionRepository(db)

	user := createTestUser(t, db, "renduser")
	asset := createTestAsset(t, db, user.ID, "r.jpg", strings.Repeat("a1", 32), 100)

	first, err := repo.UpsertPending(asset.ID, "cachekey1", "webp", "renditions/cachekey1.webp", 300, 0)
	require.NoError(t, err)
	assert.Equal(t, models.RenditionStatusPending, first.Status)
	assert.Equal(t, 300, first.RequestWidth)

	// Second upsert returns the same row.
	second, err := repo.UpsertPending(asset.ID, "cachekey1", "webp", "renditions/cachekey1.webp", 300, 0)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestRenditionRepository_StatusTransitions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRenditionRepository(db)

	user := createTestUser(t, db, "casuser")
	asset := createTestAsset(t, db, user.ID, "c.jpg", strings.Repeat("b2", 32), 100)

	rendition, err := repo.UpsertPending(asset.ID, "caskey", "webp", "renditions/caskey.webp", 300, 0)
	require.NoError(t, err)

	ok, err := repo.UpdateStatusCAS(rendition.ID, models.RenditionStatusPending, models.RenditionStatusProcessing, "")
	require.NoError(t, err)
	assert.True(t, ok)

	// A second claim on the same row must lose.
	ok, err = repo.UpdateStatusCAS(rendition.ID, models.RenditionStatusPending, models.RenditionStatusProcessing, "")
	require.NoError(t, err)
	assert.False(t, ok)

	err = repo.UpdateCompleted(rendition.ID, "renditions/caskey.webp", 512, 300, 225)
	require.NoError(t, err)

	got, err := repo.GetByID(rendition.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RenditionStatusCompleted, got.Status)
	assert.Equal(t, int64(512), got.ByteSize)

	// Completing again fails the CAS.
	err = repo.UpdateCompleted(rendition.ID, "renditions/caskey.webp", 512, 300, 225)
	assert.Error(t, err)
}

func TestRenditionRepository_FailureAndRetry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRenditionRepository(db)

	user := createTestUser(t, db, "retryuser")
	asset := createTestAsset(t, db, user.ID, "f.jpg", strings.Repeat("c3", 32), 100)

	rendition, err := repo.UpsertPending(asset.ID, "failkey", "webp", "renditions/failkey.webp", 300, 0)
	require.NoError(t, err)

	require.NoError(t, repo.UpdateFailed(rendition.ID, "vips: decode error", true))

	got, err := repo.GetByID(rendition.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RenditionStatusFailed, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.NotNil(t, got.NextRetryAt)

	retryable, err := repo.GetRetryableRenditions(time.Now().Add(time.Hour), 3, 10)
	require.NoError(t, err)
	assert.Len(t, retryable, 1)

	require.NoError(t, repo.ResetForRetry(rendition.ID, time.Minute))

	got, err = repo.GetByID(rendition.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RenditionStatusPending, got.Status)
	assert.Equal(t, 2, got.RetryCount)
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, time.Minute, calculateBackoff(time.Minute, 0))
	assert.Equal(t, 4*time.Minute, calculateBackoff(time.Minute, 2))
	assert.Equal(t, 60*time.Minute, calculateBackoff(time.Minute, 5))
	assert.Equal(t, 60*time.Minute, calculateBackoff(time.Minute, 10))
}
