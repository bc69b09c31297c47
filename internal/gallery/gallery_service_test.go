package gallery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/galerly/galerly/database/models"
	"github.com/galerly/galerly/database/repo/assets"
	"github.com/galerly/galerly/database/repo/galleries"
	"github.com/galerly/galerly/utils/generator"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) SaveWithContext(_ context.Context, key string, file io.Reader) error {
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeStore) GetWithContext(_ context.Context, key string) (io.ReadSeeker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return bytes.NewReader(data), nil
}

func (f *fakeStore) DeleteWithContext(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeStore) Health(context.Context) error { return nil }
func (f *fakeStore) Name() string                 { return "fake" }

type recordingInvoker struct {
	mu        sync.Mutex
	galleries []uint
}

func (r *recordingInvoker) InvokeArchiveRebuild(galleryID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.galleries = append(r.galleries, galleryID)
	return nil
}

func (r *recordingInvoker) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.galleries)
}

type testEnv struct {
	db       *gorm.DB
	store    *fakeStore
	invoker  *recordingInvoker
	archives *galleries.ArchiveRepository
	service  *Service
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Gallery{}, &models.Asset{}, &models.Rendition{}, &models.GalleryArchive{}))

	store := newFakeStore()
	invoker := &recordingInvoker{}
	archives := galleries.NewArchiveRepository(db)
	service := NewService(
		galleries.NewRepository(db),
		archives,
		assets.NewRepository(db),
		invoker,
		store,
		generator.NewPathGenerator(),
	)

	return &testEnv{db: db, store: store, invoker: invoker, archives: archives, service: service}
}

func (e *testEnv) createUser(t *testing.T, name string) *models.User {
	t.Helper()
	user := &models.User{Username: name, Password: "hash"}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func (e *testEnv) createAsset(t *testing.T, userID uint, name, hash string) *models.Asset {
	t.Helper()
	asset := &models.Asset{
		Identifier:   hash[:12],
		OriginalName: name,
		ByteSize:     int64(len(name)),
		MimeType:     "image/jpeg",
		StorageKey:   "original/2026/01/01/" + hash[:12] + ".jpg",
		ContentHash:  hash,
		UserID:       userID,
	}
	require.NoError(t, e.db.Create(asset).Error)
	return asset
}

func testHash(seed byte) string {
	return strings.Repeat(fmt.Sprintf("%02x", seed), 32)
}

func TestService_CreateAndGet(t *testing.T) {
	env := setupEnv(t)
	user := env.createUser(t, "alice")

	created, err := env.service.Create(context.Background(), user.ID, "Summer", "beach trip")
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	loaded, err := env.service.Get(context.Background(), created.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Summer", loaded.Name)
	assert.Equal(t, "beach trip", loaded.Description)

	_, err = env.service.Get(context.Background(), created.ID, user.ID+1)
	assert.ErrorIs(t, err, ErrGalleryNotFound)
}

func TestService_CreateRequiresName(t *testing.T) {
	env := setupEnv(t)
	user := env.createUser(t, "alice")

	_, err := env.service.Create(context.Background(), user.ID, "", "")
	assert.Error(t, err)
}

func TestService_AddAssetsTriggersRebuild(t *testing.T) {
	env := setupEnv(t)
	user := env.createUser(t, "alice")
	gallery, err := env.service.Create(context.Background(), user.ID, "Summer", "")
	require.NoError(t, err)

	a := env.createAsset(t, user.ID, "a.jpg", testHash(1))
	b := env.createAsset(t, user.ID, "b.jpg", testHash(2))

	require.NoError(t, env.service.AddAssets(context.Background(), gallery.ID, user.ID, []uint{a.ID, b.ID}))
	assert.Equal(t, 1, env.invoker.count())

	loaded, err := env.service.Get(context.Background(), gallery.ID, user.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Assets, 2)
}

func TestService_AddAssetsRejectsForeignAssets(t *testing.T) {
	env := setupEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	gallery, err := env.service.Create(context.Background(), alice.ID, "Summer", "")
	require.NoError(t, err)

	foreign := env.createAsset(t, bob.ID, "theirs.jpg", testHash(3))

	err = env.service.AddAssets(context.Background(), gallery.ID, alice.ID, []uint{foreign.ID})
	require.Error(t, err)
	assert.Equal(t, 0, env.invoker.count())
}

func TestService_RemoveAssetTriggersRebuild(t *testing.T) {
	env := setupEnv(t)
	user := env.createUser(t, "alice")
	gallery, err := env.service.Create(context.Background(), user.ID, "Summer", "")
	require.NoError(t, err)

	a := env.createAsset(t, user.ID, "a.jpg", testHash(4))
	require.NoError(t, env.service.AddAssets(context.Background(), gallery.ID, user.ID, []uint{a.ID}))

	require.NoError(t, env.service.RemoveAsset(context.Background(), gallery.ID, user.ID, a.ID))
	assert.Equal(t, 2, env.invoker.count())

	loaded, err := env.service.Get(context.Background(), gallery.ID, user.ID)
	require.NoError(t, err)
	assert.Empty(t, loaded.Assets)
}

func TestService_ShareAndResolve(t *testing.T) {
	env := setupEnv(t)
	user := env.createUser(t, "alice")
	gallery, err := env.service.Create(context.Background(), user.ID, "Summer", "")
	require.NoError(t, err)
	a := env.createAsset(t, user.ID, "a.jpg", testHash(5))
	require.NoError(t, env.service.AddAssets(context.Background(), gallery.ID, user.ID, []uint{a.ID}))

	token, err := env.service.Share(context.Background(), gallery.ID, user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	shared, members, err := env.service.GetShared(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, gallery.ID, shared.ID)
	require.Len(t, members, 1)
	assert.Equal(t, a.ID, members[0].ID)

	require.NoError(t, env.service.Unshare(context.Background(), gallery.ID, user.ID))
	_, _, err = env.service.GetShared(context.Background(), token)
	assert.ErrorIs(t, err, ErrGalleryNotFound)
}

func TestService_ShareRequiresOwnership(t *testing.T) {
	env := setupEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	gallery, err := env.service.Create(context.Background(), alice.ID, "Summer", "")
	require.NoError(t, err)

	_, err = env.service.Share(context.Background(), gallery.ID, bob.ID)
	assert.ErrorIs(t, err, galleries.ErrGalleryNotFound)
}

func TestService_ArchiveStatusLifecycle(t *testing.T) {
	env := setupEnv(t)
	user := env.createUser(t, "alice")
	gallery, err := env.service.Create(context.Background(), user.ID, "Summer", "")
	require.NoError(t, err)

	_, err = env.service.ArchiveStatus(context.Background(), gallery.ID, user.ID)
	assert.ErrorIs(t, err, ErrArchiveNotReady)

	row, err := env.archives.UpsertPending(gallery.ID, "archives/gallery-1.zip")
	require.NoError(t, err)

	status, err := env.service.ArchiveStatus(context.Background(), gallery.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArchiveStatusPending, status.Status)

	// Download is refused until the build completes.
	_, _, err = env.service.OpenArchive(context.Background(), gallery.ID, user.ID)
	assert.ErrorIs(t, err, ErrArchiveNotReady)

	ok, err := env.archives.UpdateStatusCAS(row.ID, models.ArchiveStatusPending, models.ArchiveStatusProcessing, "")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, env.archives.UpdateCompleted(row.ID, 1234, 3))

	archive, _, err := env.service.OpenArchive(context.Background(), gallery.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArchiveStatusCompleted, archive.Status)
	assert.Equal(t, int64(1234), archive.ByteSize)
	assert.Equal(t, 3, archive.EntryCount)
}

func TestService_OpenSharedArchive(t *testing.T) {
	env := setupEnv(t)
	user := env.createUser(t, "alice")
	gallery, err := env.service.Create(context.Background(), user.ID, "Summer", "")
	require.NoError(t, err)

	token, err := env.service.Share(context.Background(), gallery.ID, user.ID)
	require.NoError(t, err)

	// No archive built yet.
	_, _, err = env.service.OpenSharedArchive(context.Background(), token)
	assert.ErrorIs(t, err, ErrArchiveNotReady)

	key := fmt.Sprintf("archives/gallery-%d.zip", gallery.ID)
	row, err := env.archives.UpsertPending(gallery.ID, key)
	require.NoError(t, err)
	ok, err := env.archives.UpdateStatusCAS(row.ID, models.ArchiveStatusPending, models.ArchiveStatusProcessing, "")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, env.archives.UpdateCompleted(row.ID, 8, 1))

	archive, store, err := env.service.OpenSharedArchive(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, gallery.ID, archive.GalleryID)
	assert.NotNil(t, store)

	_, _, err = env.service.OpenSharedArchive(context.Background(), "bogus-token")
	assert.ErrorIs(t, err, ErrGalleryNotFound)
}

func TestService_RequestArchiveRebuild(t *testing.T) {
	env := setupEnv(t)
	user := env.createUser(t, "alice")
	gallery, err := env.service.Create(context.Background(), user.ID, "Summer", "")
	require.NoError(t, err)

	require.NoError(t, env.service.RequestArchiveRebuild(context.Background(), gallery.ID, user.ID))
	assert.Equal(t, 1, env.invoker.count())

	err = env.service.RequestArchiveRebuild(context.Background(), gallery.ID+99, user.ID)
	assert.ErrorIs(t, err, ErrGalleryNotFound)
}

func TestService_DeleteCleansArchive(t *testing.T) {
	env := setupEnv(t)
	user := env.createUser(t, "alice")
	gallery, err := env.service.Create(context.Background(), user.ID, "Summer", "")
	require.NoError(t, err)

	key := fmt.Sprintf("archives/gallery-%d.zip", gallery.ID)
	require.NoError(t, env.store.SaveWithContext(context.Background(), key, bytes.NewReader([]byte("zipbytes"))))
	_, err = env.archives.UpsertPending(gallery.ID, key)
	require.NoError(t, err)

	require.NoError(t, env.service.Delete(context.Background(), gallery.ID, user.ID))

	exists, err := env.store.Exists(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, exists, "archive object should be removed with the gallery")

	_, err = env.archives.GetByGalleryID(gallery.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = env.service.Get(context.Background(), gallery.ID, user.ID)
	assert.ErrorIs(t, err, ErrGalleryNotFound)
}
