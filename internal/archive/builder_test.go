package archive

import (
	"archive/zip"
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

	"github.com/galerly/galerly/database/models"
	"github.com/galerly/galerly/database/repo/assets"
	"github.com/galerly/galerly/database/repo/galleries"
	"github.com/galerly/galerly/internal/fingerprint"
	"github.com/galerly/galerly/utils/generator"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) SaveWithContext(ctx context.Context, key string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeStore) GetWithContext(ctx context.Context, key string) (io.ReadSeeker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	return bytes.NewReader(data), nil
}

func (f *fakeStore) DeleteWithContext(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeStore) Health(ctx context.Context) error { return nil }
func (f *fakeStore) Name() string                     { return "fake" }

type fixture struct {
	builder *Builder
	store   *fakeStore
	db      *gorm.DB
	gallery *models.Gallery
	user    *models.User
}

func setup(t *testing.T) *fixture {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Gallery{}, &models.Asset{}, &models.GalleryArchive{}))

	user := &models.User{Username: "archivist", Password: "pw"}
	require.NoError(t, db.Create(user).Error)

	gallery := &models.Gallery{Name: "shoot", UserID: user.ID}
	require.NoError(t, db.Create(gallery).Error)

	store := newFakeStore()
	builder := NewBuilder(
		assets.NewRepository(db),
		galleries.NewArchiveRepository(db),
		store,
		generator.NewPathGenerator(),
	)

	return &fixture{builder: builder, store: store, db: db, gallery: gallery, user: user}
}

// addAsset stores content and attaches the asset row to the gallery.
func (f *fixture) addAsset(t *testing.T, name string, content []byte) *models.Asset {
	hash := fingerprint.ComputeBytes(content).ContentHash
	storageKey := "original/2026/01/01/" + hash[:12] + ".jpg"

	require.NoError(t, f.store.SaveWithContext(context.Background(), storageKey, bytes.NewReader(content)))

	asset := &models.Asset{
		Identifier:   hash[:12],
		OriginalName: name,
		ByteSize:     int64(len(content)),
		MimeType:     "image/jpeg",
		StorageKey:   storageKey,
		ContentHash:  hash,
		UserID:       f.user.ID,
	}
	require.NoError(t, f.db.Create(asset).Error)
	require.NoError(t, f.db.Model(f.gallery).Association("Assets").Append(asset))
	return asset
}

// extract reads the archive back and returns entries in order.
func extract(t *testing.T, data []byte) ([]string, map[string][]byte, []*zip.File) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	names := make([]string, 0, len(reader.File))
	contents := make(map[string][]byte, len(reader.File))
	for _, file := range reader.File {
		names = append(names, file.Name)
		rc, err := file.Open()
		require.NoError(t, err)
		payload, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		contents[file.Name] = payload
	}
	return names, contents, reader.File
}

func TestBuild_ByteExactEntries(t *testing.T) {
	f := setup(t)
	bytes1 := []byte("jpeg-bytes-one")
	bytes2 := []byte("jpeg-bytes-two-longer")
	f.addAsset(t, "a.jpg", bytes1)
	f.addAsset(t, "b.jpg", bytes2)

	report, err := f.builder.Build(context.Background(), f.gallery.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.EntryCount)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, "archives/gallery-1.zip", report.StorageKey)

	data := f.store.objects[report.StorageKey]
	require.NotEmpty(t, data)
	assert.Equal(t, int64(len(data)), report.ByteSize)

	names, contents, files := extract(t, data)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, names)
	assert.Equal(t, bytes1, contents["a.jpg"])
	assert.Equal(t, bytes2, contents["b.jpg"])

	// Entries must be stored, never recompressed.
	for _, file := range files {
		assert.Equal(t, zip.Store, file.Method, "entry %s", file.Name)
	}
}

func TestBuild_DuplicateNamesDisambiguated(t *testing.T) {
	f := setup(t)
	bytes1 := []byte("first a.jpg")
	bytes2 := []byte("second a.jpg different")
	f.addAsset(t, "a.jpg", bytes1)
	f.addAsset(t, "a.jpg", bytes2)

	report, err := f.builder.Build(context.Background(), f.gallery.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.EntryCount)

	names, contents, _ := extract(t, f.store.objects[report.StorageKey])
	assert.Equal(t, []string{"a.jpg", "a_1.jpg"}, names)
	assert.Equal(t, bytes1, contents["a.jpg"])
	assert.Equal(t, bytes2, contents["a_1.jpg"])
}

func TestBuild_SkipsUnreadableAsset(t *testing.T) {
	f := setup(t)
	good := []byte("readable")
	f.addAsset(t, "good.jpg", good)
	bad := f.addAsset(t, "bad.jpg", []byte("doomed"))

	// Remove the second object so its read fails.
	require.NoError(t, f.store.DeleteWithContext(context.Background(), bad.StorageKey))

	report, err := f.builder.Build(context.Background(), f.gallery.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.EntryCount)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, bad.ID, report.Skipped[0].AssetID)
	assert.Equal(t, "bad.jpg", report.Skipped[0].OriginalName)

	names, contents, _ := extract(t, f.store.objects[report.StorageKey])
	assert.Equal(t, []string{"good.jpg"}, names)
	assert.Equal(t, good, contents["good.jpg"])
}

// flakyStore fails reads of one key partway through the stream.
type flakyStore struct {
	*fakeStore
	failKey   string
	failAfter int
}

func (f *flakyStore) GetWithContext(ctx context.Context, key string) (io.ReadSeeker, error) {
	rs, err := f.fakeStore.GetWithContext(ctx, key)
	if err != nil || key != f.failKey {
		return rs, err
	}
	return &truncatedReader{r: rs, remaining: f.failAfter}, nil
}

type truncatedReader struct {
	r         io.ReadSeeker
	remaining int
}

func (t *truncatedReader) Read(p []byte) (int, error) {
	if t.remaining <= 0 {
		return 0, fmt.Errorf("read interrupted")
	}
	if len(p) > t.remaining {
		p = p[:t.remaining]
	}
	n, err := t.r.Read(p)
	t.remaining -= n
	return n, err
}

func (t *truncatedReader) Seek(offset int64, whence int) (int64, error) {
	return t.r.Seek(offset, whence)
}

func TestBuild_InterruptedReadLeavesNoPartialEntry(t *testing.T) {
	f := setup(t)
	good := []byte("intact original bytes")
	f.addAsset(t, "good.jpg", good)
	bad := f.addAsset(t, "bad.jpg", []byte("these bytes cut out midway"))

	store := &flakyStore{fakeStore: f.store, failKey: bad.StorageKey, failAfter: 7}
	builder := NewBuilder(
		assets.NewRepository(f.db),
		galleries.NewArchiveRepository(f.db),
		store,
		generator.NewPathGenerator(),
	)

	report, err := builder.Build(context.Background(), f.gallery.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.EntryCount)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "bad.jpg", report.Skipped[0].OriginalName)

	names, contents, _ := extract(t, f.store.objects[report.StorageKey])
	assert.NotContains(t, names, "bad.jpg")
	assert.Equal(t, []string{"good.jpg"}, names)
	assert.Equal(t, good, contents["good.jpg"])
}

func TestBuild_SkipsObjectWithMismatchedBytes(t *testing.T) {
	f := setup(t)
	good := []byte("pristine")
	f.addAsset(t, "good.jpg", good)
	bad := f.addAsset(t, "bad.jpg", []byte("original bytes"))

	// Overwrite the stored object behind the row's back.
	require.NoError(t, f.store.SaveWithContext(context.Background(), bad.StorageKey, bytes.NewReader([]byte("tampered bytes"))))

	report, err := f.builder.Build(context.Background(), f.gallery.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.EntryCount)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, bad.ID, report.Skipped[0].AssetID)

	names, _, _ := extract(t, f.store.objects[report.StorageKey])
	assert.Equal(t, []string{"good.jpg"}, names)
}

func TestBuild_EmptyGalleryRemovesPriorArchive(t *testing.T) {
	f := setup(t)
	key := generator.NewPathGenerator().ArchiveKey(f.gallery.ID)

	// A stale archive from an earlier build.
	require.NoError(t, f.store.SaveWithContext(context.Background(), key, bytes.NewReader([]byte("stale"))))

	report, err := f.builder.Build(context.Background(), f.gallery.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.EntryCount)
	assert.True(t, report.RemovedPrior)

	exists, err := f.store.Exists(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBuild_EmptyGalleryWithoutPriorArchive(t *testing.T) {
	f := setup(t)

	report, err := f.builder.Build(context.Background(), f.gallery.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.EntryCount)
	assert.False(t, report.RemovedPrior)
}

func TestBuild_Idempotent(t *testing.T) {
	f := setup(t)
	f.addAsset(t, "a.jpg", []byte("content-a"))
	f.addAsset(t, "a.jpg", []byte("content-b"))

	first, err := f.builder.Build(context.Background(), f.gallery.ID)
	require.NoError(t, err)
	names1, contents1, _ := extract(t, f.store.objects[first.StorageKey])

	second, err := f.builder.Build(context.Background(), f.gallery.ID)
	require.NoError(t, err)
	names2, contents2, _ := extract(t, f.store.objects[second.StorageKey])

	assert.Equal(t, names1, names2)
	assert.Equal(t, contents1, contents2)
	assert.Equal(t, first.EntryCount, second.EntryCount)
}

func TestBuild_RecordsCompletion(t *testing.T) {
	f := setup(t)
	f.addAsset(t, "a.jpg", []byte("content"))

	report, err := f.builder.Build(context.Background(), f.gallery.ID)
	require.NoError(t, err)

	archiveRepo := galleries.NewArchiveRepository(f.db)
	row, err := archiveRepo.GetByGalleryID(f.gallery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArchiveStatusCompleted, row.Status)
	assert.Equal(t, report.EntryCount, row.EntryCount)
	assert.Equal(t, report.ByteSize, row.ByteSize)
}

func TestEntryName(t *testing.T) {
	used := map[string]bool{}

	name := entryName("photo.jpg", "abc", used)
	assert.Equal(t, "photo.jpg", name)
	used[name] = true

	name = entryName("photo.jpg", "def", used)
	assert.Equal(t, "photo_1.jpg", name)
	used[name] = true

	name = entryName("photo.jpg", "ghi", used)
	assert.Equal(t, "photo_2.jpg", name)

	// Path components are stripped so entries stay flat.
	assert.Equal(t, "evil.jpg", entryName("../../evil.jpg", "jkl", map[string]bool{}))

	// Empty names fall back to the identifier.
	assert.Equal(t, "abc123", entryName("  ", "abc123", map[string]bool{}))
}
