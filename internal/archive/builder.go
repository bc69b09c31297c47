// Package archive packages a gallery's original assets into a single
// downloadable ZIP without altering byte content.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/galerly/galerly/database/models"
	"github.com/galerly/galerly/database/repo/assets"
	"github.com/galerly/galerly/database/repo/galleries"
	"github.com/galerly/galerly/internal/fingerprint"
	"github.com/galerly/galerly/storage"
	"github.com/galerly/galerly/utils"
	"github.com/galerly/galerly/utils/generator"
	"github.com/galerly/galerly/utils/pool"
)

// SkippedEntry records one asset that could not be archived.
type SkippedEntry struct {
	AssetID      uint   `json:"asset_id"`
	OriginalName string `json:"original_name"`
	Reason       string `json:"reason"`
}

// Report is the outcome of one archive build.
type Report struct {
	GalleryID    uint           `json:"gallery_id"`
	StorageKey   string         `json:"storage_key,omitempty"`
	EntryCount   int            `json:"entry_count"`
	ByteSize     int64          `json:"byte_size"`
	Skipped      []SkippedEntry `json:"skipped,omitempty"`
	RemovedPrior bool           `json:"removed_prior,omitempty"`
}

// Builder produces per-gallery download archives. Entries are stored
// uncompressed so the archived bytes are identical to the uploaded
// originals.
type Builder struct {
	assets   *assets.Repository
	archives *galleries.ArchiveRepository
	store    storage.Provider
	paths    *generator.PathGenerator
}

// NewBuilder creates a builder.
func NewBuilder(assetRepo *assets.Repository, archiveRepo *galleries.ArchiveRepository, store storage.Provider, paths *generator.PathGenerator) *Builder {
	return &Builder{
		assets:   assetRepo,
		archives: archiveRepo,
		store:    store,
		paths:    paths,
	}
}

// Build assembles the archive for a gallery and persists it at the
// gallery's archive key, overwriting any prior archive. Unreadable
// assets are skipped and reported; the build still completes. An
// empty gallery removes the prior archive instead of writing an
// empty container. Idempotent per current gallery contents.
func (b *Builder) Build(ctx context.Context, galleryID uint) (*Report, error) {
	rows, err := b.assets.WithContext(ctx).GetAllAssetsByGalleryID(galleryID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate gallery assets: %w", err)
	}

	key := b.paths.ArchiveKey(galleryID)

	if len(rows) == 0 {
		return b.removeArchive(ctx, galleryID, key)
	}

	row, err := b.archives.UpsertPending(galleryID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to register archive build: %w", err)
	}
	// Claim from whatever state we observed. A lost claim means a
	// concurrent build is running; last writer wins, so carry on.
	if ok, err := b.archives.UpdateStatusCAS(row.ID, row.Status, models.ArchiveStatusProcessing, ""); err != nil {
		return nil, err
	} else if !ok {
		log.Printf("[Archive] concurrent build detected for gallery %d, continuing", galleryID)
	}

	report, err := b.writeArchive(ctx, galleryID, key, rows)
	if err != nil {
		if ferr := b.archives.UpdateFailed(row.ID, utils.SanitizeLogMessage(err.Error())); ferr != nil {
			log.Printf("[Archive] failed to record build failure for gallery %d: %v", galleryID, ferr)
		}
		return nil, err
	}

	if err := b.archives.UpdateCompleted(row.ID, report.ByteSize, report.EntryCount); err != nil {
		// A concurrent build may have completed the row already.
		log.Printf("[Archive] completion update for gallery %d: %v", galleryID, err)
	}

	return report, nil
}

// removeArchive handles the zero-asset case: any previously generated
// archive is deleted so no stale download survives.
func (b *Builder) removeArchive(ctx context.Context, galleryID uint, key string) (*Report, error) {
	report := &Report{GalleryID: galleryID, EntryCount: 0}

	exists, err := b.store.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check prior archive: %w", err)
	}
	if exists {
		if err := b.store.DeleteWithContext(ctx, key); err != nil {
			return nil, fmt.Errorf("failed to remove prior archive: %w", err)
		}
		report.RemovedPrior = true
	}

	if err := b.archives.DeleteByGalleryID(galleryID); err != nil {
		log.Printf("[Archive] failed to delete archive row for gallery %d: %v", galleryID, err)
	}

	return report, nil
}

func (b *Builder) writeArchive(ctx context.Context, galleryID uint, key string, rows []*models.Asset) (*Report, error) {
	tempFile, err := os.CreateTemp("", "galerly-archive-*.zip")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp archive: %w", err)
	}
	defer func() {
		_ = tempFile.Close()
		_ = os.Remove(tempFile.Name())
	}()

	report := &Report{GalleryID: galleryID, StorageKey: key}
	zipWriter := zip.NewWriter(tempFile)
	used := make(map[string]bool, len(rows))

	for _, asset := range rows {
		if err := b.addEntry(ctx, zipWriter, asset, used); err != nil {
			log.Printf("[Archive] skipping asset %d (%s) for gallery %d: %v",
				asset.ID, utils.SanitizeLogMessage(asset.OriginalName), galleryID, err)
			report.Skipped = append(report.Skipped, SkippedEntry{
				AssetID:      asset.ID,
				OriginalName: asset.OriginalName,
				Reason:       "unreadable",
			})
			continue
		}
		report.EntryCount++
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	size, err := tempFile.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to measure archive: %w", err)
	}
	if _, err := tempFile.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind archive: %w", err)
	}
	report.ByteSize = size

	if err := b.store.SaveWithContext(ctx, key, tempFile); err != nil {
		return nil, fmt.Errorf("failed to persist archive: %w", err)
	}

	return report, nil
}

// addEntry stages one asset and writes it into the archive. Method
// Store keeps the entry bytes identical to the stored original. The
// payload is staged and verified in full before the entry header is
// cut, so a read that fails partway can never leave a truncated entry
// under the asset's name.
func (b *Builder) addEntry(ctx context.Context, zw *zip.Writer, asset *models.Asset, used map[string]bool) error {
	staged, err := b.stageAsset(ctx, asset)
	if err != nil {
		return err
	}

	name := entryName(asset.OriginalName, asset.Identifier, used)
	used[name] = true

	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: asset.CreatedAt,
	}

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = w.Write(staged)
	return err
}

// stageAsset reads an asset's payload completely, hashing it in the
// same pass. Bytes that no longer match the recorded fingerprint are
// treated like a failed read: the asset is skipped rather than
// archived wrong.
func (b *Builder) stageAsset(ctx context.Context, asset *models.Asset) ([]byte, error) {
	reader, err := b.store.GetWithContext(ctx, asset.StorageKey)
	if err != nil {
		return nil, err
	}
	if closer, ok := reader.(io.Closer); ok {
		defer closer.Close()
	}

	var staged bytes.Buffer
	if asset.ByteSize > 0 {
		staged.Grow(int(asset.ByteSize))
	}
	hasher := fingerprint.Tee()

	bufPtr := pool.SharedBufferPool.Get().(*[]byte)
	defer pool.SharedBufferPool.Put(bufPtr)

	if _, err := io.CopyBuffer(io.MultiWriter(&staged, hasher), reader, *bufPtr); err != nil {
		return nil, err
	}

	if fp := hasher.Sum(); fp.ContentHash != asset.ContentHash || fp.ByteSize != asset.ByteSize {
		return nil, fmt.Errorf("stored bytes do not match recorded fingerprint for %s", asset.Identifier)
	}

	return staged.Bytes(), nil
}

// entryName picks the archive entry name for an asset: the original
// filename when free, otherwise a numeric suffix before the extension
// in enumeration order, so repeated builds of the same gallery
// produce the same names.
func entryName(original, identifier string, used map[string]bool) string {
	name := filepath.Base(strings.TrimSpace(original))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = identifier
	}

	if !used[name] {
		return name
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if !used[candidate] {
			return candidate
		}
	}
}
