package generator

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// PathGenerator derives storage keys for originals, renditions and archives.
type PathGenerator struct{}

func NewPathGenerator() *PathGenerator {
	return &PathGenerator{}
}

// StorageIdentifiers pairs the short business identifier with the full
// storage key.
type StorageIdentifiers struct {
	Identifier string // e.g. a1b2c3d4e5f6
	StorageKey string // e.g. original/2024/01/15/a1b2c3d4e5f6.jpg
}

// GenerateOriginalIdentifiers derives the identifier and storage key for an
// uploaded original from its content hash. The identifier is the hash prefix,
// so identical content always maps to the same key.
func (pg *PathGenerator) GenerateOriginalIdentifiers(contentHash string, ext string, uploadTime time.Time) StorageIdentifiers {
	hash := contentHash
	if len(hash) > 12 {
		hash = hash[:12]
	}
	datePath := uploadTime.Format("2006/01/02")

	return StorageIdentifiers{
		Identifier: hash,
		StorageKey: fmt.Sprintf("original/%s/%s%s", datePath, hash, strings.ToLower(ext)),
	}
}

// ArchiveKey derives the per-gallery archive object key. One key per gallery;
// rebuilds overwrite it.
func (pg *PathGenerator) ArchiveKey(galleryID uint) string {
	return fmt.Sprintf("archives/gallery-%d.zip", galleryID)
}

// ExtractHash recovers the content-hash prefix from a storage key such as
// original/2024/01/15/a1b2c3d4e5f6.jpg.
func (pg *PathGenerator) ExtractHash(storageKey string) string {
	base := filepath.Base(storageKey)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
