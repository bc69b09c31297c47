package rendition

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Spec is one requested transformation. Zero values mean the
// dimension or format is unconstrained.
type Spec struct {
	Width  int
	Height int
	Format string
}

// IsZero reports whether no transformation was requested.
func (s Spec) IsZero() bool {
	return s.Width == 0 && s.Height == 0 && s.Format == ""
}

// CacheKey derives the deterministic cache key for a transformed
// asset. Pure function of its inputs: identical requests always
// target the same cache object, and distinct width/height/format
// combinations can never collide because the fields are length-safe
// delimited before hashing.
func CacheKey(storageKey string, spec Spec) string {
	payload := fmt.Sprintf("%d:%s|w=%d|h=%d|f=%s", len(storageKey), storageKey, spec.Width, spec.Height, spec.Format)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// StorageKeyFor places a rendition object under the renditions/
// prefix, named by its cache key.
func StorageKeyFor(cacheKey, format string) string {
	return fmt.Sprintf("renditions/%s.%s", cacheKey, format)
}
