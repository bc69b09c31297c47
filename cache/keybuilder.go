package cache

import (
	"fmt"
	"strings"
)

// KeyBuilder builds namespaced cache keys.
type KeyBuilder struct {
	prefix string
	sep    string
}

func NewKeyBuilder(prefix string) *KeyBuilder {
	return &KeyBuilder{
		prefix: prefix,
		sep:    ":",
	}
}

// Build joins parts under the prefix.
func (kb *KeyBuilder) Build(parts ...string) string {
	if len(parts) == 0 {
		return kb.prefix
	}
	return kb.prefix + kb.sep + strings.Join(parts, kb.sep)
}

// BuildID builds a key from a single id.
func (kb *KeyBuilder) BuildID(id interface{}) string {
	return fmt.Sprintf("%s%s%v", kb.prefix, kb.sep, id)
}

// Predefined key builders.
var (
	// AssetMeta caches asset metadata rows by identifier.
	AssetMeta = NewKeyBuilder("asset_meta")

	// AssetData caches small original/rendition payloads by storage key.
	AssetData = NewKeyBuilder("asset_data")

	// Gallery caches gallery rows by id.
	Gallery = NewKeyBuilder("gallery")

	// ShareToken caches share-token lookups.
	ShareToken = NewKeyBuilder("share_token")

	// User caches user rows by id.
	User = NewKeyBuilder("user")

	// RefreshToken maps opaque refresh tokens to user sessions.
	RefreshToken = NewKeyBuilder("refresh_token")
)
