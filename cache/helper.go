package cache

import (
	"context"
	"time"

	"github.com/galerly/galerly/cache/types"
	"github.com/galerly/galerly/database/models"
)

// Helper wraps the cache provider with asset-specific operations.
type Helper struct {
	provider    types.Cache
	metaTTL     time.Duration
	dataTTL     time.Duration
	maxDataSize int64
}

// NewHelper creates a cache helper. maxDataSize bounds which payloads are
// cached at all; anything larger is always streamed from storage.
func NewHelper(provider types.Cache, metaTTL, dataTTL time.Duration, maxDataSize int64) *Helper {
	return &Helper{
		provider:    provider,
		metaTTL:     metaTTL,
		dataTTL:     dataTTL,
		maxDataSize: maxDataSize,
	}
}

// CacheAsset stores asset metadata under its identifier.
func (h *Helper) CacheAsset(ctx context.Context, asset *models.Asset) error {
	return h.provider.Set(ctx, AssetMeta.Build(asset.Identifier), asset, h.metaTTL)
}

// GetCachedAsset loads asset metadata by identifier.
func (h *Helper) GetCachedAsset(ctx context.Context, identifier string, dest *models.Asset) error {
	return h.provider.Get(ctx, AssetMeta.Build(identifier), dest)
}

// InvalidateAsset removes a cached asset row.
func (h *Helper) InvalidateAsset(ctx context.Context, identifier string) error {
	return h.provider.Delete(ctx, AssetMeta.Build(identifier))
}

// CacheAssetData stores a small payload under its storage key. Oversized
// payloads are silently skipped. A negative maxDataSize disables payload
// caching entirely while keeping metadata caching on.
func (h *Helper) CacheAssetData(ctx context.Context, storageKey string, data []byte) error {
	if h.maxDataSize < 0 {
		return nil
	}
	if h.maxDataSize > 0 && int64(len(data)) > h.maxDataSize {
		return nil
	}
	return h.provider.Set(ctx, AssetData.Build(storageKey), data, h.dataTTL)
}

// InvalidateAssetData removes a cached payload by storage key.
func (h *Helper) InvalidateAssetData(ctx context.Context, storageKey string) error {
	return h.provider.Delete(ctx, AssetData.Build(storageKey))
}

// GetCachedAssetData loads a cached payload by storage key.
func (h *Helper) GetCachedAssetData(ctx context.Context, storageKey string) ([]byte, error) {
	var data []byte
	if err := h.provider.Get(ctx, AssetData.Build(storageKey), &data); err != nil {
		return nil, err
	}
	return data, nil
}
