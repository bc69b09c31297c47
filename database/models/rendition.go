package models

import (
	"time"

	"gorm.io/gorm"
)

// Rendition is a derived variant of an asset (resized, transcoded).
type Rendition struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
	AssetID    uint           `gorm:"not null;index:idx_asset_cache_key,unique" json:"asset_id"`
	CacheKey   string         `gorm:"not null;size:64;index:idx_asset_cache_key,unique" json:"cache_key"`
	Format     string         `gorm:"not null;size:20" json:"format"`
	StorageKey string         `gorm:"not null;size:255" json:"storage_key"`
	ByteSize   int64          `json:"byte_size"`

	// RequestWidth and RequestHeight are the dimensions the cache key
	// was derived from; Width and Height are the actual output
	// dimensions once generation completes.
	RequestWidth  int `gorm:"not null;default:0" json:"request_width"`
	RequestHeight int `gorm:"not null;default:0" json:"request_height"`
	Width         int `json:"width"`
	Height        int `json:"height"`

	Status       string     `gorm:"default:pending;size:20;index" json:"status"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount   int        `gorm:"default:0" json:"retry_count"`
	NextRetryAt  *time.Time `gorm:"index" json:"next_retry_at,omitempty"`
}

func (Rendition) TableName() string {
	return "renditions"
}

const (
	RenditionStatusPending    = "pending"
	RenditionStatusProcessing = "processing"
	RenditionStatusCompleted  = "completed"
	RenditionStatusFailed     = "failed"
)

const (
	RenditionFormatWebP = "webp"
	RenditionFormatJPEG = "jpeg"
	RenditionFormatPNG  = "png"
)

// RenditionSize is a named target dimension. Height 0 keeps the
// original aspect ratio.
type RenditionSize struct {
	Name   string
	Width  int
	Height int
}

// DefaultRenditionSizes are the variants pre-generated for every
// preview-capable asset.
var DefaultRenditionSizes = []RenditionSize{
	{Name: "small", Width: 150, Height: 0},
	{Name: "medium", Width: 300, Height: 0},
	{Name: "large", Width: 600, Height: 0},
}
