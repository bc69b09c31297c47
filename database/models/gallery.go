package models

import "gorm.io/gorm"

type Gallery struct {
	gorm.Model
	UserID      uint   `gorm:"not null;index" json:"user_id"`
	Name        string `gorm:"type:varchar(100);not null;index" json:"name"`
	Description string `gorm:"type:varchar(255)" json:"description"`

	// ShareToken grants read access to clients without an account.
	// Empty means the gallery is not shared.
	ShareToken string `gorm:"size:64;index" json:"-"`

	Assets []*Asset `gorm:"many2many:gallery_assets;" json:"-"`
}

// GalleryArchive tracks the downloadable ZIP built for a gallery.
// One row per gallery; rebuilt in place when membership changes.
type GalleryArchive struct {
	gorm.Model
	GalleryID  uint   `gorm:"uniqueIndex;not null" json:"gallery_id"`
	StorageKey string `gorm:"not null;size:255" json:"storage_key"`
	ByteSize   int64  `gorm:"not null" json:"byte_size"`
	EntryCount int    `gorm:"not null" json:"entry_count"`

	Status       string `gorm:"default:pending;size:20;index" json:"status"`
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`
}

func (GalleryArchive) TableName() string {
	return "gallery_archives"
}

const (
	ArchiveStatusPending    = "pending"
	ArchiveStatusProcessing = "processing"
	ArchiveStatusCompleted  = "completed"
	ArchiveStatusFailed     = "failed"
)
