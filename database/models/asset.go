package models

import "gorm.io/gorm"

type Asset struct {
	gorm.Model
	Identifier   string `gorm:"uniqueIndex:idx_identifier;not null" json:"identifier"`
	OriginalName string `gorm:"not null" json:"original_name"`
	ByteSize     int64  `gorm:"not null" json:"byte_size"`
	MimeType     string `gorm:"not null" json:"mime_type"`
	StorageKey   string `gorm:"not null;size:255" json:"storage_key"`

	ContentHash string `gorm:"uniqueIndex:idx_content_hash;not null;size:64" json:"content_hash"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`

	// PreviewCapable is false for formats the pipeline can store and
	// archive but not decode for renditions (HEIC, camera RAW).
	PreviewCapable bool `gorm:"default:true;not null" json:"preview_capable"`
	IsPublic       bool `gorm:"default:false;not null" json:"is_public"`

	UserID uint `gorm:"index:idx_user_created_at,priority:1" json:"user_id"`
	User   User `gorm:"foreignKey:UserID" json:"-"`

	Galleries []*Gallery `gorm:"many2many:gallery_assets;" json:"-"`

	IsPendingDeletion bool `gorm:"default:false;not null" json:"-"`
}
