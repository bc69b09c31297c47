package models

import "gorm.io/gorm"

// User is a photographer account. Gallery clients never get a row
// here; they reach shared galleries through share tokens.
type User struct {
	gorm.Model
	Username string `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Password string `gorm:"not null" json:"-"`
}
