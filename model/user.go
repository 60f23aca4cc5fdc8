package model

import "time"

// User is an identity. Email is stored lower-cased, which makes the unique
// index case-insensitive.
type User struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string     `gorm:"uniqueIndex;size:254;not null" json:"email"`
	FirstName    string     `gorm:"size:150;index:idx_user_first_name" json:"first_name"`
	LastName     string     `gorm:"size:150;index:idx_user_last_name" json:"last_name"`
	PasswordHash string     `gorm:"size:64;not null" json:"-"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"-"`
	LastLoginAt  *time.Time `json:"-"`
}
