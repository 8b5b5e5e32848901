// Package models contains data structures for the application's domain models.
package models

import "time"

// User represents an account in the social graph.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Email        string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Handle       *string   `gorm:"size:30;uniqueIndex" json:"handle,omitempty"`
	Bio          string    `gorm:"type:text" json:"bio"`
	AvatarURL    string    `json:"avatarUrl"`
	BannerURL    string    `json:"bannerUrl"`
	Location     string    `gorm:"size:100" json:"location"`
	Website      string    `gorm:"size:255" json:"website"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}
