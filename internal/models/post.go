package models

import "time"

// Post is immutable once created, except for Images while staged uploads are promoted.
type Post struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"not null;index:idx_posts_user_created,priority:1" json:"authorId"`
	Author    *User      `gorm:"foreignKey:UserID" json:"author,omitempty"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	Images    StringList `gorm:"type:text;not null" json:"images"`
	CreatedAt time.Time  `gorm:"index;index:idx_posts_user_created,priority:2" json:"createdAt"`
}

// TableName specifies the table name for GORM
func (Post) TableName() string {
	return "posts"
}
