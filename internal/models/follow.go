package models

import "time"

// Follow is a directed edge: FollowerID follows FolloweeID.
type Follow struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	FollowerID uint      `gorm:"not null;uniqueIndex:idx_follows_pair,priority:1" json:"followerId"`
	FolloweeID uint      `gorm:"not null;uniqueIndex:idx_follows_pair,priority:2;index;check:chk_follows_not_self,follower_id <> followee_id" json:"followeeId"`
	CreatedAt  time.Time `json:"createdAt"`

	Follower *User `gorm:"foreignKey:FollowerID" json:"-"`
	Followee *User `gorm:"foreignKey:FolloweeID" json:"-"`
}

// TableName specifies the table name for GORM
func (Follow) TableName() string {
	return "follows"
}
