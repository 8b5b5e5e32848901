package models

import "time"

// NotificationKind identifies what triggered a notification.
type NotificationKind string

const (
	// NotificationKindFollow is sent to the followee when a new follow edge is created.
	NotificationKindFollow NotificationKind = "FOLLOW"
	// NotificationKindPost is sent to each follower of a post's author.
	NotificationKindPost NotificationKind = "POST"
	// NotificationKindMention is sent to users whose @handle appears in a post.
	NotificationKindMention NotificationKind = "MENTION"
)

// NotificationFilter selects a subset of a user's notifications.
type NotificationFilter string

const (
	NotificationFilterAll      NotificationFilter = "all"
	NotificationFilterUnread   NotificationFilter = "unread"
	NotificationFilterMentions NotificationFilter = "mentions"
)

// ParseNotificationFilter maps a query value to a filter; empty means all.
func ParseNotificationFilter(v string) (NotificationFilter, bool) {
	switch NotificationFilter(v) {
	case "", NotificationFilterAll:
		return NotificationFilterAll, true
	case NotificationFilterUnread:
		return NotificationFilterUnread, true
	case NotificationFilterMentions:
		return NotificationFilterMentions, true
	}
	return "", false
}

// Notification is a per-recipient record of a fan-out event.
// (EventKey, RecipientID) is unique so an event reaches each recipient once.
type Notification struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	RecipientID uint             `gorm:"not null;index:idx_notifications_recipient_read,priority:1;uniqueIndex:idx_notifications_event_recipient,priority:2" json:"recipientId"`
	SenderID    uint             `gorm:"not null" json:"senderId"`
	Sender      *User            `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Kind        NotificationKind `gorm:"type:varchar(16);not null" json:"kind"`
	Message     string           `gorm:"size:255;not null" json:"message"`
	PostID      *uint            `gorm:"index" json:"postId,omitempty"`
	Read        bool             `gorm:"not null;default:false;index:idx_notifications_recipient_read,priority:2" json:"read"`
	EventKey    string           `gorm:"size:128;not null;uniqueIndex:idx_notifications_event_recipient,priority:1" json:"-"`
	CreatedAt   time.Time        `gorm:"index" json:"createdAt"`
}

// TableName specifies the table name for GORM
func (Notification) TableName() string {
	return "notifications"
}
