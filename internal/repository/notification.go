package repository

import (
	"context"
	"errors"

	"murmur/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const notificationBatchSize = 500

// NotificationRepository defines persistence operations for notifications.
type NotificationRepository interface {
	// CreateBatch inserts notifications, skipping any whose (event key, recipient)
	// pair already exists, and returns how many rows were new.
	CreateBatch(ctx context.Context, notifications []models.Notification) (int64, error)
	GetByID(ctx context.Context, id uint) (*models.Notification, error)
	List(ctx context.Context, recipientID uint, filter models.NotificationFilter, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id uint) error
	UnreadCount(ctx context.Context, recipientID uint) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) CreateBatch(ctx context.Context, notifications []models.Notification) (int64, error) {
	if len(notifications) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Omit("Sender").
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&notifications, notificationBatchSize)
	if res.Error != nil {
		return 0, models.NewStorageError(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id uint) (*models.Notification, error) {
	var n models.Notification
	if err := r.db.WithContext(ctx).Preload("Sender").First(&n, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Notification", id)
		}
		return nil, models.NewStorageError(err)
	}
	return &n, nil
}

// List returns the recipient's notifications newest first.
func (r *notificationRepository) List(ctx context.Context, recipientID uint, filter models.NotificationFilter, limit, offset int) ([]models.Notification, error) {
	q := r.db.WithContext(ctx).
		Preload("Sender").
		Where("recipient_id = ?", recipientID)

	switch filter {
	case models.NotificationFilterUnread:
		q = q.Where("read = ?", false)
	case models.NotificationFilterMentions:
		q = q.Where("kind = ?", models.NotificationKindMention)
	}

	notifications := []models.Notification{}
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&notifications).Error; err != nil {
		return nil, models.NewStorageError(err)
	}
	return notifications, nil
}

// MarkRead sets the read flag. Marking an already-read notification is a no-op.
func (r *notificationRepository) MarkRead(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ?", id).
		Update("read", true).Error
	if err != nil {
		return models.NewStorageError(err)
	}
	return nil
}

func (r *notificationRepository) UnreadCount(ctx context.Context, recipientID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Count(&count).Error
	if err != nil {
		return 0, models.NewStorageError(err)
	}
	return count, nil
}
