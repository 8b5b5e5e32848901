package service

import (
	"context"

	"murmur/internal/cache"
	"murmur/internal/models"
	"murmur/internal/repository"
)

const maxNotificationsPerPage = 100

// NotificationService reads and acknowledges notifications.
type NotificationService struct {
	users         repository.UserRepository
	notifications repository.NotificationRepository
}

// NewNotificationService returns a new NotificationService.
func NewNotificationService(users repository.UserRepository, notifications repository.NotificationRepository) *NotificationService {
	return &NotificationService{users: users, notifications: notifications}
}

// List returns userID's notifications newest first. filter is all, unread or
// mentions; empty means all.
func (s *NotificationService) List(ctx context.Context, userID uint, filter string, limit, offset int) ([]models.Notification, error) {
	f, ok := models.ParseNotificationFilter(filter)
	if !ok {
		return nil, models.NewValidationError("filter must be one of all, unread, mentions")
	}
	if limit <= 0 || limit > maxNotificationsPerPage {
		limit = maxNotificationsPerPage
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.notifications.List(ctx, userID, f, limit, offset)
}

// MarkRead flags a notification as read and returns it. Repeating the call is harmless.
func (s *NotificationService) MarkRead(ctx context.Context, id uint) (*models.Notification, error) {
	n, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.Read {
		return n, nil
	}
	if err := s.notifications.MarkRead(ctx, id); err != nil {
		return nil, err
	}
	n.Read = true
	cache.InvalidateUnreadCounts(ctx, n.RecipientID)
	return n, nil
}

// UnreadCount returns how many of userID's notifications are unread, served from
// the cache when possible.
func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return 0, err
	}
	var count int64
	err := cache.Aside(ctx, cache.UnreadCountKey(userID), &count, cache.UnreadCountTTL, func() error {
		var err error
		count, err = s.notifications.UnreadCount(ctx, userID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
