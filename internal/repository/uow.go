package repository

import (
	"context"
	"time"

	"murmur/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// Repositories groups the repositories bound to one database handle.
type Repositories struct {
	Users         UserRepository
	Posts         PostRepository
	Follows       FollowRepository
	Notifications NotificationRepository
}

// NewRepositories binds every repository to db.
func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:         NewUserRepository(db),
		Posts:         NewPostRepository(db),
		Follows:       NewFollowRepository(db),
		Notifications: NewNotificationRepository(db),
	}
}

// UnitOfWork runs fn against repositories sharing one transaction. Every write
// made through repos commits together when fn returns nil and is rolled back otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

type gormUnitOfWork struct {
	db *gorm.DB
}

// NewUnitOfWork creates a transactional UnitOfWork over db.
func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &gormUnitOfWork{db: db}
}

func (u *gormUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	span, ctx := observability.NewSpan(ctx, "unit_of_work")
	defer span.End()
	start := time.Now()

	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewRepositories(tx))
	})

	outcome := "commit"
	if err != nil {
		outcome = "rollback"
		span.SetError(err)
	}
	span.AddAttributes(attribute.String("uow.outcome", outcome))
	observability.ObserveSince(observability.UnitOfWorkDuration.WithLabelValues(outcome), start)
	return err
}
