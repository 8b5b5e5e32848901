package service

import (
	"context"
	"testing"

	"murmur/internal/fanout"
	"murmur/internal/models"
	"murmur/internal/repository"
	"murmur/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db            *gorm.DB
	uow           repository.UnitOfWork
	repos         repository.Repositories
	follows       *FollowService
	posts         *PostService
	notifications *NotificationService
}

func newTestEnv(t *testing.T, engine FanoutEngine, images ImagePromoter) *testEnv {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	if engine == nil {
		engine = fanout.NewEngine()
	}
	repos := repository.NewRepositories(db)
	uow := repository.NewUnitOfWork(db)
	return &testEnv{
		db:            db,
		uow:           uow,
		repos:         repos,
		follows:       NewFollowService(uow, repos.Users, repos.Follows, engine),
		posts:         NewPostService(uow, repos.Posts, engine, images),
		notifications: NewNotificationService(repos.Users, repos.Notifications),
	}
}

func (e *testEnv) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := e.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

// fanoutStub delegates to the real engine unless a hook is set.
type fanoutStub struct {
	engine            *fanout.Engine
	handleFollowFn    func(context.Context, repository.Repositories, fanout.FollowEvent) ([]uint, error)
	handlePostCreated func(context.Context, repository.Repositories, fanout.PostCreatedEvent) ([]uint, error)
}

func (s *fanoutStub) HandleFollow(ctx context.Context, repos repository.Repositories, ev fanout.FollowEvent) ([]uint, error) {
	if s.handleFollowFn != nil {
		return s.handleFollowFn(ctx, repos, ev)
	}
	return s.engine.HandleFollow(ctx, repos, ev)
}

func (s *fanoutStub) HandlePostCreated(ctx context.Context, repos repository.Repositories, ev fanout.PostCreatedEvent) ([]uint, error) {
	if s.handlePostCreated != nil {
		return s.handlePostCreated(ctx, repos, ev)
	}
	return s.engine.HandlePostCreated(ctx, repos, ev)
}

// uowFunc lets a test rewrite the repositories handed to the closure.
type uowFunc func(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error

func (f uowFunc) Do(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return f(ctx, fn)
}

type userRepoStub struct {
	createFn       func(context.Context, *models.User) error
	getByIDFn      func(context.Context, uint) (*models.User, error)
	getByEmailFn   func(context.Context, string) (*models.User, error)
	getByHandlesFn func(context.Context, []string) ([]models.User, error)
	listFn         func(context.Context, int, int) ([]models.User, error)
}

func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}
func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *userRepoStub) GetByHandles(ctx context.Context, handles []string) ([]models.User, error) {
	return s.getByHandlesFn(ctx, handles)
}
func (s *userRepoStub) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.listFn(ctx, limit, offset)
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		createFn:  func(context.Context, *models.User) error { return nil },
		getByIDFn: func(_ context.Context, id uint) (*models.User, error) { return &models.User{ID: id}, nil },
		getByEmailFn: func(_ context.Context, email string) (*models.User, error) {
			return nil, models.NewNotFoundError("User", email)
		},
		getByHandlesFn: func(context.Context, []string) ([]models.User, error) { return nil, nil },
		listFn:         func(context.Context, int, int) ([]models.User, error) { return nil, nil },
	}
}
