// Package seed fills a development database with users, follow edges and posts.
// Everything goes through the services so fan-out runs exactly as in production.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"murmur/internal/fanout"
	"murmur/internal/middleware"
	"murmur/internal/models"
	"murmur/internal/repository"
	"murmur/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Password is shared by every seeded account.
const Password = "password123"

// Options sizes a seed run.
type Options struct {
	Users          int
	Posts          int
	FollowsPerUser int
	// MentionEvery makes every nth post mention a random user. Zero disables mentions.
	MentionEvery int
}

// Result counts what a run created.
type Result struct {
	Users   int
	Follows int
	Posts   int
}

type Seeder struct {
	db      *gorm.DB
	users   *service.UserService
	follows *service.FollowService
	posts   *service.PostService
	faker   *gofakeit.Faker
}

// NewSeeder binds a seeder to db. The same seed reproduces the same data.
func NewSeeder(db *gorm.DB, seed int64) *Seeder {
	repos := repository.NewRepositories(db)
	uow := repository.NewUnitOfWork(db)
	engine := fanout.NewEngine()
	return &Seeder{
		db:      db,
		users:   service.NewUserService(repos.Users),
		follows: service.NewFollowService(uow, repos.Users, repos.Follows, engine),
		posts:   service.NewPostService(uow, repos.Posts, engine, nil),
		faker:   gofakeit.New(seed),
	}
}

// ClearAll removes every row the seeder can create, children first.
func (s *Seeder) ClearAll(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&models.Notification{}, &models.Post{}, &models.Follow{}, &models.User{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return fmt.Errorf("clear %T: %w", model, err)
			}
		}
		return nil
	})
}

// Run creates users, then follow edges, then posts.
func (s *Seeder) Run(ctx context.Context, opts Options) (Result, error) {
	var res Result

	users := make([]*models.User, 0, opts.Users)
	for i := 0; i < opts.Users; i++ {
		handle := s.handle(i)
		user, err := s.users.Register(ctx, service.RegisterInput{
			Name:     s.faker.Name(),
			Email:    handle + "@example.com",
			Handle:   handle,
			Password: Password,
			Bio:      s.faker.HipsterSentence(8),
		})
		if err != nil {
			return res, fmt.Errorf("register %s: %w", handle, err)
		}
		users = append(users, user)
	}
	res.Users = len(users)
	if len(users) < 2 {
		return res, nil
	}

	for _, follower := range users {
		for j := 0; j < opts.FollowsPerUser; j++ {
			followee := users[s.faker.Number(0, len(users)-1)]
			if followee.ID == follower.ID {
				continue
			}
			if _, err := s.follows.Follow(ctx, follower.ID, followee.ID); err != nil {
				return res, fmt.Errorf("follow %d -> %d: %w", follower.ID, followee.ID, err)
			}
		}
	}
	var follows int64
	if err := s.db.WithContext(ctx).Model(&models.Follow{}).Count(&follows).Error; err != nil {
		return res, err
	}
	res.Follows = int(follows)

	for i := 0; i < opts.Posts; i++ {
		author := users[s.faker.Number(0, len(users)-1)]
		content := s.faker.Sentence(12)
		if opts.MentionEvery > 0 && i%opts.MentionEvery == 0 {
			mentioned := users[s.faker.Number(0, len(users)-1)]
			content = fmt.Sprintf("%s @%s", content, *mentioned.Handle)
		}
		if _, err := s.posts.CreatePost(ctx, service.CreatePostInput{AuthorID: author.ID, Content: content}); err != nil {
			return res, fmt.Errorf("post by %d: %w", author.ID, err)
		}
		res.Posts++
	}

	middleware.Logger.InfoContext(ctx, "seed complete",
		slog.Int("users", res.Users),
		slog.Int("follows", res.Follows),
		slog.Int("posts", res.Posts),
	)
	return res, nil
}

// handle derives a mention-safe handle from a fake username. The index keeps it unique.
func (s *Seeder) handle(i int) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s.faker.Username()) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
		if b.Len() == 20 {
			break
		}
	}
	return fmt.Sprintf("%s_%d", b.String(), i)
}
