package service

import (
	"context"
	"time"

	"murmur/internal/cache"
	"murmur/internal/fanout"
	"murmur/internal/models"
	"murmur/internal/repository"
)

// FollowService manages the directed follow graph.
type FollowService struct {
	uow     repository.UnitOfWork
	users   repository.UserRepository
	follows repository.FollowRepository
	fanout  FanoutEngine
	now     func() time.Time
}

// NewFollowService returns a new FollowService.
func NewFollowService(uow repository.UnitOfWork, users repository.UserRepository, follows repository.FollowRepository, engine FanoutEngine) *FollowService {
	return &FollowService{
		uow:     uow,
		users:   users,
		follows: follows,
		fanout:  engine,
		now:     time.Now,
	}
}

// Follow creates the edge follower -> followee and notifies the followee. Following
// someone already followed returns the existing edge and writes nothing.
func (s *FollowService) Follow(ctx context.Context, followerID, followeeID uint) (*models.Follow, error) {
	if followerID == 0 || followeeID == 0 {
		return nil, models.NewValidationError("followerId and user id are required")
	}
	if followerID == followeeID {
		return nil, models.NewValidationError("You cannot follow yourself")
	}

	var (
		result     *models.Follow
		recipients []uint
	)
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Users.GetByID(ctx, followerID); err != nil {
			return err
		}
		if _, err := repos.Users.GetByID(ctx, followeeID); err != nil {
			return err
		}

		edge := &models.Follow{
			FollowerID: followerID,
			FolloweeID: followeeID,
			CreatedAt:  s.now().UTC().Truncate(time.Microsecond),
		}
		created, existing, err := s.insertEdge(ctx, repos.Follows, edge)
		if err != nil {
			return err
		}
		if !created {
			result = existing
			return nil
		}

		recipients, err = s.fanout.HandleFollow(ctx, repos, fanout.FollowEvent{
			FollowerID: followerID,
			FolloweeID: followeeID,
			OccurredAt: edge.CreatedAt,
		})
		if err != nil {
			return models.NewPipelineError(err)
		}
		result = edge
		return nil
	})
	if err != nil {
		return nil, err
	}

	cache.InvalidateUnreadCounts(ctx, recipients...)
	return result, nil
}

// insertEdge inserts edge or returns the edge already holding the pair. An edge
// removed by a concurrent unfollow between the insert and the read is inserted again.
func (s *FollowService) insertEdge(ctx context.Context, follows repository.FollowRepository, edge *models.Follow) (bool, *models.Follow, error) {
	for attempt := 0; attempt < 2; attempt++ {
		created, err := follows.Create(ctx, edge)
		if err != nil {
			return false, nil, err
		}
		if created {
			return true, edge, nil
		}
		existing, err := follows.Get(ctx, edge.FollowerID, edge.FolloweeID)
		if err == nil {
			return false, existing, nil
		}
		if !models.HasCode(err, models.CodeNotFound) {
			return false, nil, err
		}
	}
	return false, nil, models.NewConflictError("Follow changed concurrently, please retry")
}

// Unfollow removes the edge if present. Removing a missing edge succeeds.
func (s *FollowService) Unfollow(ctx context.Context, followerID, followeeID uint) error {
	if followerID == 0 || followeeID == 0 {
		return models.NewValidationError("followerId and user id are required")
	}
	_, err := s.follows.Delete(ctx, followerID, followeeID)
	return err
}

// Followers returns the users following userID.
func (s *FollowService) Followers(ctx context.Context, userID uint, limit, offset int) ([]models.User, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.follows.Followers(ctx, userID, limit, offset)
}

// Following returns the users userID follows.
func (s *FollowService) Following(ctx context.Context, userID uint, limit, offset int) ([]models.User, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.follows.Following(ctx, userID, limit, offset)
}
