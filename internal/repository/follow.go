package repository

import (
	"context"
	"errors"

	"murmur/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FollowRepository defines persistence operations for follow edges.
type FollowRepository interface {
	// Create inserts the edge unless the pair already exists. created is false
	// when an existing edge was left untouched.
	Create(ctx context.Context, follow *models.Follow) (created bool, err error)
	Get(ctx context.Context, followerID, followeeID uint) (*models.Follow, error)
	Delete(ctx context.Context, followerID, followeeID uint) (bool, error)
	FollowerIDs(ctx context.Context, followeeID uint) ([]uint, error)
	Followers(ctx context.Context, userID uint, limit, offset int) ([]models.User, error)
	Following(ctx context.Context, userID uint, limit, offset int) ([]models.User, error)
}

type followRepository struct {
	db *gorm.DB
}

// NewFollowRepository creates a new follow repository
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db}
}

func (r *followRepository) Create(ctx context.Context, follow *models.Follow) (bool, error) {
	res := r.db.WithContext(ctx).
		Omit("Follower", "Followee").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(follow)
	if res.Error != nil {
		return false, models.NewStorageError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *followRepository) Get(ctx context.Context, followerID, followeeID uint) (*models.Follow, error) {
	var follow models.Follow
	err := r.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		First(&follow).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Follow", followeeID)
		}
		return nil, models.NewStorageError(err)
	}
	return &follow, nil
}

// Delete removes the edge and reports whether one existed.
func (r *followRepository) Delete(ctx context.Context, followerID, followeeID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Delete(&models.Follow{})
	if res.Error != nil {
		return false, models.NewStorageError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// FollowerIDs returns every follower of followeeID in ascending id order.
func (r *followRepository) FollowerIDs(ctx context.Context, followeeID uint) ([]uint, error) {
	ids := []uint{}
	err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("followee_id = ?", followeeID).
		Order("follower_id ASC").
		Pluck("follower_id", &ids).Error
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	return ids, nil
}

func (r *followRepository) Followers(ctx context.Context, userID uint, limit, offset int) ([]models.User, error) {
	return r.listUsers(ctx, "follows.follower_id", "follows.followee_id", userID, limit, offset)
}

func (r *followRepository) Following(ctx context.Context, userID uint, limit, offset int) ([]models.User, error) {
	return r.listUsers(ctx, "follows.followee_id", "follows.follower_id", userID, limit, offset)
}

func (r *followRepository) listUsers(ctx context.Context, joinCol, whereCol string, userID uint, limit, offset int) ([]models.User, error) {
	users := []models.User{}
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Joins("JOIN follows ON "+joinCol+" = users.id").
		Where(whereCol+" = ?", userID).
		Order("follows.created_at DESC, follows.id DESC").
		Limit(limit).
		Offset(offset).
		Find(&users).Error
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	return users, nil
}
