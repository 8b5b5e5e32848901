package seed

import (
	"context"
	"testing"

	"murmur/internal/models"
	"murmur/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestSeeder_Run(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	s := NewSeeder(db, 42)
	ctx := context.Background()

	res, err := s.Run(ctx, Options{Users: 4, Posts: 6, FollowsPerUser: 3, MentionEvery: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Users)
	assert.Equal(t, 6, res.Posts)

	var users []models.User
	require.NoError(t, db.Find(&users).Error)
	require.Len(t, users, 4)
	for _, u := range users {
		require.NotNil(t, u.Handle)
		assert.Regexp(t, `^[a-z0-9_]{1,30}$`, *u.Handle)
	}
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(users[0].PasswordHash), []byte(Password)))

	var follows, selfFollows, notes int64
	require.NoError(t, db.Model(&models.Follow{}).Count(&follows).Error)
	assert.Equal(t, int64(res.Follows), follows)
	require.NoError(t, db.Model(&models.Follow{}).Where("follower_id = followee_id").Count(&selfFollows).Error)
	assert.Zero(t, selfFollows)

	// Every follow edge produced exactly one FOLLOW notification.
	require.NoError(t, db.Model(&models.Notification{}).Where("kind = ?", models.NotificationKindFollow).Count(&notes).Error)
	assert.Equal(t, follows, notes)
}

func TestSeeder_ClearAll(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	s := NewSeeder(db, 7)
	ctx := context.Background()

	_, err := s.Run(ctx, Options{Users: 3, Posts: 2, FollowsPerUser: 2})
	require.NoError(t, err)
	require.NoError(t, s.ClearAll(ctx))

	for _, model := range []any{&models.User{}, &models.Post{}, &models.Follow{}, &models.Notification{}} {
		var n int64
		require.NoError(t, db.Model(model).Count(&n).Error)
		assert.Zero(t, n, "%T", model)
	}
}
