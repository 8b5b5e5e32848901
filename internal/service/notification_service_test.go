package service

import (
	"context"
	"testing"

	"murmur/internal/cache"
	"murmur/internal/models"
	"murmur/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(rdb)
	t.Cleanup(func() {
		cache.SetClient(nil)
		_ = rdb.Close()
	})
	return mr
}

func TestNotificationService_Filters(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	author := testutil.CreateUser(t, env.db, "author")
	bob := testutil.CreateUser(t, env.db, "bob")

	_, err := env.follows.Follow(ctx, bob.ID, author.ID)
	require.NoError(t, err)
	_, err = env.posts.CreatePost(ctx, CreatePostInput{AuthorID: author.ID, Content: "plain"})
	require.NoError(t, err)
	_, err = env.posts.CreatePost(ctx, CreatePostInput{AuthorID: author.ID, Content: "hey @bob"})
	require.NoError(t, err)

	all, err := env.notifications.List(ctx, bob.ID, "all", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.True(t, !all[0].CreatedAt.Before(all[len(all)-1].CreatedAt), "newest first")

	mentions, err := env.notifications.List(ctx, bob.ID, "mentions", 0, 0)
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, models.NotificationKindMention, mentions[0].Kind)

	_, err = env.notifications.MarkRead(ctx, mentions[0].ID)
	require.NoError(t, err)
	unread, err := env.notifications.List(ctx, bob.ID, "unread", 0, 0)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	_, err = env.notifications.List(ctx, bob.ID, "starred", 0, 0)
	assert.True(t, models.HasCode(err, models.CodeValidation))

	_, err = env.notifications.List(ctx, 999, "all", 0, 0)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestNotificationService_MarkReadIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	a := testutil.CreateUser(t, env.db, "a")
	b := testutil.CreateUser(t, env.db, "b")
	_, err := env.follows.Follow(ctx, a.ID, b.ID)
	require.NoError(t, err)

	notes, err := env.notifications.List(ctx, b.ID, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	first, err := env.notifications.MarkRead(ctx, notes[0].ID)
	require.NoError(t, err)
	assert.True(t, first.Read)
	second, err := env.notifications.MarkRead(ctx, notes[0].ID)
	require.NoError(t, err)
	assert.True(t, second.Read)

	_, err = env.notifications.MarkRead(ctx, 999)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestNotificationService_UnreadCountCache(t *testing.T) {
	mr := withMiniredis(t)
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	a := testutil.CreateUser(t, env.db, "a")
	b := testutil.CreateUser(t, env.db, "b")
	c := testutil.CreateUser(t, env.db, "c")

	count, err := env.notifications.UnreadCount(ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.True(t, mr.Exists(cache.UnreadCountKey(b.ID)))

	_, err = env.follows.Follow(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, mr.Exists(cache.UnreadCountKey(b.ID)), "follow invalidates the recipient's counter")

	count, err = env.notifications.UnreadCount(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = env.follows.Follow(ctx, c.ID, b.ID)
	require.NoError(t, err)
	count, err = env.notifications.UnreadCount(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	notes, err := env.notifications.List(ctx, b.ID, "unread", 0, 0)
	require.NoError(t, err)
	_, err = env.notifications.MarkRead(ctx, notes[0].ID)
	require.NoError(t, err)

	count, err = env.notifications.UnreadCount(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
