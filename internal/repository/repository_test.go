package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"murmur/internal/models"
	"murmur/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_Integration(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "alice")
	testutil.CreateUser(t, db, "bob")

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		err := repo.Create(ctx, &models.User{Name: "Alice 2", Email: alice.Email, PasswordHash: "x"})
		assert.True(t, models.HasCode(err, models.CodeConflict), "got %v", err)
	})

	t.Run("GetByEmail", func(t *testing.T) {
		u, err := repo.GetByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, u.ID)

		_, err = repo.GetByEmail(ctx, "nobody@example.com")
		assert.True(t, models.HasCode(err, models.CodeNotFound))
	})

	t.Run("GetByHandles", func(t *testing.T) {
		users, err := repo.GetByHandles(ctx, []string{"alice", "bob", "carol"})
		require.NoError(t, err)
		assert.Len(t, users, 2)

		users, err = repo.GetByHandles(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, users)
	})

	t.Run("List", func(t *testing.T) {
		users, err := repo.List(ctx, 1, 1)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "bob", users[0].Name)
	})
}

func TestPostRepository_Integration(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author")

	first := &models.Post{UserID: author.ID, Content: "first", CreatedAt: time.Now().Add(-time.Minute)}
	require.NoError(t, repo.Create(ctx, first))
	second := &models.Post{UserID: author.ID, Content: "second"}
	require.NoError(t, repo.Create(ctx, second))

	t.Run("GetByID preloads author and empty images", func(t *testing.T) {
		p, err := repo.GetByID(ctx, first.ID)
		require.NoError(t, err)
		require.NotNil(t, p.Author)
		assert.Equal(t, "author", p.Author.Name)
		assert.NotNil(t, p.Images)
		assert.Empty(t, p.Images)
	})

	t.Run("List newest first", func(t *testing.T) {
		posts, err := repo.List(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, posts, 2)
		assert.Equal(t, second.ID, posts[0].ID)

		posts, err = repo.ListByAuthor(ctx, author.ID, 1, 1)
		require.NoError(t, err)
		require.Len(t, posts, 1)
		assert.Equal(t, first.ID, posts[0].ID)
	})

	t.Run("SetImages keeps order", func(t *testing.T) {
		urls := models.StringList{"/uploads/images/b.png", "/uploads/images/a.png"}
		require.NoError(t, repo.SetImages(ctx, second.ID, urls))

		p, err := repo.GetByID(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, urls, p.Images)

		err = repo.SetImages(ctx, 9999, urls)
		assert.True(t, models.HasCode(err, models.CodeNotFound))
	})
}

func TestFollowRepository_Integration(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	carol := testutil.CreateUser(t, db, "carol")

	created, err := repo.Create(ctx, &models.Follow{FollowerID: bob.ID, FolloweeID: alice.ID})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Create(ctx, &models.Follow{FollowerID: bob.ID, FolloweeID: alice.ID})
	require.NoError(t, err)
	assert.False(t, created, "second insert of the same pair is skipped")

	_, err = repo.Create(ctx, &models.Follow{FollowerID: carol.ID, FolloweeID: alice.ID})
	require.NoError(t, err)

	ids, err := repo.FollowerIDs(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{bob.ID, carol.ID}, ids)

	followers, err := repo.Followers(ctx, alice.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, followers, 2)

	following, err := repo.Following(ctx, bob.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, alice.ID, following[0].ID)

	f, err := repo.Get(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, f.CreatedAt.IsZero())

	removed, err := repo.Delete(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Delete(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = repo.Get(ctx, bob.ID, alice.ID)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestNotificationRepository_Integration(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	carol := testutil.CreateUser(t, db, "carol")

	batch := []models.Notification{
		{RecipientID: bob.ID, SenderID: alice.ID, Kind: models.NotificationKindPost, Message: "published a new post", EventKey: "post:1"},
		{RecipientID: carol.ID, SenderID: alice.ID, Kind: models.NotificationKindPost, Message: "published a new post", EventKey: "post:1"},
	}
	inserted, err := repo.CreateBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inserted)

	again := []models.Notification{
		{RecipientID: bob.ID, SenderID: alice.ID, Kind: models.NotificationKindPost, Message: "published a new post", EventKey: "post:1"},
		{RecipientID: bob.ID, SenderID: alice.ID, Kind: models.NotificationKindMention, Message: "mentioned you in a post", EventKey: "mention:1"},
	}
	inserted, err = repo.CreateBatch(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted, "replayed event is skipped per recipient")

	inserted, err = repo.CreateBatch(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, inserted)

	all, err := repo.List(ctx, bob.ID, models.NotificationFilterAll, 50, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NotNil(t, all[0].Sender)
	assert.Equal(t, "alice", all[0].Sender.Name)

	mentions, err := repo.List(ctx, bob.ID, models.NotificationFilterMentions, 50, 0)
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, models.NotificationKindMention, mentions[0].Kind)

	count, err := repo.UnreadCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, repo.MarkRead(ctx, mentions[0].ID))
	require.NoError(t, repo.MarkRead(ctx, mentions[0].ID))

	unread, err := repo.List(ctx, bob.ID, models.NotificationFilterUnread, 50, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, models.NotificationKindPost, unread[0].Kind)

	count, err = repo.UnreadCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = repo.GetByID(ctx, 9999)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestUnitOfWork_RollsBackEveryWrite(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	uow := NewUnitOfWork(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	boom := errors.New("fan-out failed")

	err := uow.Do(ctx, func(ctx context.Context, repos Repositories) error {
		post := &models.Post{UserID: alice.ID, Content: "hello"}
		if err := repos.Posts.Create(ctx, post); err != nil {
			return err
		}
		_, err := repos.Notifications.CreateBatch(ctx, []models.Notification{{
			RecipientID: bob.ID,
			SenderID:    alice.ID,
			Kind:        models.NotificationKindPost,
			Message:     "published a new post",
			EventKey:    fmt.Sprintf("post:%d", post.ID),
			PostID:      &post.ID,
		}})
		if err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var posts, notifications int64
	db.Model(&models.Post{}).Count(&posts)
	db.Model(&models.Notification{}).Count(&notifications)
	assert.Zero(t, posts)
	assert.Zero(t, notifications)
}

func TestUnitOfWork_CommitsTogether(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	uow := NewUnitOfWork(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")

	err := uow.Do(ctx, func(ctx context.Context, repos Repositories) error {
		if _, err := repos.Follows.Create(ctx, &models.Follow{FollowerID: bob.ID, FolloweeID: alice.ID}); err != nil {
			return err
		}
		_, err := repos.Notifications.CreateBatch(ctx, []models.Notification{{
			RecipientID: alice.ID,
			SenderID:    bob.ID,
			Kind:        models.NotificationKindFollow,
			Message:     "started following you",
			EventKey:    "follow:test",
		}})
		return err
	})
	require.NoError(t, err)

	var follows, notifications int64
	db.Model(&models.Follow{}).Count(&follows)
	db.Model(&models.Notification{}).Count(&notifications)
	assert.Equal(t, int64(1), follows)
	assert.Equal(t, int64(1), notifications)
}
