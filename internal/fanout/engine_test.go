package fanout

import (
	"context"
	"errors"
	"testing"
	"time"

	"murmur/internal/models"
	"murmur/internal/repository"
	"murmur/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func follow(t *testing.T, db *gorm.DB, follower, followee *models.User) {
	t.Helper()
	require.NoError(t, db.Create(&models.Follow{FollowerID: follower.ID, FolloweeID: followee.ID}).Error)
}

func notificationsFor(t *testing.T, db *gorm.DB, recipientID uint) []models.Notification {
	t.Helper()
	var out []models.Notification
	require.NoError(t, db.Where("recipient_id = ?", recipientID).Order("id").Find(&out).Error)
	return out
}

func TestHandlePostCreated_NotifiesEachFollowerOnce(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repos := repository.NewRepositories(db)
	ctx := context.Background()

	author := testutil.CreateUser(t, db, "author")
	outsider := testutil.CreateUser(t, db, "outsider")
	var followers []*models.User
	for _, name := range []string{"f1", "f2", "f3"} {
		f := testutil.CreateUser(t, db, name)
		follow(t, db, f, author)
		followers = append(followers, f)
	}

	post := &models.Post{UserID: author.ID, Content: "hello"}
	require.NoError(t, repos.Posts.Create(ctx, post))

	engine := NewEngine()
	ev := PostCreatedEvent{AuthorID: author.ID, PostID: post.ID, Content: post.Content}
	got, err := engine.HandlePostCreated(ctx, repos, ev)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{followers[0].ID, followers[1].ID, followers[2].ID}, got)

	for _, f := range followers {
		ns := notificationsFor(t, db, f.ID)
		require.Len(t, ns, 1)
		assert.Equal(t, models.NotificationKindPost, ns[0].Kind)
		assert.Equal(t, author.ID, ns[0].SenderID)
		require.NotNil(t, ns[0].PostID)
		assert.Equal(t, post.ID, *ns[0].PostID)
	}
	assert.Empty(t, notificationsFor(t, db, outsider.ID))
	assert.Empty(t, notificationsFor(t, db, author.ID))

	// Replaying the event writes nothing new.
	_, err = engine.HandlePostCreated(ctx, repos, ev)
	require.NoError(t, err)
	var total int64
	db.Model(&models.Notification{}).Count(&total)
	assert.Equal(t, int64(3), total)
}

func TestHandlePostCreated_Mentions(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repos := repository.NewRepositories(db)
	ctx := context.Background()

	author := testutil.CreateUser(t, db, "author")
	bob := testutil.CreateUser(t, db, "bob")
	carol := testutil.CreateUser(t, db, "carol")
	follow(t, db, carol, author)

	post := &models.Post{UserID: author.ID, Content: "hi @Bob and @carol, cc @author @ghost"}
	require.NoError(t, repos.Posts.Create(ctx, post))

	got, err := NewEngine().HandlePostCreated(ctx, repos, PostCreatedEvent{AuthorID: author.ID, PostID: post.ID, Content: post.Content})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{bob.ID, carol.ID}, got)

	bobs := notificationsFor(t, db, bob.ID)
	require.Len(t, bobs, 1)
	assert.Equal(t, models.NotificationKindMention, bobs[0].Kind)

	carols := notificationsFor(t, db, carol.ID)
	require.Len(t, carols, 2, "a mentioned follower receives both kinds")
	assert.Empty(t, notificationsFor(t, db, author.ID), "self-mentions are ignored")
}

func TestHandleFollow(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repos := repository.NewRepositories(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")

	ev := FollowEvent{FollowerID: bob.ID, FolloweeID: alice.ID, OccurredAt: time.Unix(0, 42)}
	got, err := NewEngine().HandleFollow(ctx, repos, ev)
	require.NoError(t, err)
	assert.Equal(t, []uint{alice.ID}, got)

	ns := notificationsFor(t, db, alice.ID)
	require.Len(t, ns, 1)
	assert.Equal(t, models.NotificationKindFollow, ns[0].Kind)
	assert.Equal(t, bob.ID, ns[0].SenderID)
	assert.Equal(t, MessageFollow, ns[0].Message)
	assert.Nil(t, ns[0].PostID)
	assert.Empty(t, notificationsFor(t, db, bob.ID), "the follower is not notified")
}

func TestFollowEvent_KeyDistinguishesEdgeInstances(t *testing.T) {
	a := FollowEvent{FollowerID: 1, FolloweeID: 2, OccurredAt: time.Unix(100, 0)}
	b := FollowEvent{FollowerID: 1, FolloweeID: 2, OccurredAt: time.Unix(200, 0)}
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, "follow:1:2:100000000000", a.Key())
	assert.Equal(t, "post:9", PostCreatedEvent{PostID: 9}.Key())
	assert.Equal(t, "mention:9", PostCreatedEvent{PostID: 9}.MentionKey())
}

type failingNotifications struct {
	repository.NotificationRepository
}

func (failingNotifications) CreateBatch(context.Context, []models.Notification) (int64, error) {
	return 0, models.NewStorageError(errors.New("disk full"))
}

func TestHandlePostCreated_FailureIsPipelineError(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repos := repository.NewRepositories(db)
	repos.Notifications = failingNotifications{repos.Notifications}

	author := testutil.CreateUser(t, db, "author")
	_, err := NewEngine().HandlePostCreated(context.Background(), repos, PostCreatedEvent{AuthorID: author.ID, PostID: 1})
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.CodePartialPipelineFailure))
}

func TestExtractMentions(t *testing.T) {
	tests := []struct {
		content string
		want    []string
	}{
		{"hello", nil},
		{"@Alice hi", []string{"alice"}},
		{"hey @bob, @BOB and @carol_1!", []string{"bob", "carol_1"}},
		{"mail me at bob@example.com", nil},
		{"@this_handle_is_way_too_long_to_be_valid_ok", nil},
	}
	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractMentions(tt.content))
		})
	}
}
