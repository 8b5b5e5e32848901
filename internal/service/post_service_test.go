package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"murmur/internal/fanout"
	"murmur/internal/media"
	"murmur/internal/models"
	"murmur/internal/repository"
	"murmur/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePost_NotifiesExactlyTheFollowers(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	x := testutil.CreateUser(t, env.db, "x")
	outsider := testutil.CreateUser(t, env.db, "outsider")
	var followerIDs []uint
	for _, name := range []string{"f1", "f2", "f3"} {
		f := testutil.CreateUser(t, env.db, name)
		_, err := env.follows.Follow(ctx, f.ID, x.ID)
		require.NoError(t, err)
		followerIDs = append(followerIDs, f.ID)
	}

	post, err := env.posts.CreatePost(ctx, CreatePostInput{AuthorID: x.ID, Content: "  hello  "})
	require.NoError(t, err)
	assert.Equal(t, "hello", post.Content)
	assert.NotNil(t, post.Images)
	require.NotNil(t, post.Author)
	assert.Equal(t, x.ID, post.Author.ID)

	var notes []models.Notification
	require.NoError(t, env.db.Where("kind = ?", models.NotificationKindPost).Find(&notes).Error)
	require.Len(t, notes, 3)
	var recipients []uint
	for _, n := range notes {
		recipients = append(recipients, n.RecipientID)
		require.NotNil(t, n.PostID)
		assert.Equal(t, post.ID, *n.PostID)
		assert.Equal(t, x.ID, n.SenderID)
	}
	assert.ElementsMatch(t, followerIDs, recipients)
	assert.Zero(t, env.count(t, &models.Notification{}, "recipient_id = ?", outsider.ID))
}

func TestCreatePost_AllOrNothing(t *testing.T) {
	stub := &fanoutStub{engine: fanout.NewEngine()}
	stub.handlePostCreated = func(ctx context.Context, repos repository.Repositories, ev fanout.PostCreatedEvent) ([]uint, error) {
		audience, err := stub.engine.HandlePostCreated(ctx, repos, ev)
		require.NoError(t, err)
		require.NotEmpty(t, audience)
		return nil, errors.New("crash before commit")
	}
	env := newTestEnv(t, stub, nil)
	ctx := context.Background()

	x := testutil.CreateUser(t, env.db, "x")
	f := testutil.CreateUser(t, env.db, "f")
	require.NoError(t, env.db.Create(&models.Follow{FollowerID: f.ID, FolloweeID: x.ID}).Error)

	_, err := env.posts.CreatePost(ctx, CreatePostInput{AuthorID: x.ID, Content: "hello"})
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.CodePartialPipelineFailure))

	assert.Zero(t, env.count(t, &models.Post{}, ""))
	assert.Zero(t, env.count(t, &models.Notification{}, ""))
}

func TestCreatePost_Validation(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	x := testutil.CreateUser(t, env.db, "x")

	tests := []struct {
		name string
		in   CreatePostInput
		code string
	}{
		{"missing author", CreatePostInput{Content: "hi"}, models.CodeValidation},
		{"blank content", CreatePostInput{AuthorID: x.ID, Content: "   "}, models.CodeValidation},
		{"too long", CreatePostInput{AuthorID: x.ID, Content: string(bytes.Repeat([]byte("a"), maxPostLength+1))}, models.CodeValidation},
		{"bad image reference", CreatePostInput{AuthorID: x.ID, Content: "hi", Images: []string{"../../etc/passwd"}}, models.CodeValidation},
		{"unknown author", CreatePostInput{AuthorID: 999, Content: "hi"}, models.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.posts.CreatePost(ctx, tt.in)
			assert.True(t, models.HasCode(err, tt.code), "got %v", err)
		})
	}
	assert.Zero(t, env.count(t, &models.Post{}, ""))
}

func stagePNG(t *testing.T, p *media.Pipeline, name string) *models.StagedImage {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	img, err := p.Stage(context.Background(), media.StageInput{
		Source:       "test",
		Content:      buf.Bytes(),
		DeclaredMIME: "image/png",
		DeclaredSize: int64(buf.Len()),
		OriginalName: name,
	})
	require.NoError(t, err)
	return img
}

func newTestMedia(t *testing.T) (*media.Pipeline, *media.LocalStore) {
	root := t.TempDir()
	store := media.NewLocalStore(filepath.Join(root, "images"), "/uploads/images")
	return media.NewPipeline(media.Options{
		QuarantineDir: filepath.Join(root, "quarantine"),
		Store:         store,
	}), store
}

func TestCreatePost_PromotesImagesInOrder(t *testing.T) {
	pipeline, store := newTestMedia(t)
	env := newTestEnv(t, nil, pipeline)
	ctx := context.Background()
	x := testutil.CreateUser(t, env.db, "x")

	a := stagePNG(t, pipeline, "a.png")
	b := stagePNG(t, pipeline, "b.png")

	post, err := env.posts.CreatePost(ctx, CreatePostInput{
		AuthorID: x.ID,
		Content:  "pics",
		Images:   []string{pipeline.PublicURL(b.Filename), a.Filename},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StringList{"/uploads/images/" + b.Filename, "/uploads/images/" + a.Filename}, post.Images)

	for _, img := range []*models.StagedImage{a, b} {
		assert.NoFileExists(t, img.Path)
		assert.FileExists(t, store.Path(img.Filename))
	}

	stored, err := env.posts.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.Images, stored.Images)
}

func TestCreatePost_UnknownImageSavesNothing(t *testing.T) {
	pipeline, store := newTestMedia(t)
	env := newTestEnv(t, nil, pipeline)
	x := testutil.CreateUser(t, env.db, "x")
	a := stagePNG(t, pipeline, "a.png")

	_, err := env.posts.CreatePost(context.Background(), CreatePostInput{
		AuthorID: x.ID,
		Content:  "pics",
		Images:   []string{a.Filename, "0123456789abcdef.png"},
	})
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.CodeValidation))
	assert.Zero(t, env.count(t, &models.Post{}, ""))
	assert.FileExists(t, a.Path)
	assert.NoFileExists(t, store.Path(a.Filename))
}

type failingSetImages struct {
	repository.PostRepository
}

func (failingSetImages) SetImages(context.Context, uint, models.StringList) error {
	return models.NewStorageError(errors.New("write failed"))
}

func TestCreatePost_FailureAfterPromotionRevertsImages(t *testing.T) {
	pipeline, store := newTestMedia(t)
	env := newTestEnv(t, nil, pipeline)
	inner := env.uow
	env.posts.uow = uowFunc(func(ctx context.Context, fn func(context.Context, repository.Repositories) error) error {
		return inner.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
			repos.Posts = failingSetImages{repos.Posts}
			return fn(ctx, repos)
		})
	})
	x := testutil.CreateUser(t, env.db, "x")
	a := stagePNG(t, pipeline, "a.png")

	_, err := env.posts.CreatePost(context.Background(), CreatePostInput{AuthorID: x.ID, Content: "pics", Images: []string{a.Filename}})
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.CodeStorageFailure))
	assert.Zero(t, env.count(t, &models.Post{}, ""))

	_, statErr := os.Stat(a.Path)
	assert.NoError(t, statErr, "image returned to quarantine")
	assert.NoFileExists(t, store.Path(a.Filename))
}

func TestStagedFilenames(t *testing.T) {
	names, err := stagedFilenames([]string{"/uploads/images/0123456789abcdef.png", " fedcba9876543210.jpg "})
	require.NoError(t, err)
	assert.Equal(t, []string{"0123456789abcdef.png", "fedcba9876543210.jpg"}, names)

	_, err = stagedFilenames([]string{"0123456789abcdef.png", "x/0123456789abcdef.png"})
	assert.True(t, models.HasCode(err, models.CodeValidation))

	_, err = stagedFilenames(make([]string, maxImagesPerPost+1))
	assert.True(t, models.HasCode(err, models.CodeValidation))
}

// Mirrors the scenario: u1 posts, u2 follows u1, u1 posts again.
func TestFeedDirection(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	u1 := testutil.CreateUser(t, env.db, "u1")
	u2 := testutil.CreateUser(t, env.db, "u2")

	_, err := env.posts.CreatePost(ctx, CreatePostInput{AuthorID: u1.ID, Content: "hello"})
	require.NoError(t, err)
	posts, err := env.posts.ListPosts(ctx, 50, 0)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Empty(t, posts[0].Images)

	_, err = env.follows.Follow(ctx, u2.ID, u1.ID)
	require.NoError(t, err)
	u1Notes, err := env.notifications.List(ctx, u1.ID, "all", 0, 0)
	require.NoError(t, err)
	require.Len(t, u1Notes, 1)
	assert.Equal(t, models.NotificationKindFollow, u1Notes[0].Kind)
	assert.Equal(t, u2.ID, u1Notes[0].SenderID)

	_, err = env.posts.CreatePost(ctx, CreatePostInput{AuthorID: u1.ID, Content: "again"})
	require.NoError(t, err)
	u1Notes, err = env.notifications.List(ctx, u1.ID, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, u1Notes, 1, "authors are not notified of their own posts")

	u2Notes, err := env.notifications.List(ctx, u2.ID, "all", 0, 0)
	require.NoError(t, err)
	require.Len(t, u2Notes, 1, "only the post made after following")
	assert.Equal(t, models.NotificationKindPost, u2Notes[0].Kind)
}
