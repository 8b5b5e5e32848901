package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"murmur/internal/cache"
	"murmur/internal/fanout"
	"murmur/internal/media"
	"murmur/internal/models"
	"murmur/internal/repository"
)

const (
	maxPostLength    = 5000
	maxImagesPerPost = 4
)

// PostService creates and reads posts.
type PostService struct {
	uow    repository.UnitOfWork
	posts  repository.PostRepository
	fanout FanoutEngine
	images ImagePromoter
}

// CreatePostInput is a new post. Images are staged filenames or the URLs
// returned by the upload endpoint.
type CreatePostInput struct {
	AuthorID uint
	Content  string
	Images   []string
}

// NewPostService returns a new PostService.
func NewPostService(uow repository.UnitOfWork, posts repository.PostRepository, engine FanoutEngine, images ImagePromoter) *PostService {
	return &PostService{
		uow:    uow,
		posts:  posts,
		fanout: engine,
		images: images,
	}
}

// CreatePost writes the post, its follower and mention notifications, and its
// promoted images as one unit. If any step fails nothing is saved and promoted
// images return to quarantine.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if in.AuthorID == 0 {
		return nil, models.NewValidationError("authorId is required")
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, models.NewValidationError("Post content is required")
	}
	if utf8.RuneCountInString(content) > maxPostLength {
		return nil, models.NewValidationError(fmt.Sprintf("Post content too long (max %d characters)", maxPostLength))
	}
	filenames, err := stagedFilenames(in.Images)
	if err != nil {
		return nil, err
	}
	if len(filenames) > 0 && s.images == nil {
		return nil, models.NewValidationError("Image uploads are not enabled")
	}

	var (
		post       *models.Post
		recipients []uint
		promoted   []string
	)
	err = s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Users.GetByID(ctx, in.AuthorID); err != nil {
			return err
		}

		post = &models.Post{
			UserID:  in.AuthorID,
			Content: content,
			Images:  models.StringList{},
		}
		if err := repos.Posts.Create(ctx, post); err != nil {
			return err
		}

		var err error
		recipients, err = s.fanout.HandlePostCreated(ctx, repos, fanout.PostCreatedEvent{
			AuthorID: in.AuthorID,
			PostID:   post.ID,
			Content:  content,
		})
		if err != nil {
			return models.NewPipelineError(err)
		}

		if len(filenames) == 0 {
			return nil
		}
		urls, err := s.images.PromoteAll(ctx, filenames)
		if err != nil {
			return err
		}
		promoted = filenames
		post.Images = urls
		return repos.Posts.SetImages(ctx, post.ID, post.Images)
	})
	if err != nil {
		if len(promoted) > 0 {
			s.images.RevertAll(context.WithoutCancel(ctx), promoted)
		}
		return nil, err
	}

	cache.InvalidateUnreadCounts(ctx, recipients...)

	created, err := s.posts.GetByID(ctx, post.ID)
	if err != nil {
		// Committed; answer with what was written.
		return post, nil
	}
	return created, nil
}

// stagedFilenames reduces each reference to its base name and checks it names a
// staged upload. Duplicates are rejected.
func stagedFilenames(refs []string) ([]string, error) {
	if len(refs) > maxImagesPerPost {
		return nil, models.NewValidationError(fmt.Sprintf("Too many images (max %d)", maxImagesPerPost))
	}
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		name := path.Base(strings.TrimSpace(ref))
		if !media.ValidFilename(name) {
			return nil, models.NewValidationError(fmt.Sprintf("Invalid image reference %q", ref))
		}
		if _, dup := seen[name]; dup {
			return nil, models.NewValidationError("Duplicate image reference")
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

// GetPost returns a post with its author.
func (s *PostService) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	return s.posts.GetByID(ctx, id)
}

// ListPosts returns posts newest first.
func (s *PostService) ListPosts(ctx context.Context, limit, offset int) ([]models.Post, error) {
	return s.posts.List(ctx, limit, offset)
}

// ListUserPosts returns one author's posts newest first.
func (s *PostService) ListUserPosts(ctx context.Context, authorID uint, limit, offset int) ([]models.Post, error) {
	return s.posts.ListByAuthor(ctx, authorID, limit, offset)
}
