// Package fanout turns follow and post events into per-recipient notifications.
//
// The engine writes through the repositories handed to it by the caller's unit of
// work, so notifications commit or roll back together with the triggering write.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"murmur/internal/middleware"
	"murmur/internal/models"
	"murmur/internal/observability"
	"murmur/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

const (
	MessageFollow  = "started following you"
	MessagePost    = "published a new post"
	MessageMention = "mentioned you in a post"
)

// FollowEvent is emitted when a new follow edge is inserted.
type FollowEvent struct {
	FollowerID uint
	FolloweeID uint
	OccurredAt time.Time
}

// Key identifies the edge instance. Re-following after an unfollow is a new event.
func (e FollowEvent) Key() string {
	return fmt.Sprintf("follow:%d:%d:%d", e.FollowerID, e.FolloweeID, e.OccurredAt.UnixNano())
}

// PostCreatedEvent is emitted when a post is written.
type PostCreatedEvent struct {
	AuthorID uint
	PostID   uint
	Content  string
}

func (e PostCreatedEvent) Key() string {
	return "post:" + strconv.FormatUint(uint64(e.PostID), 10)
}

func (e PostCreatedEvent) MentionKey() string {
	return "mention:" + strconv.FormatUint(uint64(e.PostID), 10)
}

// Engine is stateless; one instance can serve every request.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// HandleFollow notifies the followee. It returns the recipient ids.
func (e *Engine) HandleFollow(ctx context.Context, repos repository.Repositories, ev FollowEvent) ([]uint, error) {
	span, ctx := observability.NewSpan(ctx, "fanout.follow",
		attribute.Int64("follower_id", int64(ev.FollowerID)),
		attribute.Int64("followee_id", int64(ev.FolloweeID)),
	)
	defer span.End()

	n := models.Notification{
		RecipientID: ev.FolloweeID,
		SenderID:    ev.FollowerID,
		Kind:        models.NotificationKindFollow,
		Message:     MessageFollow,
		EventKey:    ev.Key(),
	}
	observability.FanoutAudienceSize.WithLabelValues("follow").Observe(1)

	inserted, err := repos.Notifications.CreateBatch(ctx, []models.Notification{n})
	if err != nil {
		return nil, e.fail(ctx, span, "follow", err)
	}
	observability.FanoutNotifications.WithLabelValues(string(models.NotificationKindFollow)).Add(float64(inserted))
	return []uint{ev.FolloweeID}, nil
}

// HandlePostCreated notifies every follower of the author and every mentioned user
// other than the author. The audience is read through repos so it reflects the same
// transaction that wrote the post.
func (e *Engine) HandlePostCreated(ctx context.Context, repos repository.Repositories, ev PostCreatedEvent) ([]uint, error) {
	span, ctx := observability.NewSpan(ctx, "fanout.post_created",
		attribute.Int64("author_id", int64(ev.AuthorID)),
		attribute.Int64("post_id", int64(ev.PostID)),
	)
	defer span.End()

	followers, err := repos.Follows.FollowerIDs(ctx, ev.AuthorID)
	if err != nil {
		return nil, e.fail(ctx, span, "post", err)
	}

	postID := ev.PostID
	batch := make([]models.Notification, 0, len(followers))
	for _, id := range followers {
		batch = append(batch, models.Notification{
			RecipientID: id,
			SenderID:    ev.AuthorID,
			Kind:        models.NotificationKindPost,
			Message:     MessagePost,
			PostID:      &postID,
			EventKey:    ev.Key(),
		})
	}

	mentioned, err := e.mentionedUsers(ctx, repos, ev)
	if err != nil {
		return nil, e.fail(ctx, span, "post", err)
	}
	for _, id := range mentioned {
		batch = append(batch, models.Notification{
			RecipientID: id,
			SenderID:    ev.AuthorID,
			Kind:        models.NotificationKindMention,
			Message:     MessageMention,
			PostID:      &postID,
			EventKey:    ev.MentionKey(),
		})
	}

	observability.FanoutAudienceSize.WithLabelValues("post").Observe(float64(len(followers)))
	observability.FanoutAudienceSize.WithLabelValues("mention").Observe(float64(len(mentioned)))
	span.AddAttributes(
		attribute.Int("fanout.followers", len(followers)),
		attribute.Int("fanout.mentions", len(mentioned)),
	)

	if _, err := repos.Notifications.CreateBatch(ctx, batch); err != nil {
		return nil, e.fail(ctx, span, "post", err)
	}
	observability.FanoutNotifications.WithLabelValues(string(models.NotificationKindPost)).Add(float64(len(followers)))
	observability.FanoutNotifications.WithLabelValues(string(models.NotificationKindMention)).Add(float64(len(mentioned)))

	return recipients(followers, mentioned), nil
}

func (e *Engine) mentionedUsers(ctx context.Context, repos repository.Repositories, ev PostCreatedEvent) ([]uint, error) {
	handles := ExtractMentions(ev.Content)
	if len(handles) == 0 {
		return nil, nil
	}
	users, err := repos.Users.GetByHandles(ctx, handles)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(users))
	for _, u := range users {
		if u.ID != ev.AuthorID {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (e *Engine) fail(ctx context.Context, span *observability.Span, event string, err error) error {
	span.SetError(err)
	observability.FanoutFailures.WithLabelValues(event).Inc()
	middleware.Logger.ErrorContext(ctx, "fan-out failed",
		slog.String("event", event),
		slog.String("error", err.Error()),
	)
	return models.NewPipelineError(err)
}

func recipients(groups ...[]uint) []uint {
	seen := make(map[uint]struct{})
	var out []uint
	for _, g := range groups {
		for _, id := range g {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
