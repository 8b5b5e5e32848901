// Package service holds the business logic between the HTTP handlers and the
// repositories.
package service

import (
	"context"

	"murmur/internal/fanout"
	"murmur/internal/repository"
)

// FanoutEngine materializes notifications inside the caller's unit of work.
type FanoutEngine interface {
	HandleFollow(ctx context.Context, repos repository.Repositories, ev fanout.FollowEvent) ([]uint, error)
	HandlePostCreated(ctx context.Context, repos repository.Repositories, ev fanout.PostCreatedEvent) ([]uint, error)
}

// ImagePromoter moves staged images into permanent storage.
type ImagePromoter interface {
	PromoteAll(ctx context.Context, filenames []string) ([]string, error)
	RevertAll(ctx context.Context, filenames []string)
}
