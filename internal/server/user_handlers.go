package server

import (
	"context"

	"murmur/internal/models"
	"murmur/internal/service"

	"github.com/gofiber/fiber/v2"
)

// RegisterUser handles POST /api/users
func (s *Server) RegisterUser(c *fiber.Ctx) error {
	var req struct {
		Name      string `json:"name"`
		Email     string `json:"email"`
		Handle    string `json:"handle"`
		Password  string `json:"password"`
		Bio       string `json:"bio"`
		AvatarURL string `json:"avatarUrl"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	user, err := s.userService.Register(c.UserContext(), service.RegisterInput{
		Name:      req.Name,
		Email:     req.Email,
		Handle:    req.Handle,
		Password:  req.Password,
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		return respondError(c, mapServiceError(err), err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// GetUsers handles GET /api/users
func (s *Server) GetUsers(c *fiber.Ctx) error {
	page := parsePagination(c)
	users, err := s.userService.ListUsers(c.UserContext(), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, mapServiceError(err), err)
	}
	return c.JSON(users)
}

// GetUser handles GET /api/users/:id
func (s *Server) GetUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	user, err := s.userService.GetUserByID(c.UserContext(), id)
	if err != nil {
		return respondError(c, mapServiceError(err), err)
	}
	return c.JSON(user)
}

type followRequest struct {
	FollowerID uint `json:"followerId"`
}

// FollowUser handles POST /api/users/:id/follow. Following an edge that already
// exists returns the existing edge.
func (s *Server) FollowUser(c *fiber.Ctx) error {
	followeeID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req followRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	follow, err := s.followService.Follow(c.UserContext(), req.FollowerID, followeeID)
	if err != nil {
		return respondError(c, mapWriteError(err), err)
	}
	return c.JSON(follow)
}

// UnfollowUser handles POST /api/users/:id/unfollow
func (s *Server) UnfollowUser(c *fiber.Ctx) error {
	followeeID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req followRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	if err := s.followService.Unfollow(c.UserContext(), req.FollowerID, followeeID); err != nil {
		return respondError(c, mapWriteError(err), err)
	}
	return c.JSON(fiber.Map{"message": "Unfollowed"})
}

// GetFollowers handles GET /api/users/:id/followers
func (s *Server) GetFollowers(c *fiber.Ctx) error {
	return s.listUsers(c, s.followService.Followers)
}

// GetFollowing handles GET /api/users/:id/following
func (s *Server) GetFollowing(c *fiber.Ctx) error {
	return s.listUsers(c, s.followService.Following)
}

func (s *Server) listUsers(c *fiber.Ctx, list func(ctx context.Context, userID uint, limit, offset int) ([]models.User, error)) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePagination(c)
	users, err := list(c.UserContext(), id, page.Limit, page.Offset)
	if err != nil {
		return respondError(c, mapServiceError(err), err)
	}
	return c.JSON(users)
}
