package server

import (
	"murmur/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreatePost handles POST /api/posts. The post, its notifications and its
// images are saved together or not at all.
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req struct {
		AuthorID uint     `json:"authorId"`
		Content  string   `json:"content"`
		Images   []string `json:"images"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		AuthorID: req.AuthorID,
		Content:  req.Content,
		Images:   req.Images,
	})
	if err != nil {
		return respondError(c, mapWriteError(err), err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// GetPosts handles GET /api/posts
func (s *Server) GetPosts(c *fiber.Ctx) error {
	page := parsePagination(c)
	posts, err := s.postService.ListPosts(c.UserContext(), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, mapServiceError(err), err)
	}
	return c.JSON(posts)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	post, err := s.postService.GetPost(c.UserContext(), id)
	if err != nil {
		return respondError(c, mapServiceError(err), err)
	}
	return c.JSON(post)
}

// GetUserPosts handles GET /api/users/:id/posts
func (s *Server) GetUserPosts(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if _, err := s.userService.GetUserByID(c.UserContext(), id); err != nil {
		return respondError(c, mapServiceError(err), err)
	}
	page := parsePagination(c)
	posts, err := s.postService.ListUserPosts(c.UserContext(), id, page.Limit, page.Offset)
	if err != nil {
		return respondError(c, mapServiceError(err), err)
	}
	return c.JSON(posts)
}
