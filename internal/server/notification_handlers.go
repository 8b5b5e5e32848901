package server

import (
	"github.com/gofiber/fiber/v2"
)

// GetNotifications handles GET /api/notifications/:userId?filter=all|unread|mentions
func (s *Server) GetNotifications(c *fiber.Ctx) error {
	userID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	page := parsePagination(c)
	notes, err := s.notificationService.List(c.UserContext(), userID, c.Query("filter"), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, mapServiceError(err), err)
	}
	return c.JSON(notes)
}

// MarkNotificationRead handles PUT /api/notifications/:id/read
func (s *Server) MarkNotificationRead(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	note, err := s.notificationService.MarkRead(c.UserContext(), id)
	if err != nil {
		return respondError(c, mapServiceError(err), err)
	}
	return c.JSON(note)
}

// GetUnreadCount handles GET /api/notifications/:userId/unread/count
func (s *Server) GetUnreadCount(c *fiber.Ctx) error {
	userID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	count, err := s.notificationService.UnreadCount(c.UserContext(), userID)
	if err != nil {
		return respondError(c, mapServiceError(err), err)
	}
	return c.JSON(fiber.Map{"count": count})
}
