package server

import (
	"errors"
	"log/slog"

	"murmur/internal/middleware"
	"murmur/internal/models"

	"github.com/gofiber/fiber/v2"
)

// mapServiceError maps an AppError code to its HTTP status. Anything else is a 500.
func mapServiceError(err error) int {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		return fiber.StatusInternalServerError
	}
	switch appErr.Code {
	case models.CodeValidation:
		return fiber.StatusBadRequest
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeConflict:
		return fiber.StatusConflict
	case models.CodeRateLimited:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

// mapWriteError is mapServiceError for writes that reference other records by
// id in the body. A missing referenced user makes the request itself invalid.
func mapWriteError(err error) int {
	status := mapServiceError(err)
	if status == fiber.StatusNotFound {
		return fiber.StatusBadRequest
	}
	return status
}

// respondError logs server-side failures with their cause and writes the
// {error, code} payload.
func respondError(c *fiber.Ctx, status int, err error) error {
	if status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
	}
	return models.RespondWithError(c, status, err)
}

// ErrorHandler is the Fiber error handler. Fiber errors keep their status;
// everything else becomes a generic 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(models.ErrorResponse{Error: fiberErr.Message})
	}
	return respondError(c, mapServiceError(err), err)
}
