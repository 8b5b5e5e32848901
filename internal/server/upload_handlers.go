package server

import (
	"io"

	"murmur/internal/media"
	"murmur/internal/models"

	"github.com/gofiber/fiber/v2"
)

// UploadResponse is returned after an image is staged. URL is where the image
// will be served once a post references it.
type UploadResponse struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// UploadImage handles POST /api/upload
func (s *Server) UploadImage(c *fiber.Ctx) error {
	file, err := c.FormFile("image")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("No file uploaded"))
	}

	src, err := file.Open()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}
	defer func() { _ = src.Close() }()

	// Read one byte past the limit so an oversize body is still detected.
	content, err := io.ReadAll(io.LimitReader(src, s.config.UploadMaxBytes+1))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}

	staged, err := s.pipeline.Stage(c.UserContext(), media.StageInput{
		Source:       c.IP(),
		Content:      content,
		DeclaredMIME: file.Header.Get("Content-Type"),
		DeclaredSize: file.Size,
		OriginalName: file.Filename,
	})
	if err != nil {
		return respondError(c, mapServiceError(err), err)
	}

	return c.Status(fiber.StatusCreated).JSON(UploadResponse{
		URL:      s.pipeline.PublicURL(staged.Filename),
		Filename: staged.Filename,
	})
}
