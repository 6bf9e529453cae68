// Package validation guards the API's input edges: query length, upload
// size, and content types.
package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docsense/backend/pkg/logger"
)

type Config struct {
	MaxQueryLength  int
	MaxDocumentSize int64
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = 5000
	}
	if cfg.MaxDocumentSize <= 0 {
		cfg.MaxDocumentSize = 10 * 1024 * 1024
	}

	log := logger.GetLogger()

	return func(c *fiber.Ctx) error {
		path := c.Path()

		if c.Method() == fiber.MethodPost && strings.Contains(path, "/api/v1/query") {
			var req struct {
				Query string `json:"query"`
			}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			query := strings.TrimSpace(req.Query)
			if query == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Query is required",
				})
			}
			if len(query) > cfg.MaxQueryLength {
				log.Warn("query length exceeded",
					zap.Int("length", len(query)),
					zap.Int("max", cfg.MaxQueryLength))
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Query exceeds maximum length",
				})
			}
		}

		if c.Method() == fiber.MethodPost && strings.Contains(path, "/api/v1/documents") {
			if int64(c.Request().Header.ContentLength()) > cfg.MaxDocumentSize {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Document exceeds maximum size",
				})
			}
		}

		return c.Next()
	}
}
