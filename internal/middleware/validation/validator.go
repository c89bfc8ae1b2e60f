package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var scriptInjectionPattern = regexp.MustCompile(`(?i)(javascript:|onerror=|onload=|onclick=|<iframe)`)

type Config struct {
	MaxDocumentSize     int
	MaxNotesLength      int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware enforces payload shape on the submission and review endpoints
// before the handlers see them. Submitted documents are HTML by design, so
// only actively dangerous constructs are rejected, not markup as such.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxDocumentSize == 0 {
		cfg.MaxDocumentSize = 10 * 1024 * 1024
	}
	if cfg.MaxNotesLength == 0 {
		cfg.MaxNotesLength = 2000
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get("Content-Type")
			if contentType != "" && !contentTypeAllowed(contentType, cfg.AllowedContentTypes) {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		path := c.Path()

		if c.Method() == fiber.MethodPost && strings.Contains(path, "/api/v1/documents") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			content, ok := req["html_content"].(string)
			if ok && len(content) > cfg.MaxDocumentSize {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Document content exceeds maximum size",
				})
			}
		}

		if c.Method() == fiber.MethodPost &&
			(strings.Contains(path, "/api/v1/moderation") || strings.Contains(path, "/api/v1/similarity")) {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			notes, ok := req["notes"].(string)
			if ok {
				if len(notes) > cfg.MaxNotesLength {
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
						"error": "Notes exceed maximum length",
					})
				}
				if scriptInjectionPattern.MatchString(notes) {
					cfg.Logger.Warn("Potential script injection in moderation notes",
						zap.String("ip", c.IP()),
					)
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
						"error": "Invalid notes content",
					})
				}
			}
		}

		return c.Next()
	}
}

func contentTypeAllowed(contentType string, allowed []string) bool {
	for _, a := range allowed {
		if strings.Contains(contentType, a) {
			return true
		}
	}
	return false
}
