// middleware/auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware extracts the user identity set by the Gateway.
// Secured routes must see an X-User-ID; X-User-Name rides along for the
// account projection bootstrap.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		username := strings.TrimSpace(c.Get("X-User-Name"))

		if userID == "" {
			log.Printf("[USER_CTX] X-User-ID missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "missing X-User-ID header",
			})
		}

		c.Locals("user_id", userID)
		c.Locals("user_name", username)

		return c.Next()
	}
}
