// middleware/gateway.go
package middleware

import (
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// GatewayAuthMiddleware validates the Bearer token from the Gateway. The
// entitlements service is never exposed directly; every request must carry
// the shared service token the Gateway injects.
func GatewayAuthMiddleware() fiber.Handler {
	expectedToken := os.Getenv("ENTITLEMENT_SERVICE_TOKEN")
	if expectedToken == "" {
		log.Fatal("ENTITLEMENT_SERVICE_TOKEN is not set")
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			log.Printf("[GATEWAY_AUTH] missing Authorization header for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "gateway authentication token missing",
			})
		}

		// "Bearer <token>", or the raw value if the Gateway sends the token
		// without a scheme.
		token := strings.TrimPrefix(authHeader, "Bearer ")

		if token != expectedToken {
			log.Printf("[GATEWAY_AUTH] invalid token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "invalid gateway authentication token",
			})
		}

		return c.Next()
	}
}
