// middleware/auth.go
package middleware

import (
	"strings"

	"setlist-survivor/logger"

	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware reads the identity the gateway attached to the request.
// Routes behind it require X-User-ID.
func UserContextMiddleware(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			log.Warn("❌ [USER_CTX] X-User-ID missing", "path", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "request must come through the gateway with an X-User-ID header",
				"code":  "UNAUTHORIZED",
			})
		}

		roles := parseRoles(c.Get("X-User-Roles"))
		c.Locals("user_id", userID)
		c.Locals("user_roles", roles)

		log.Debug("👤 [USER_CTX] request identity", "user_id", userID, "roles", roles, "path", c.Path())
		return c.Next()
	}
}

// RequireAdmin must run after UserContextMiddleware.
func RequireAdmin(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals("user_roles").([]string)
		if !hasRole(roles, "admin") {
			userID, _ := c.Locals("user_id").(string)
			log.Warn("🚫 [USER_CTX] admin role required", "user_id", userID, "path", c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "admin role required",
				"code":  "FORBIDDEN",
			})
		}
		return c.Next()
	}
}

func parseRoles(raw string) []string {
	var roles []string
	for _, r := range strings.Split(raw, ",") {
		r = strings.TrimSpace(r)
		if r != "" {
			roles = append(roles, strings.ToLower(r))
		}
	}
	return roles
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
