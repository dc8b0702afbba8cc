// middleware/cron_auth.go
package middleware

import (
	"crypto/subtle"
	"strings"

	"setlist-survivor/logger"

	"github.com/gofiber/fiber/v2"
)

// CronAuthMiddleware admits grading triggers carrying the shared cron secret (as a Bearer
// token, X-Cron-Secret header or ?secret= query) or coming from an admin gateway session.
// It records which of the two it was under Locals("trigger").
func CronAuthMiddleware(secret string, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret != "" {
			for _, candidate := range cronSecretCandidates(c) {
				if subtle.ConstantTimeCompare([]byte(candidate), []byte(secret)) == 1 {
					c.Locals("trigger", "cron")
					return c.Next()
				}
			}
		}

		if c.Get("X-User-ID") != "" && hasRole(parseRoles(c.Get("X-User-Roles")), "admin") {
			c.Locals("trigger", "admin")
			c.Locals("user_id", c.Get("X-User-ID"))
			return c.Next()
		}

		log.Warn("🚫 [CRON_AUTH] rejected trigger", "path", c.Path(), "ip", c.IP())
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "unauthorized",
			"code":  "UNAUTHORIZED",
		})
	}
}

func cronSecretCandidates(c *fiber.Ctx) []string {
	var out []string
	if auth := c.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		out = append(out, strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
	}
	if h := c.Get("X-Cron-Secret"); h != "" {
		out = append(out, h)
	}
	if q := c.Query("secret"); q != "" {
		out = append(out, q)
	}
	return out
}
