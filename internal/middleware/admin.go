package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/korelia/storefront-backend/internal/config"
	"github.com/korelia/storefront-backend/internal/dto"
)

// AdminRequired admits requests that either:
// 1. present the configured X-Admin-Token
// 2. carry a session whose account has the admin role or an ADMIN_EMAILS address
//
// Mount it after OptionalUser so the session account is available.
func AdminRequired(cfg *config.Config) fiber.Handler {
	adminEmails := parseCSV(cfg.AdminEmails)

	return func(c *fiber.Ctx) error {
		if hasAdminToken(c, cfg) {
			return c.Next()
		}

		user := CurrentUser(c)
		if user == nil {
			return unauthorized(c, "Unauthorized")
		}
		if user.IsAdmin() || contains(adminEmails, strings.ToLower(user.Email)) {
			return c.Next()
		}

		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Message: "Admin access required",
		})
	}
}

// hasAdminToken reports whether the request carries the configured admin token.
func hasAdminToken(c *fiber.Ctx, cfg *config.Config) bool {
	if cfg.AdminToken == "" {
		return false
	}
	got := c.Get("X-Admin-Token")
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(cfg.AdminToken)) == 1
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(p))
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func contains(list []string, val string) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}
