package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"

	"github.com/korelia/storefront-backend/internal/config"
	"github.com/korelia/storefront-backend/internal/dto"
)

const (
	CSRFHeader = "X-CSRF-Token"
	CSRFCookie = "csrf_"

	csrfContextKey = "csrf"
)

// CSRF applies double-submit protection to cookie-authenticated requests.
// Safe methods mint the token cookie; unsafe ones must echo it in
// X-CSRF-Token. Requests authenticated with a bearer header or the admin
// token never rely on ambient cookies and skip the check.
func CSRF(cfg *config.Config) fiber.Handler {
	return csrf.New(csrf.Config{
		KeyLookup:      "header:" + CSRFHeader,
		CookieName:     CSRFCookie,
		CookieSameSite: "Lax",
		CookieSecure:   cfg.CookieSecure,
		Expiration:     2 * time.Hour,
		ContextKey:     csrfContextKey,
		Next: func(c *fiber.Ctx) bool {
			if strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderAuthorization)), "bearer ") {
				return true
			}
			return hasAdminToken(c, cfg)
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Error: true, Message: "Invalid or missing CSRF token",
			})
		},
	})
}

// CSRFToken returns the token minted for this request by CSRF.
func CSRFToken(c *fiber.Ctx) string {
	token, _ := c.Locals(csrfContextKey).(string)
	return token
}
