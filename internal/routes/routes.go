package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/korelia/storefront-backend/internal/config"
	"github.com/korelia/storefront-backend/internal/dto"
	"github.com/korelia/storefront-backend/internal/handlers"
	"github.com/korelia/storefront-backend/internal/middleware"
)

type Handlers struct {
	Auth     *handlers.AuthHandler
	Health   *handlers.HealthHandler
	Webhook  *handlers.WebhookHandler
	Rewards  *handlers.RewardsHandler
	Orders   *handlers.OrderHandler
	Products *handlers.ProductHandler
	Admin    *handlers.AdminHandler
}

func Setup(app *fiber.App, cfg *config.Config, users middleware.UserLookup, h Handlers) {
	// Stripe signs the raw body, so the webhook sits outside /api and its CSRF check.
	app.Post("/webhook", h.Webhook.HandleStripe)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	api.Use(perIPLimiter(cfg.RateLimitPerMinute))
	api.Use(middleware.CSRF(cfg))

	api.Get("/health", h.Health.Check)
	api.Get("/csrf-token", h.Auth.CSRFToken)

	session := []fiber.Handler{middleware.JWTProtected(cfg), middleware.SessionCurrent(users)}

	// Auth: stricter rate limit
	auth := api.Group("/auth")
	auth.Use(perIPLimiter(cfg.AuthRateLimitPerMinute))
	auth.Post("/register", h.Auth.Register)
	auth.Post("/login", h.Auth.Login)
	auth.Post("/logout", h.Auth.Logout)
	auth.Post("/verify-email", h.Auth.VerifyEmail)
	auth.Post("/forgot-password", h.Auth.ForgotPassword)
	auth.Post("/reset-password", h.Auth.ResetPassword)
	auth.Post("/resend-verification", append(session, h.Auth.ResendVerification)...)

	me := api.Group("/me", session...)
	me.Get("", h.Auth.Me)
	me.Patch("", h.Auth.UpdateMe)
	me.Post("/password", h.Auth.ChangePassword)
	me.Get("/rewards", h.Rewards.Summary)
	me.Get("/orders", h.Orders.MyOrders)

	api.Post("/rewards/redeem", append(session, h.Rewards.Redeem)...)
	api.Post("/checkout", middleware.OptionalUser(cfg, users), h.Orders.Checkout)

	api.Get("/products", h.Products.List)
	api.Get("/products/:slug", h.Products.Get)
	api.Get("/products/:slug/reviews", h.Products.Reviews)
	api.Post("/products/:slug/reviews", append(session, h.Products.CreateReview)...)

	admin := api.Group("/admin", middleware.OptionalUser(cfg, users), middleware.AdminRequired(cfg))
	admin.Get("/orders", h.Admin.ListOrders)
	admin.Patch("/orders/:id/status", h.Admin.UpdateOrderStatus)
	admin.Patch("/products/:id/stock", h.Admin.UpdateStock)
	admin.Post("/catalog/reload", h.Admin.ReloadCatalog)
	admin.Get("/outbox", h.Admin.Outbox)
}

func perIPLimiter(perMinute int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               perMinute,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.ErrorResponse{
				Error: true, Message: "Too many requests, slow down",
			})
		},
	})
}
