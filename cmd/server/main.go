package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/korelia/storefront-backend/internal/catalog"
	"github.com/korelia/storefront-backend/internal/config"
	"github.com/korelia/storefront-backend/internal/database"
	"github.com/korelia/storefront-backend/internal/dto"
	"github.com/korelia/storefront-backend/internal/handlers"
	"github.com/korelia/storefront-backend/internal/logging"
	"github.com/korelia/storefront-backend/internal/middleware"
	"github.com/korelia/storefront-backend/internal/notify"
	"github.com/korelia/storefront-backend/internal/payments"
	"github.com/korelia/storefront-backend/internal/rewards"
	"github.com/korelia/storefront-backend/internal/routes"
	"github.com/korelia/storefront-backend/internal/services"
	"github.com/korelia/storefront-backend/internal/store"
)

func main() {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env")
	}
	cfg := config.Load()

	// Structured logging (JSON to stdout)
	stdout := logging.Setup(cfg.IsDevelopment())

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if (cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "") && !cfg.IsDevelopment() {
		slog.Error("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required outside development")
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch), optional
	var (
		logDB        *gorm.DB
		pgLogHandler *logging.PGHandler
	)
	cleanupDone := make(chan struct{})
	if cfg.LogDBEnabled {
		db, err := database.Connect(cfg)
		if err != nil {
			slog.Error("log database connection failed", "error", err)
			os.Exit(1)
		}
		if err := database.Migrate(db); err != nil {
			slog.Error("log database migration failed", "error", err)
			os.Exit(1)
		}
		logDB = db
		pgLogHandler = logging.NewPGHandler(db, stdout)
		slog.SetDefault(slog.New(logging.NewMultiHandler(stdout, pgLogHandler)))
		logging.StartCleanup(db, cleanupDone)
	}

	// Data directory
	stores, err := store.Open(cfg.DataDir)
	if err != nil {
		slog.Error("data directory unavailable", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	if res, err := store.Migrate(stores); err != nil {
		slog.Error("schema migration failed", "error", err)
		os.Exit(1)
	} else if len(res.Applied) > 0 {
		slog.Info("schema migrated", "from", res.From, "to", res.To)
	}

	cat := catalog.New(stores.Products)
	if err := cat.Reload(); err != nil {
		slog.Error("catalog load failed", "path", stores.Products.Path(), "error", err)
		os.Exit(1)
	}
	slog.Info("catalog loaded", "products", cat.Len())

	var watcher *catalog.Watcher
	if cfg.WatchProducts {
		watcher, err = catalog.NewWatcher(cat, stores.Products.Path())
		if err == nil {
			err = watcher.Start()
		}
		if err != nil {
			slog.Warn("product file watcher disabled", "error", err)
			watcher = nil
		}
	}

	// Mail outbox
	var sender notify.Sender = notify.LogSender{}
	if cfg.SMTPConfigured() {
		sender = notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
	} else {
		slog.Warn("SMTP not configured, emails will only be logged")
	}
	outbox, err := notify.OpenOutbox(cfg.OutboxPath, sender, notify.Options{MaxAttempts: cfg.OutboxMaxAttempts})
	if err != nil {
		slog.Error("outbox unavailable", "path", cfg.OutboxPath, "error", err)
		os.Exit(1)
	}
	outbox.Start()

	// Services
	gateway := payments.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	ledger := rewards.NewLedger(stores, gateway, cfg.Currency)
	lockout := services.NewLockout(cfg.LoginMaxFailures, cfg.LoginLockout)

	authService := services.NewAuthService(cfg, stores.Users, ledger, outbox, lockout)
	orderService := services.NewOrderService(cfg, stores.Orders, cat, ledger, gateway, outbox)
	checkoutService := services.NewCheckoutService(cfg, cat, gateway)
	adminService := services.NewAdminService(cfg, stores.Orders, outbox)
	reviewService := services.NewReviewService(stores.Reviews, cat, ledger)

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${locals:requestid}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(middleware.SecurityHeaders())

	routes.Setup(app, cfg, authService, routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService, cfg),
		Health:   handlers.NewHealthHandler(cat, outbox),
		Webhook:  handlers.NewWebhookHandler(orderService),
		Rewards:  handlers.NewRewardsHandler(ledger),
		Orders:   handlers.NewOrderHandler(checkoutService, orderService),
		Products: handlers.NewProductHandler(cat, reviewService),
		Admin:    handlers.NewAdminHandler(adminService, cat, outbox),
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port, "env", cfg.AppEnv)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	if watcher != nil {
		watcher.Stop()
	}
	outbox.Stop()
	if err := outbox.Close(); err != nil {
		slog.Error("outbox close error", "error", err)
	}

	close(cleanupDone)
	if pgLogHandler != nil {
		pgLogHandler.Stop()
		slog.SetDefault(slog.New(stdout))
	}
	if logDB != nil {
		if err := database.Close(logDB); err != nil {
			slog.Error("log database close error", "error", err)
		}
	}
	sentry.Flush(2 * time.Second)

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(),
			"request_id", c.Locals("requestid"), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(dto.ErrorResponse{Error: true, Message: message})
}
