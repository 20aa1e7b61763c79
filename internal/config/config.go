package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port        string
	AppEnv      string
	CORSOrigins string
	FrontendURL string

	// Storage
	DataDir    string
	OutboxPath string

	// JWT / sessions
	JWTSecret    string
	JWTExpiry    time.Duration
	CookieSecure bool
	BcryptCost   int

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string

	// Checkout
	Currency                   string
	ShippingFlatCents          int64
	FreeShippingThresholdCents int64
	ShippingCountries          []string

	// Mail
	SMTPHost          string
	SMTPPort          int
	SMTPUser          string
	SMTPPassword      string
	MailFrom          string
	ShopName          string
	OutboxMaxAttempts int

	// Admin
	AdminEmails string
	AdminToken  string

	// Abuse protection
	RateLimitPerMinute     int
	AuthRateLimitPerMinute int
	LoginMaxFailures       int
	LoginLockout           time.Duration

	WatchProducts bool

	// Error log database (optional)
	LogDBEnabled bool
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
	DBSSLMode    string

	SentryDSN string
}

func Load() *Config {
	dataDir := getEnv("DATA_DIR", "data")

	return &Config{
		Port:        getEnv("PORT", "4242"),
		AppEnv:      getEnv("APP_ENV", "production"),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:5173"),
		FrontendURL: strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),

		DataDir:    dataDir,
		OutboxPath: getEnv("OUTBOX_PATH", filepath.Join(dataDir, "outbox.db")),

		JWTSecret:    getEnv("JWT_SECRET", ""),
		JWTExpiry:    parseDuration(getEnv("JWT_EXPIRY", "168h"), 7*24*time.Hour),
		CookieSecure: getEnvBool("COOKIE_SECURE", true),
		BcryptCost:   getEnvInt("BCRYPT_COST", 12),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		Currency:                   strings.ToLower(getEnv("CURRENCY", "eur")),
		ShippingFlatCents:          int64(getEnvInt("SHIPPING_FLAT_CENTS", 490)),
		FreeShippingThresholdCents: int64(getEnvInt("FREE_SHIPPING_THRESHOLD_CENTS", 5000)),
		ShippingCountries:          parseCSV(getEnv("SHIPPING_COUNTRIES", "FR,BE,LU,DE,NL,ES,IT,CH")),

		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getEnvInt("SMTP_PORT", 587),
		SMTPUser:          getEnv("SMTP_USER", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		MailFrom:          getEnv("MAIL_FROM", "Korelia <hello@korelia.fr>"),
		ShopName:          getEnv("SHOP_NAME", "Korelia"),
		OutboxMaxAttempts: getEnvInt("OUTBOX_MAX_ATTEMPTS", 6),

		AdminEmails: getEnv("ADMIN_EMAILS", ""),
		AdminToken:  getEnv("ADMIN_TOKEN", ""),

		RateLimitPerMinute:     getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		AuthRateLimitPerMinute: getEnvInt("AUTH_RATE_LIMIT_PER_MINUTE", 20),
		LoginMaxFailures:       getEnvInt("LOGIN_MAX_FAILURES", 5),
		LoginLockout:           parseDuration(getEnv("LOGIN_LOCKOUT", "15m"), 15*time.Minute),

		WatchProducts: getEnvBool("WATCH_PRODUCTS", false),

		LogDBEnabled: getEnvBool("LOG_DB_ENABLED", false),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBUser:       getEnv("DB_USER", "postgres"),
		DBPassword:   getEnv("DB_PASSWORD", ""),
		DBName:       getEnv("DB_NAME", "korelia_logs"),
		DBSSLMode:    getEnv("DB_SSLMODE", "disable"),

		SentryDSN: getEnv("SENTRY_DSN", ""),
	}
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != ""
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, strings.ToUpper(trimmed))
		}
	}
	return result
}
