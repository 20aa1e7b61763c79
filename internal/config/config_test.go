package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/korelia")
	t.Setenv("JWT_EXPIRY", "not-a-duration")

	cfg := Load()

	assert.Equal(t, "4242", cfg.Port)
	assert.Equal(t, "/var/lib/korelia/outbox.db", cfg.OutboxPath)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, "eur", cfg.Currency)
	assert.Equal(t, int64(490), cfg.ShippingFlatCents)
	assert.Contains(t, cfg.ShippingCountries, "FR")
	assert.False(t, cfg.IsDevelopment())
	assert.False(t, cfg.SMTPConfigured())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("CURRENCY", "EUR")
	t.Setenv("SHIPPING_COUNTRIES", " fr, be ,,")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("BCRYPT_COST", "4")
	t.Setenv("LOGIN_LOCKOUT", "2m")
	t.Setenv("FRONTEND_URL", "https://korelia.fr/")

	cfg := Load()

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "eur", cfg.Currency)
	assert.Equal(t, []string{"FR", "BE"}, cfg.ShippingCountries)
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, 4, cfg.BcryptCost)
	assert.Equal(t, 2*time.Minute, cfg.LoginLockout)
	assert.Equal(t, "https://korelia.fr", cfg.FrontendURL)
}

func TestGetEnvInt_InvalidFallsBack(t *testing.T) {
	t.Setenv("SMTP_PORT", "abc")
	assert.Equal(t, 587, Load().SMTPPort)
}
