package middleware

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korelia/storefront-backend/internal/config"
	"github.com/korelia/storefront-backend/internal/models"
)

type fakeUsers map[string]*models.User

func (f fakeUsers) GetUser(id string) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, errors.New("not found")
}

func sign(t *testing.T, secret, sub string, tv int) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub, "tv": tv, "exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func testSetup() (*config.Config, fakeUsers) {
	cfg := &config.Config{JWTSecret: "secret", AdminEmails: "Boss@Korelia.fr", AdminToken: "admin-token"}
	users := fakeUsers{
		"u1":   {ID: "u1", Email: "mina@example.com", Role: models.RoleUser, TokenVersion: 1},
		"boss": {ID: "boss", Email: "boss@korelia.fr", Role: models.RoleUser},
	}
	return cfg, users
}

func whoami(c *fiber.Ctx) error {
	if u := CurrentUser(c); u != nil {
		return c.SendString(u.ID)
	}
	return c.SendString("anonymous")
}

func TestSessionCurrent(t *testing.T) {
	cfg, users := testSetup()
	app := fiber.New()
	app.Get("/me", JWTProtected(cfg), SessionCurrent(users), whoami)

	tests := []struct {
		name   string
		header string
		cookie string
		want   int
	}{
		{"bearer header", "Bearer " + sign(t, "secret", "u1", 1), "", fiber.StatusOK},
		{"session cookie", "", sign(t, "secret", "u1", 1), fiber.StatusOK},
		{"stale token version", "Bearer " + sign(t, "secret", "u1", 0), "", fiber.StatusUnauthorized},
		{"wrong key", "Bearer " + sign(t, "other", "u1", 1), "", fiber.StatusUnauthorized},
		{"unknown user", "Bearer " + sign(t, "secret", "ghost", 0), "", fiber.StatusUnauthorized},
		{"missing", "", "", fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			if tt.cookie != "" {
				req.Header.Set(fiber.HeaderCookie, SessionCookie+"="+tt.cookie)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestOptionalUser(t *testing.T) {
	cfg, users := testSetup()
	app := fiber.New()
	app.Get("/whoami", OptionalUser(cfg, users), whoami)

	call := func(auth string) string {
		req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
		if auth != "" {
			req.Header.Set(fiber.HeaderAuthorization, auth)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	assert.Equal(t, "anonymous", call(""))
	assert.Equal(t, "u1", call("Bearer "+sign(t, "secret", "u1", 1)))
	assert.Equal(t, "anonymous", call("Bearer garbage"))
	assert.Equal(t, "anonymous", call("Bearer "+sign(t, "secret", "u1", 0)))
}

func TestAdminRequired(t *testing.T) {
	cfg, users := testSetup()
	users["root"] = &models.User{ID: "root", Email: "root@korelia.fr", Role: models.RoleAdmin}

	app := fiber.New()
	app.Get("/admin", OptionalUser(cfg, users), AdminRequired(cfg), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"admin role", map[string]string{"Authorization": "Bearer " + sign(t, "secret", "root", 0)}, fiber.StatusNoContent},
		{"admin email", map[string]string{"Authorization": "Bearer " + sign(t, "secret", "boss", 0)}, fiber.StatusNoContent},
		{"admin token", map[string]string{"X-Admin-Token": "admin-token"}, fiber.StatusNoContent},
		{"wrong admin token", map[string]string{"X-Admin-Token": "nope"}, fiber.StatusUnauthorized},
		{"customer", map[string]string{"Authorization": "Bearer " + sign(t, "secret", "u1", 1)}, fiber.StatusForbidden},
		{"anonymous", nil, fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestCSRF_DoubleSubmit(t *testing.T) {
	cfg := &config.Config{}
	app := fiber.New()
	app.Use(CSRF(cfg))
	app.Get("/token", func(c *fiber.Ctx) error { return c.SendString(CSRFToken(c)) })
	app.Post("/action", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/token", nil))
	require.NoError(t, err)
	var token string
	for _, ck := range resp.Cookies() {
		if ck.Name == CSRFCookie {
			token = ck.Value
		}
	}
	require.NotEmpty(t, token)

	post := func(withHeader, withCookie bool, extra map[string]string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/action", nil)
		if withHeader {
			req.Header.Set(CSRFHeader, token)
		}
		if withCookie {
			req.Header.Set(fiber.HeaderCookie, CSRFCookie+"="+token)
		}
		for k, v := range extra {
			req.Header.Set(k, v)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusNoContent, post(true, true, nil))
	assert.Equal(t, fiber.StatusForbidden, post(false, true, nil))
	assert.Equal(t, fiber.StatusForbidden, post(true, false, nil))
	assert.Equal(t, fiber.StatusNoContent, post(false, false, map[string]string{"Authorization": "Bearer abc"}))
}

func TestCSRF_SkipsOnlyForValidAdminToken(t *testing.T) {
	app := fiber.New()
	app.Use(CSRF(&config.Config{AdminToken: "admin-secret"}))
	app.Post("/action", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"configured token", "admin-secret", fiber.StatusNoContent},
		{"wrong token", "guess", fiber.StatusForbidden},
		{"prefix of token", "admin", fiber.StatusForbidden},
		{"no token", "", fiber.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodPost, "/action", nil)
			req.Header.Set(fiber.HeaderCookie, SessionCookie+"=session-jwt")
			if tt.token != "" {
				req.Header.Set("X-Admin-Token", tt.token)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
