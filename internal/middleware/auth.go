package middleware

import (
	"errors"
	"strings"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/korelia/storefront-backend/internal/config"
	"github.com/korelia/storefront-backend/internal/dto"
	"github.com/korelia/storefront-backend/internal/models"
)

// SessionCookie carries the JWT for browser clients.
const SessionCookie = "token"

const (
	localToken   = "user"
	localAccount = "account"
)

var errStaleSession = errors.New("session has been revoked")

// UserLookup resolves the account behind a token subject.
type UserLookup interface {
	GetUser(userID string) (*models.User, error)
}

func JWTProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:  jwtware.SigningKey{JWTAlg: jwtware.HS256, Key: []byte(cfg.JWTSecret)},
		ContextKey:  localToken,
		TokenLookup: "header:Authorization,cookie:" + SessionCookie,
		AuthScheme:  "Bearer",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return unauthorized(c, "Unauthorized: invalid or expired token")
		},
	})
}

// SessionCurrent runs after JWTProtected. It rejects tokens issued before the
// last password change and stores the account for handlers.
func SessionCurrent(users UserLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := claimsFrom(c)
		if !ok {
			return unauthorized(c, "Unauthorized")
		}
		user, err := resolveAccount(users, claims)
		if err != nil {
			return unauthorized(c, "Unauthorized: session expired")
		}
		c.Locals(localAccount, user)
		return c.Next()
	}
}

// OptionalUser attaches the account when the request carries a valid session
// and lets anonymous requests through untouched.
func OptionalUser(cfg *config.Config, users UserLookup) fiber.Handler {
	key := []byte(cfg.JWTSecret)
	return func(c *fiber.Ctx) error {
		raw := bearerOrCookie(c)
		if raw == "" {
			return c.Next()
		}
		token, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) { return key, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			return c.Next()
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Next()
		}
		if user, err := resolveAccount(users, claims); err == nil {
			c.Locals(localToken, token)
			c.Locals(localAccount, user)
		}
		return c.Next()
	}
}

// CurrentUser returns the account attached by SessionCurrent or OptionalUser.
func CurrentUser(c *fiber.Ctx) *models.User {
	u, _ := c.Locals(localAccount).(*models.User)
	return u
}

// GetUserID extracts the subject claim from the verified token.
func GetUserID(c *fiber.Ctx) (string, error) {
	claims, ok := claimsFrom(c)
	if !ok {
		return "", errors.New("invalid token in context")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub claim")
	}
	return sub, nil
}

func claimsFrom(c *fiber.Ctx) (jwt.MapClaims, bool) {
	token, ok := c.Locals(localToken).(*jwt.Token)
	if !ok || token == nil {
		return nil, false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	return claims, ok
}

func resolveAccount(users UserLookup, claims jwt.MapClaims) (*models.User, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.New("missing sub claim")
	}
	user, err := users.GetUser(sub)
	if err != nil {
		return nil, err
	}
	// JSON numbers decode as float64.
	tv, _ := claims["tv"].(float64)
	if int(tv) != user.TokenVersion {
		return nil, errStaleSession
	}
	return user, nil
}

func bearerOrCookie(c *fiber.Ctx) string {
	if h := c.Get(fiber.HeaderAuthorization); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return c.Cookies(SessionCookie)
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: true, Message: msg})
}
