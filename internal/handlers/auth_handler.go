package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/korelia/storefront-backend/internal/config"
	"github.com/korelia/storefront-backend/internal/dto"
	"github.com/korelia/storefront-backend/internal/middleware"
	"github.com/korelia/storefront-backend/internal/services"
)

type AuthHandler struct {
	authService *services.AuthService
	cfg         *config.Config
}

func NewAuthHandler(authService *services.AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{authService: authService, cfg: cfg}
}

// CSRFToken hands the token minted by the CSRF middleware to script clients.
func (h *AuthHandler) CSRFToken(c *fiber.Ctx) error {
	return c.JSON(dto.CSRFResponse{CSRFToken: middleware.CSRFToken(c)})
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	res, err := h.authService.Register(c.UserContext(), &req)
	if err != nil {
		return serviceError(c, err)
	}
	h.setSession(c, res.Token)
	return c.Status(fiber.StatusCreated).JSON(authResponse(res))
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	res, err := h.authService.Login(c.UserContext(), &req)
	if err != nil {
		return serviceError(c, err)
	}
	h.setSession(c, res.Token)
	return c.JSON(authResponse(res))
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.Unix(0, 0),
	})
	return c.JSON(dto.MessageResponse{Message: "Logged out successfully"})
}

func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	var req dto.TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	user, err := h.authService.VerifyEmail(&req)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(dto.NewUserResponse(user))
}

func (h *AuthHandler) ResendVerification(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if err := h.authService.ResendVerification(c.UserContext(), user.ID); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Verification email sent"})
}

// ForgotPassword answers the same way whether or not the account exists.
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req dto.EmailRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if err := h.authService.ForgotPassword(c.UserContext(), &req); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "If an account exists for this email, a reset link is on its way"})
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req dto.ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if err := h.authService.ResetPassword(&req); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Password updated, please sign in again"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	return c.JSON(dto.NewUserResponse(middleware.CurrentUser(c)))
}

func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	var req dto.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	user, err := h.authService.UpdateProfile(middleware.CurrentUser(c).ID, &req)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(dto.NewUserResponse(user))
}

// ChangePassword revokes every other session and hands this client a fresh token.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	token, err := h.authService.ChangePassword(middleware.CurrentUser(c).ID, &req)
	if err != nil {
		return serviceError(c, err)
	}
	h.setSession(c, token)
	return c.JSON(fiber.Map{"token": token})
}

func (h *AuthHandler) setSession(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		HTTPOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.Now().Add(h.cfg.JWTExpiry),
	})
}

func authResponse(res *services.AuthResult) dto.AuthResponse {
	resp := dto.AuthResponse{Token: res.Token, User: dto.NewUserResponse(res.User)}
	if res.Backfill.Orders > 0 {
		b := res.Backfill
		resp.RewardsBackfill = &b
	}
	return resp
}
