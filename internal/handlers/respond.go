package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/korelia/storefront-backend/internal/catalog"
	"github.com/korelia/storefront-backend/internal/dto"
	"github.com/korelia/storefront-backend/internal/rewards"
	"github.com/korelia/storefront-backend/internal/services"
)

// errorStatus maps service sentinels to HTTP statuses. Anything unlisted is a 500.
var errorStatus = []struct {
	err    error
	status int
}{
	{services.ErrValidation, fiber.StatusBadRequest},
	{services.ErrEmailTaken, fiber.StatusConflict},
	{services.ErrInvalidCredentials, fiber.StatusUnauthorized},
	{services.ErrAccountLocked, fiber.StatusTooManyRequests},
	{services.ErrInvalidToken, fiber.StatusBadRequest},
	{services.ErrAlreadyVerified, fiber.StatusConflict},
	{services.ErrUserNotFound, fiber.StatusNotFound},
	{services.ErrUnknownProduct, fiber.StatusBadRequest},
	{services.ErrOutOfStock, fiber.StatusConflict},
	{services.ErrCheckout, fiber.StatusBadGateway},
	{services.ErrOrderNotFound, fiber.StatusNotFound},
	{services.ErrInvalidTransition, fiber.StatusConflict},
	{services.ErrAlreadyReviewed, fiber.StatusConflict},
	{rewards.ErrUnknownTier, fiber.StatusBadRequest},
	{rewards.ErrInsufficientPoints, fiber.StatusBadRequest},
	{rewards.ErrUserNotFound, fiber.StatusNotFound},
	{catalog.ErrProductNotFound, fiber.StatusNotFound},
	{catalog.ErrStockUntracked, fiber.StatusConflict},
	{catalog.ErrInvalidStock, fiber.StatusBadRequest},
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: msg})
}

func badBody(c *fiber.Ctx) error {
	return fail(c, fiber.StatusBadRequest, "Invalid request body")
}

// serviceError writes the response for err. Client errors carry the error
// text; server errors are logged and hidden.
func serviceError(c *fiber.Ctx, err error) error {
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			return fail(c, m.status, err.Error())
		}
	}
	slog.Error("request failed", "method", c.Method(), "path", c.Path(),
		"request_id", requestID(c), "error", err)
	return fail(c, fiber.StatusInternalServerError, "Internal server error")
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals("requestid").(string)
	return id
}
