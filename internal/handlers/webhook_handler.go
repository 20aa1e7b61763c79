package handlers

import (
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"

	"github.com/korelia/storefront-backend/internal/payments"
	"github.com/korelia/storefront-backend/internal/services"
)

const signatureHeader = "Stripe-Signature"

type WebhookHandler struct {
	orderService *services.OrderService
}

func NewWebhookHandler(orderService *services.OrderService) *WebhookHandler {
	return &WebhookHandler{orderService: orderService}
}

// HandleStripe verifies and ingests a Stripe delivery. Only a failure to
// record the order answers 5xx, which makes Stripe retry.
func (h *WebhookHandler) HandleStripe(c *fiber.Ctx) error {
	// The body must be copied: fasthttp reuses the buffer after the handler returns.
	payload := append([]byte(nil), c.Body()...)

	res, err := h.orderService.HandleEvent(c.UserContext(), payload, c.Get(signatureHeader))
	switch {
	case err == nil:
	case errors.Is(err, payments.ErrSignatureInvalid):
		slog.Warn("webhook signature rejected", "ip", c.IP())
		return fail(c, fiber.StatusBadRequest, "Webhook signature verification failed")
	case errors.Is(err, payments.ErrMalformedEvent):
		return fail(c, fiber.StatusBadRequest, "Malformed webhook payload")
	default:
		slog.Error("webhook ingestion failed", "request_id", requestID(c), "error", err)
		if hub := sentryfiber.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		} else {
			sentry.CaptureException(err)
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to record order")
	}

	body := fiber.Map{"received": true}
	switch {
	case res.Ignored:
		body["ignored"] = true
	case res.Duplicate:
		body["duplicate"] = true
	default:
		body["order_id"] = res.Order.ID
	}
	return c.JSON(body)
}
