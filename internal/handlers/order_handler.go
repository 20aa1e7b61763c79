package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/korelia/storefront-backend/internal/dto"
	"github.com/korelia/storefront-backend/internal/middleware"
	"github.com/korelia/storefront-backend/internal/services"
)

type OrderHandler struct {
	checkoutService *services.CheckoutService
	orderService    *services.OrderService
}

func NewOrderHandler(checkoutService *services.CheckoutService, orderService *services.OrderService) *OrderHandler {
	return &OrderHandler{checkoutService: checkoutService, orderService: orderService}
}

// Checkout opens a payment session. Signed-in customers get the order linked
// to their account; guests are matched by email later.
func (h *OrderHandler) Checkout(c *fiber.Ctx) error {
	var req dto.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	resp, err := h.checkoutService.Checkout(c.UserContext(), &req, middleware.CurrentUser(c))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(resp)
}

func (h *OrderHandler) MyOrders(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	orders, err := h.orderService.ForUser(user.ID, user.Email)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"orders": orders})
}
