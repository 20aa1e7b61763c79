package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/korelia/storefront-backend/internal/catalog"
	"github.com/korelia/storefront-backend/internal/dto"
	"github.com/korelia/storefront-backend/internal/models"
	"github.com/korelia/storefront-backend/internal/notify"
	"github.com/korelia/storefront-backend/internal/services"
)

type AdminHandler struct {
	adminService *services.AdminService
	catalog      *catalog.Catalog
	outbox       *notify.Outbox
}

func NewAdminHandler(adminService *services.AdminService, cat *catalog.Catalog, outbox *notify.Outbox) *AdminHandler {
	return &AdminHandler{adminService: adminService, catalog: cat, outbox: outbox}
}

func (h *AdminHandler) ListOrders(c *fiber.Ctx) error {
	orders, err := h.adminService.ListOrders(c.Query("status"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"orders": orders})
}

func (h *AdminHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	var req dto.UpdateOrderStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	order, err := h.adminService.UpdateStatus(c.UserContext(), c.Params("id"), &req)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(order)
}

// UpdateStock sets, adjusts or untracks the stock of one product.
func (h *AdminHandler) UpdateStock(c *fiber.Ctx) error {
	var req dto.StockRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	id := c.Params("id")

	var (
		p   models.Product
		err error
	)
	switch {
	case req.Untrack:
		p, err = h.catalog.SetStock(id, nil)
	case req.Stock != nil:
		p, err = h.catalog.SetStock(id, req.Stock)
	case req.Delta != nil:
		p, err = h.catalog.AdjustStock(id, *req.Delta)
	default:
		return fail(c, fiber.StatusBadRequest, "one of stock, delta or untrack is required")
	}
	if err != nil {
		return serviceError(c, err)
	}
	slog.Info("stock updated", "product_id", id, "request_id", requestID(c))
	return c.JSON(p)
}

func (h *AdminHandler) ReloadCatalog(c *fiber.Ctx) error {
	if err := h.catalog.Reload(); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"products": h.catalog.Len()})
}

// Outbox reports delivery counts and the most recent messages.
func (h *AdminHandler) Outbox(c *fiber.Ctx) error {
	stats, err := h.outbox.Stats(c.UserContext())
	if err != nil {
		return serviceError(c, err)
	}
	recent, err := h.outbox.Recent(c.UserContext(), c.QueryInt("limit", 20))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"stats": stats, "recent": recent})
}
