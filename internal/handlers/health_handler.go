package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/korelia/storefront-backend/internal/catalog"
	"github.com/korelia/storefront-backend/internal/dto"
	"github.com/korelia/storefront-backend/internal/notify"
)

type HealthHandler struct {
	catalog *catalog.Catalog
	outbox  *notify.Outbox
}

func NewHealthHandler(cat *catalog.Catalog, outbox *notify.Outbox) *HealthHandler {
	return &HealthHandler{catalog: cat, outbox: outbox}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	outboxStatus := "ok"
	if _, err := h.outbox.Stats(c.UserContext()); err != nil {
		outboxStatus = "unhealthy: " + err.Error()
	}

	return c.JSON(dto.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Products:  h.catalog.Len(),
		Outbox:    outboxStatus,
	})
}
