package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/korelia/storefront-backend/internal/dto"
	"github.com/korelia/storefront-backend/internal/middleware"
	"github.com/korelia/storefront-backend/internal/rewards"
)

const historyLimit = 50

type RewardsHandler struct {
	ledger *rewards.Ledger
}

func NewRewardsHandler(ledger *rewards.Ledger) *RewardsHandler {
	return &RewardsHandler{ledger: ledger}
}

// Summary returns the balance, the latest history entries and the tier catalog.
func (h *RewardsHandler) Summary(c *fiber.Ctx) error {
	sum, err := h.ledger.Summary(middleware.CurrentUser(c).ID, historyLimit)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(sum)
}

func (h *RewardsHandler) Redeem(c *fiber.Ctx) error {
	var req dto.RedeemRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if req.Tier == "" {
		return fail(c, fiber.StatusBadRequest, "tier is required")
	}

	red, err := h.ledger.Redeem(c.UserContext(), middleware.CurrentUser(c).ID, req.Tier)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(red)
}
