package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/korelia/storefront-backend/internal/catalog"
	"github.com/korelia/storefront-backend/internal/dto"
	"github.com/korelia/storefront-backend/internal/middleware"
	"github.com/korelia/storefront-backend/internal/services"
)

type ProductHandler struct {
	catalog       *catalog.Catalog
	reviewService *services.ReviewService
}

func NewProductHandler(cat *catalog.Catalog, reviewService *services.ReviewService) *ProductHandler {
	return &ProductHandler{catalog: cat, reviewService: reviewService}
}

func (h *ProductHandler) List(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"products": h.catalog.List(c.Query("category"))})
}

func (h *ProductHandler) Get(c *fiber.Ctx) error {
	p, ok := h.catalog.BySlug(c.Params("slug"))
	if !ok {
		return fail(c, fiber.StatusNotFound, "Product not found")
	}
	return c.JSON(p)
}

func (h *ProductHandler) Reviews(c *fiber.Ctx) error {
	reviews, err := h.reviewService.List(c.Params("slug"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"reviews": reviews})
}

func (h *ProductHandler) CreateReview(c *fiber.Ctx) error {
	var req dto.CreateReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	review, err := h.reviewService.Create(middleware.CurrentUser(c), c.Params("slug"), &req)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(review)
}
