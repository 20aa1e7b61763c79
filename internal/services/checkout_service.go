package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/korelia/storefront-backend/internal/catalog"
	"github.com/korelia/storefront-backend/internal/config"
	"github.com/korelia/storefront-backend/internal/dto"
	"github.com/korelia/storefront-backend/internal/models"
	"github.com/korelia/storefront-backend/internal/payments"
)

var (
	ErrUnknownProduct = errors.New("unknown product")
	ErrOutOfStock     = errors.New("not enough stock")
	ErrCheckout       = errors.New("checkout session could not be created")
)

const maxQuantityPerItem = 10

type CheckoutService struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	gateway payments.Gateway
}

func NewCheckoutService(cfg *config.Config, cat *catalog.Catalog, gateway payments.Gateway) *CheckoutService {
	return &CheckoutService{cfg: cfg, catalog: cat, gateway: gateway}
}

// Checkout prices the cart from the catalog and opens a payment session.
// user is nil for guest checkout.
func (s *CheckoutService) Checkout(ctx context.Context, req *dto.CheckoutRequest, user *models.User) (*dto.CheckoutResponse, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	// Lines naming the same product by id or by slug merge into one.
	var products []models.Product
	qty := map[string]int{}
	for _, it := range req.Items {
		p, ok := s.catalog.ByID(it.ID)
		if !ok {
			p, ok = s.catalog.BySlug(it.ID)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, it.ID)
		}
		if _, seen := qty[p.ID]; !seen {
			products = append(products, p)
		}
		qty[p.ID] += it.Quantity
	}

	var (
		lines    []payments.CheckoutLine
		items    []models.OrderItem
		subtotal int64
	)
	for _, p := range products {
		q := qty[p.ID]
		if q > maxQuantityPerItem {
			return nil, fmt.Errorf("%w: quantity must be at most %d", ErrValidation, maxQuantityPerItem)
		}
		if !p.Available(q) {
			return nil, fmt.Errorf("%w: %s", ErrOutOfStock, p.Name)
		}
		lines = append(lines, payments.CheckoutLine{
			Name:       p.Name,
			Image:      p.Image,
			UnitAmount: p.PriceCents,
			Quantity:   int64(q),
		})
		items = append(items, models.OrderItem{ProductID: p.ID, Quantity: q})
		subtotal += p.PriceCents * int64(q)
	}

	shipping, label := s.shippingFor(subtotal)
	metadata, err := encodeItems(items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}

	email := req.Email
	if user != nil {
		metadata[payments.MetadataUserID] = user.ID
		email = user.Email
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, payments.CheckoutRequest{
		Lines:               lines,
		Currency:            s.cfg.Currency,
		CustomerEmail:       email,
		SuccessURL:          s.cfg.FrontendURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:           s.cfg.FrontendURL + "/cart",
		ShippingAmount:      shipping,
		ShippingLabel:       label,
		AllowedCountries:    s.cfg.ShippingCountries,
		AllowPromotionCodes: true,
		Metadata:            metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckout, err)
	}
	return &dto.CheckoutResponse{ID: sess.ID, URL: sess.URL}, nil
}

func (s *CheckoutService) shippingFor(subtotal int64) (int64, string) {
	if s.cfg.FreeShippingThresholdCents > 0 && subtotal >= s.cfg.FreeShippingThresholdCents {
		return 0, "Free shipping"
	}
	return s.cfg.ShippingFlatCents, "Standard shipping"
}
