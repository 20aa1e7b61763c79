package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeGateway talks to Stripe through a dedicated client, leaving the
// package-level stripe.Key untouched.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api, webhookSecret: webhookSecret}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:                stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:          stripe.String(req.SuccessURL),
		CancelURL:           stripe.String(req.CancelURL),
		AllowPromotionCodes: stripe.Bool(req.AllowPromotionCodes),
	}
	params.Context = ctx

	for _, line := range req.Lines {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(line.Name),
		}
		if line.Image != "" {
			product.Images = stripe.StringSlice([]string{line.Image})
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(line.UnitAmount),
			},
			Quantity: stripe.Int64(line.Quantity),
		})
	}

	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if len(req.AllowedCountries) > 0 {
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(req.AllowedCountries),
		}
	}
	params.ShippingOptions = []*stripe.CheckoutSessionShippingOptionParams{{
		ShippingRateData: &stripe.CheckoutSessionShippingOptionShippingRateDataParams{
			Type:        stripe.String("fixed_amount"),
			DisplayName: stripe.String(req.ShippingLabel),
			FixedAmount: &stripe.CheckoutSessionShippingOptionShippingRateDataFixedAmountParams{
				Amount:   stripe.Int64(req.ShippingAmount),
				Currency: stripe.String(req.Currency),
			},
		},
	}}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return sessionFromStripe(s), nil
}

func (g *StripeGateway) ListLineItems(ctx context.Context, sessionID string) ([]LineItem, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{
		Session: stripe.String(sessionID),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(100)

	var items []LineItem
	iter := g.api.CheckoutSessions.ListLineItems(params)
	for iter.Next() {
		li := iter.LineItem()
		items = append(items, LineItem{
			Description: li.Description,
			Quantity:    li.Quantity,
			AmountTotal: li.AmountTotal,
			Currency:    string(li.Currency),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list line items for %s: %w", sessionID, err)
	}
	return items, nil
}

// CreateDiscount creates a one-off coupon and a promotion code restricted to a
// single redemption and a minimum order amount.
func (g *StripeGateway) CreateDiscount(ctx context.Context, req DiscountRequest) (*Discount, error) {
	couponParams := &stripe.CouponParams{
		AmountOff:      stripe.Int64(req.AmountOff),
		Currency:       stripe.String(req.Currency),
		Duration:       stripe.String(string(stripe.CouponDurationOnce)),
		Name:           stripe.String(req.Name),
		MaxRedemptions: stripe.Int64(1),
	}
	couponParams.Context = ctx
	for k, v := range req.Metadata {
		couponParams.AddMetadata(k, v)
	}

	c, err := g.api.Coupons.New(couponParams)
	if err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}

	promoParams := &stripe.PromotionCodeParams{
		Coupon:         stripe.String(c.ID),
		Code:           stripe.String(req.Code),
		MaxRedemptions: stripe.Int64(1),
	}
	if req.MinimumAmount > 0 {
		promoParams.Restrictions = &stripe.PromotionCodeRestrictionsParams{
			MinimumAmount:         stripe.Int64(req.MinimumAmount),
			MinimumAmountCurrency: stripe.String(req.Currency),
		}
	}
	promoParams.Context = ctx
	for k, v := range req.Metadata {
		promoParams.AddMetadata(k, v)
	}

	pc, err := g.api.PromotionCodes.New(promoParams)
	if err != nil {
		return nil, fmt.Errorf("create promotion code: %w", err)
	}

	return &Discount{Code: pc.Code, CouponID: c.ID, PromotionCodeID: pc.ID}, nil
}

func (g *StripeGateway) ParseEvent(payload []byte, signature string) (*Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) ||
			errors.Is(err, webhook.ErrInvalidHeader) ||
			errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrTooOld) {
			return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	out := &Event{ID: evt.ID, Type: string(evt.Type)}
	if strings.HasPrefix(out.Type, "checkout.session.") && evt.Data != nil {
		var s stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%w: decode checkout session: %v", ErrMalformedEvent, err)
		}
		out.Session = sessionFromStripe(&s)
	}
	return out, nil
}

func sessionFromStripe(s *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:             s.ID,
		URL:            s.URL,
		PaymentStatus:  string(s.PaymentStatus),
		AmountTotal:    s.AmountTotal,
		AmountSubtotal: s.AmountSubtotal,
		Currency:       string(s.Currency),
		Email:          s.CustomerEmail,
		Metadata:       s.Metadata,
	}
	if s.CustomerDetails != nil {
		if s.CustomerDetails.Email != "" {
			out.Email = s.CustomerDetails.Email
		}
		out.CustomerName = s.CustomerDetails.Name
	}
	if s.ShippingCost != nil {
		out.ShippingCost = s.ShippingCost.AmountTotal
	}
	if sd := s.ShippingDetails; sd != nil {
		out.Shipping = &ShippingDetails{Name: sd.Name}
		if sd.Address != nil {
			out.Shipping.Address = &Address{
				Line1:      sd.Address.Line1,
				Line2:      sd.Address.Line2,
				City:       sd.Address.City,
				PostalCode: sd.Address.PostalCode,
				State:      sd.Address.State,
				Country:    sd.Address.Country,
			}
		}
		if out.CustomerName == "" {
			out.CustomerName = sd.Name
		}
	}
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	return out
}
