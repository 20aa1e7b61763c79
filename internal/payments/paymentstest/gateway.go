// Package paymentstest provides an in-memory payments.Gateway for tests.
package paymentstest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/korelia/storefront-backend/internal/payments"
)

var ErrForced = errors.New("forced gateway failure")

// Gateway records every call and serves canned responses. Set the Fail*
// fields to make the matching call return ErrForced.
type Gateway struct {
	mu sync.Mutex

	Sessions  []payments.CheckoutRequest
	Discounts []payments.DiscountRequest
	LineItems map[string][]payments.LineItem
	// Events maps a signature string to the event ParseEvent returns for it.
	Events map[string]*payments.Event

	FailCheckout  bool
	FailLineItems bool
	FailDiscount  bool

	seq int
}

func New() *Gateway {
	return &Gateway{
		LineItems: map[string][]payments.LineItem{},
		Events:    map[string]*payments.Event{},
	}
}

func (g *Gateway) CreateCheckoutSession(_ context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FailCheckout {
		return nil, ErrForced
	}
	g.Sessions = append(g.Sessions, req)
	g.seq++
	id := fmt.Sprintf("cs_test_%d", g.seq)
	return &payments.CheckoutSession{
		ID:       id,
		URL:      "https://checkout.test/" + id,
		Currency: req.Currency,
		Email:    req.CustomerEmail,
		Metadata: req.Metadata,
	}, nil
}

func (g *Gateway) ListLineItems(_ context.Context, sessionID string) ([]payments.LineItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FailLineItems {
		return nil, ErrForced
	}
	return g.LineItems[sessionID], nil
}

func (g *Gateway) CreateDiscount(_ context.Context, req payments.DiscountRequest) (*payments.Discount, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Discounts = append(g.Discounts, req)
	if g.FailDiscount {
		return nil, ErrForced
	}
	g.seq++
	return &payments.Discount{
		Code:            req.Code,
		CouponID:        fmt.Sprintf("coupon_%d", g.seq),
		PromotionCodeID: fmt.Sprintf("promo_%d", g.seq),
	}, nil
}

// ParseEvent looks the signature up in Events. Unknown signatures fail
// verification the way the real gateway does.
func (g *Gateway) ParseEvent(_ []byte, signature string) (*payments.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	evt, ok := g.Events[signature]
	if !ok {
		return nil, payments.ErrSignatureInvalid
	}
	return evt, nil
}

// AddEvent registers evt under signature and returns the signature.
func (g *Gateway) AddEvent(signature string, evt *payments.Event) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Events[signature] = evt
	return signature
}

func (g *Gateway) DiscountCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Discounts)
}

func (g *Gateway) SessionCalls() []payments.CheckoutRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]payments.CheckoutRequest(nil), g.Sessions...)
}
