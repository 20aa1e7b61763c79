// Package payments is the storefront's boundary with the payment provider.
// Callers work with the domain types below; StripeGateway maps them onto
// the Stripe API.
package payments

import (
	"context"
	"errors"
)

const (
	EventCheckoutSessionCompleted      = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncPaymentFailed    = "checkout.session.async_payment_failed"
)

// Metadata keys smuggled through checkout sessions to the webhook.
const (
	MetadataItems  = "items"
	MetadataUserID = "user_id"
)

var (
	ErrSignatureInvalid = errors.New("webhook signature verification failed")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	ListLineItems(ctx context.Context, sessionID string) ([]LineItem, error)
	DiscountCreator
	// ParseEvent verifies signature against payload and decodes the event.
	ParseEvent(payload []byte, signature string) (*Event, error)
}

// DiscountCreator issues single-use discount codes.
type DiscountCreator interface {
	CreateDiscount(ctx context.Context, req DiscountRequest) (*Discount, error)
}

type CheckoutLine struct {
	Name       string
	Image      string
	UnitAmount int64
	Quantity   int64
}

type CheckoutRequest struct {
	Lines               []CheckoutLine
	Currency            string
	CustomerEmail       string
	SuccessURL          string
	CancelURL           string
	ShippingAmount      int64
	ShippingLabel       string
	AllowedCountries    []string
	AllowPromotionCodes bool
	Metadata            map[string]string
}

type Address struct {
	Line1      string
	Line2      string
	City       string
	PostalCode string
	State      string
	Country    string
}

type ShippingDetails struct {
	Name    string
	Address *Address
}

type CheckoutSession struct {
	ID             string
	URL            string
	PaymentStatus  string
	AmountTotal    int64
	AmountSubtotal int64
	ShippingCost   int64
	Currency       string
	Email          string
	CustomerName   string
	Metadata       map[string]string
	Shipping       *ShippingDetails
}

type LineItem struct {
	Description string
	Quantity    int64
	AmountTotal int64
	Currency    string
}

type DiscountRequest struct {
	Code          string
	Name          string
	AmountOff     int64
	Currency      string
	MinimumAmount int64
	Metadata      map[string]string
}

type Discount struct {
	Code            string
	CouponID        string
	PromotionCodeID string
}

type Event struct {
	ID      string
	Type    string
	Session *CheckoutSession
}
