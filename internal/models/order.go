package models

import "time"

const (
	// OrderStatusAwaitingPayment holds orders whose delayed payment method
	// has not settled yet.
	OrderStatusAwaitingPayment = "awaiting_payment"
	OrderStatusPaid            = "paid"
	OrderStatusPreparing       = "preparing"
	OrderStatusShipped         = "shipped"
	OrderStatusDelivered       = "delivered"
	OrderStatusCanceled        = "canceled"
)

const (
	PaymentStatusPaid   = "paid"
	PaymentStatusUnpaid = "unpaid"
)

// Order is created once per completed checkout session. ID is the session id.
type Order struct {
	ID              string               `json:"id"`
	UserID          string               `json:"user_id,omitempty"`
	PaymentStatus   string               `json:"payment_status"`
	AmountTotal     int64                `json:"amount_total"`
	AmountSubtotal  int64                `json:"amount_subtotal"`
	ShippingCost    int64                `json:"shipping_cost"`
	Currency        string               `json:"currency"`
	Email           string               `json:"email"`
	CustomerName    string               `json:"customer_name"`
	Items           []OrderItem          `json:"items,omitempty"`
	StripeLineItems []LineItemSnapshot   `json:"stripe_line_items,omitempty"`
	Shipping        ShippingAddress      `json:"shipping"`
	Status          string               `json:"status"`
	StatusHistory   []StatusHistoryEntry `json:"status_history"`
	Tracking        *Tracking            `json:"tracking,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`

	RewardsPoints         *int       `json:"rewards_points,omitempty"`
	RewardsCreditedUserID string     `json:"rewards_credited_user_id,omitempty"`
	RewardsCreditedAt     *time.Time `json:"rewards_credited_at,omitempty"`
	RewardsPendingEmail   string     `json:"rewards_pending_email,omitempty"`
	RewardsBackfillDone   bool       `json:"rewards_backfill_done,omitempty"`
	RewardsBackfillPoints *int       `json:"rewards_backfill_points,omitempty"`
}

// RewardsBase is the amount points are computed on: subtotal, or total when no subtotal was recorded.
func (o *Order) RewardsBase() int64 {
	if o.AmountSubtotal > 0 {
		return o.AmountSubtotal
	}
	return o.AmountTotal
}

func (o *Order) RewardsSettled() bool {
	return o.RewardsCreditedUserID != "" || o.RewardsBackfillDone
}

func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusPaid
}

// SetStatus moves the order to status and appends the audit entry.
func (o *Order) SetStatus(status, note string, at time.Time) {
	o.Status = status
	o.StatusHistory = append(o.StatusHistory, StatusHistoryEntry{Status: status, At: at, Note: note})
}

type OrderItem struct {
	ProductID  string `json:"product_id"`
	Slug       string `json:"slug,omitempty"`
	Name       string `json:"name,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitAmount int64  `json:"unit_amount,omitempty"`
}

type LineItemSnapshot struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	AmountTotal int64  `json:"amount_total"`
}

// ShippingAddress fields are null when the session carried no shipping details.
type ShippingAddress struct {
	Name       *string `json:"name"`
	Line1      *string `json:"line1"`
	Line2      *string `json:"line2"`
	City       *string `json:"city"`
	PostalCode *string `json:"postal_code"`
	State      *string `json:"state"`
	Country    *string `json:"country"`
}

type StatusHistoryEntry struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

type Tracking struct {
	Carrier string `json:"carrier,omitempty"`
	Number  string `json:"number,omitempty"`
	URL     string `json:"url,omitempty"`
}
