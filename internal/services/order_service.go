package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/korelia/storefront-backend/internal/catalog"
	"github.com/korelia/storefront-backend/internal/config"
	"github.com/korelia/storefront-backend/internal/metrics"
	"github.com/korelia/storefront-backend/internal/models"
	"github.com/korelia/storefront-backend/internal/notify"
	"github.com/korelia/storefront-backend/internal/payments"
	"github.com/korelia/storefront-backend/internal/rewards"
	"github.com/korelia/storefront-backend/internal/store"
)

var ErrPersistence = errors.New("order could not be recorded")

// OrderFile is the slice of store.File the order flow needs.
type OrderFile interface {
	Load() ([]models.Order, error)
	Update(fn func(orders []models.Order) ([]models.Order, bool, error)) error
}

var _ OrderFile = (*store.File[models.Order])(nil)

// OrderService turns completed checkout sessions into orders.
type OrderService struct {
	orders    OrderFile
	catalog   *catalog.Catalog
	ledger    *rewards.Ledger
	gateway   payments.Gateway
	notifier  Notifier
	templates notify.Templates
	now       func() time.Time

	// ingestMu serializes ingestion so the existence check and the append
	// see the same orders file.
	ingestMu sync.Mutex
}

func NewOrderService(cfg *config.Config, orders OrderFile, cat *catalog.Catalog, ledger *rewards.Ledger, gateway payments.Gateway, notifier Notifier) *OrderService {
	return &OrderService{
		orders:    orders,
		catalog:   cat,
		ledger:    ledger,
		gateway:   gateway,
		notifier:  notifier,
		templates: notify.Templates{ShopName: cfg.ShopName, FrontendURL: cfg.FrontendURL},
		now:       time.Now,
	}
}

type IngestResult struct {
	Order     *models.Order
	EventType string
	Duplicate bool
	Ignored   bool
}

// HandleEvent verifies a raw webhook delivery and ingests it when it is a
// completed checkout session. Signature problems come back as
// payments.ErrSignatureInvalid; only ErrPersistence is worth a retry.
func (s *OrderService) HandleEvent(ctx context.Context, payload []byte, signature string) (*IngestResult, error) {
	evt, err := s.gateway.ParseEvent(payload, signature)
	if err != nil {
		metrics.RecordWebhookEvent("unknown", "rejected")
		return nil, err
	}

	if evt.Session == nil {
		metrics.RecordWebhookEvent(evt.Type, "ignored")
		return &IngestResult{EventType: evt.Type, Ignored: true}, nil
	}

	var res *IngestResult
	switch evt.Type {
	case payments.EventCheckoutSessionCompleted:
		res, err = s.IngestSession(ctx, evt.Session)
	case payments.EventCheckoutAsyncPaymentSucceeded:
		res, err = s.SettlePayment(ctx, evt.Session, true)
	case payments.EventCheckoutAsyncPaymentFailed:
		res, err = s.SettlePayment(ctx, evt.Session, false)
	default:
		metrics.RecordWebhookEvent(evt.Type, "ignored")
		return &IngestResult{EventType: evt.Type, Ignored: true}, nil
	}
	if err != nil {
		metrics.RecordWebhookEvent(evt.Type, "failed")
		return nil, err
	}
	res.EventType = evt.Type
	switch {
	case res.Ignored:
		metrics.RecordWebhookEvent(evt.Type, "ignored")
	case res.Duplicate:
		metrics.RecordWebhookEvent(evt.Type, "duplicate")
	default:
		metrics.RecordWebhookEvent(evt.Type, "created")
	}
	return res, nil
}

// IngestSession records the order for sess exactly once. Rewards, stock
// and email failures are logged and do not fail ingestion.
func (s *OrderService) IngestSession(ctx context.Context, sess *payments.CheckoutSession) (*IngestResult, error) {
	if existing, err := s.find(sess.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	} else if existing != nil {
		slog.Info("duplicate checkout session ignored", "order_id", sess.ID)
		return &IngestResult{Order: existing, Duplicate: true}, nil
	}

	lineItems, err := s.gateway.ListLineItems(ctx, sess.ID)
	if err != nil {
		slog.Warn("line item enrichment failed", "order_id", sess.ID, "error", err)
		lineItems = nil
	}
	items, err := decodeItems(sess.Metadata)
	if err != nil {
		slog.Warn("unreadable item metadata", "order_id", sess.ID, "error", err)
	}

	order := s.buildOrder(sess, s.enrichItems(items), lineItems)

	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	if existing, err := s.find(sess.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	} else if existing != nil {
		return &IngestResult{Order: existing, Duplicate: true}, nil
	}

	if order.IsPaid() {
		if err := s.ledger.CreditOrder(order); err != nil {
			slog.Error("rewards credit failed", "order_id", order.ID, "user_id", order.UserID, "error", err)
			order.RewardsPendingEmail = rewards.NormalizeEmail(order.Email)
		}
	}

	duplicate := false
	err = s.orders.Update(func(orders []models.Order) ([]models.Order, bool, error) {
		for _, o := range orders {
			if o.ID == order.ID {
				duplicate = true
				return orders, false, nil
			}
		}
		return append(orders, *order), true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if duplicate {
		return &IngestResult{Order: order, Duplicate: true}, nil
	}

	metrics.RecordOrderCreated(order.Currency, order.AmountTotal)
	slog.Info("order recorded", "order_id", order.ID, "user_id", order.UserID,
		"amount_total", order.AmountTotal, "currency", order.Currency, "rewards_points", order.RewardsPoints)

	// Unpaid orders reserve their stock until the payment settles.
	if _, err := s.catalog.DecrementStock(order.Items); err != nil {
		slog.Error("stock decrement failed", "order_id", order.ID, "error", err)
	}

	if order.IsPaid() {
		enqueue(ctx, s.notifier, s.templates.OrderConfirmation(order))
	}
	return &IngestResult{Order: order}, nil
}

// SettlePayment resolves an order recorded while its payment was still
// processing. A success credits rewards and sends the confirmation; a
// failure cancels the order and puts its stock back. Sessions with no
// recorded order are ingested on success and ignored on failure.
func (s *OrderService) SettlePayment(ctx context.Context, sess *payments.CheckoutSession, succeeded bool) (*IngestResult, error) {
	s.ingestMu.Lock()
	found, settled, err := s.settleLocked(sess.ID, succeeded)
	s.ingestMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if !found {
		if !succeeded {
			return &IngestResult{Ignored: true}, nil
		}
		paid := *sess
		paid.PaymentStatus = models.PaymentStatusPaid
		return s.IngestSession(ctx, &paid)
	}
	if settled == nil {
		return &IngestResult{Duplicate: true}, nil
	}

	if succeeded {
		slog.Info("async payment settled", "order_id", settled.ID, "rewards_points", settled.RewardsPoints)
		enqueue(ctx, s.notifier, s.templates.OrderConfirmation(settled))
		return &IngestResult{Order: settled}, nil
	}

	slog.Warn("async payment failed, order canceled", "order_id", settled.ID)
	for _, it := range settled.Items {
		if _, err := s.catalog.AdjustStock(it.ProductID, it.Quantity); err != nil && !errors.Is(err, catalog.ErrStockUntracked) {
			slog.Error("restock failed", "order_id", settled.ID, "product_id", it.ProductID, "error", err)
		}
	}
	return &IngestResult{Order: settled}, nil
}

// settleLocked updates an awaiting_payment order in place. settled is nil
// when the order exists but was already settled.
func (s *OrderService) settleLocked(id string, succeeded bool) (found bool, settled *models.Order, err error) {
	err = s.orders.Update(func(orders []models.Order) ([]models.Order, bool, error) {
		for i := range orders {
			o := &orders[i]
			if o.ID != id {
				continue
			}
			found = true
			if o.Status != models.OrderStatusAwaitingPayment {
				return orders, false, nil
			}

			now := s.now().UTC()
			if succeeded {
				o.PaymentStatus = models.PaymentStatusPaid
				o.SetStatus(models.OrderStatusPaid, "payment confirmed", now)
				// Orders file before users file, same as Backfill.
				if err := s.ledger.CreditOrder(o); err != nil {
					slog.Error("rewards credit failed", "order_id", o.ID, "user_id", o.UserID, "error", err)
					o.RewardsPendingEmail = rewards.NormalizeEmail(o.Email)
				}
			} else {
				o.PaymentStatus = models.PaymentStatusUnpaid
				o.SetStatus(models.OrderStatusCanceled, "payment failed", now)
			}
			cp := *o
			settled = &cp
			return orders, true, nil
		}
		return orders, false, nil
	})
	return found, settled, err
}

func (s *OrderService) buildOrder(sess *payments.CheckoutSession, items []models.OrderItem, lineItems []payments.LineItem) *models.Order {
	now := s.now().UTC()
	o := &models.Order{
		ID:             sess.ID,
		UserID:         sess.Metadata[payments.MetadataUserID],
		PaymentStatus:  sess.PaymentStatus,
		AmountTotal:    sess.AmountTotal,
		AmountSubtotal: sess.AmountSubtotal,
		ShippingCost:   sess.ShippingCost,
		Currency:       sess.Currency,
		Email:          rewards.NormalizeEmail(sess.Email),
		CustomerName:   sess.CustomerName,
		Items:          items,
		CreatedAt:      now,
	}
	if len(items) == 0 {
		for _, li := range lineItems {
			o.StripeLineItems = append(o.StripeLineItems, models.LineItemSnapshot{
				Description: li.Description,
				Quantity:    li.Quantity,
				AmountTotal: li.AmountTotal,
			})
		}
	}
	if sh := sess.Shipping; sh != nil {
		o.Shipping.Name = nonEmpty(sh.Name)
		if a := sh.Address; a != nil {
			o.Shipping.Line1 = nonEmpty(a.Line1)
			o.Shipping.Line2 = nonEmpty(a.Line2)
			o.Shipping.City = nonEmpty(a.City)
			o.Shipping.PostalCode = nonEmpty(a.PostalCode)
			o.Shipping.State = nonEmpty(a.State)
			o.Shipping.Country = nonEmpty(a.Country)
		}
	}
	if o.IsPaid() {
		o.SetStatus(models.OrderStatusPaid, "", now)
	} else {
		o.SetStatus(models.OrderStatusAwaitingPayment, "payment processing", now)
	}
	return o
}

// enrichItems fills names, slugs and unit prices from the catalog.
func (s *OrderService) enrichItems(items []models.OrderItem) []models.OrderItem {
	for i := range items {
		p, ok := s.catalog.ByID(items[i].ProductID)
		if !ok {
			continue
		}
		items[i].Slug = p.Slug
		items[i].Name = p.Name
		items[i].UnitAmount = p.PriceCents
	}
	return items
}

func (s *OrderService) find(id string) (*models.Order, error) {
	orders, err := s.orders.Load()
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].ID == id {
			return &orders[i], nil
		}
	}
	return nil, nil
}

// ForUser lists orders placed by the user account or under its email, newest first.
func (s *OrderService) ForUser(userID, email string) ([]models.Order, error) {
	orders, err := s.orders.Load()
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	email = rewards.NormalizeEmail(email)

	out := []models.Order{}
	for _, o := range orders {
		if (userID != "" && o.UserID == userID) || (email != "" && rewards.NormalizeEmail(o.Email) == email) {
			out = append(out, o)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// itemRef is the compact form of a cart line stored in session metadata.
type itemRef struct {
	ID string `json:"id"`
	Q  int    `json:"q"`
}

// maxMetadataValue is Stripe's limit on the length of one metadata value.
const maxMetadataValue = 500

func itemsChunkKey(i int) string {
	return fmt.Sprintf("%s_%d", payments.MetadataItems, i)
}

// encodeItems packs cart lines into session metadata. Carts that do not fit
// one value are split into JSON arrays under items_0, items_1, ...
func encodeItems(items []models.OrderItem) (map[string]string, error) {
	refs := make([]itemRef, 0, len(items))
	for _, it := range items {
		refs = append(refs, itemRef{ID: it.ProductID, Q: it.Quantity})
	}
	b, err := json.Marshal(refs)
	if err != nil {
		return nil, err
	}
	if len(b) <= maxMetadataValue {
		return map[string]string{payments.MetadataItems: string(b)}, nil
	}

	meta := map[string]string{}
	var chunk []json.RawMessage
	size := 1 // opening bracket
	flush := func() error {
		raw, err := json.Marshal(chunk)
		if err != nil {
			return err
		}
		meta[itemsChunkKey(len(meta))] = string(raw)
		chunk, size = nil, 1
		return nil
	}
	for _, r := range refs {
		rb, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		// Each element costs its length plus a separator or closing bracket.
		if len(chunk) > 0 && size+len(rb)+1 > maxMetadataValue {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		chunk = append(chunk, rb)
		size += len(rb) + 1
	}
	if len(chunk) > 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	return meta, nil
}

// decodeItems reads the lines written by encodeItems, single value or chunked.
func decodeItems(meta map[string]string) ([]models.OrderItem, error) {
	if raw, ok := meta[payments.MetadataItems]; ok {
		return decodeRefs(nil, raw)
	}
	var items []models.OrderItem
	for i := 0; ; i++ {
		raw, ok := meta[itemsChunkKey(i)]
		if !ok {
			return items, nil
		}
		var err error
		if items, err = decodeRefs(items, raw); err != nil {
			return items, err
		}
	}
}

func decodeRefs(items []models.OrderItem, raw string) ([]models.OrderItem, error) {
	if raw == "" {
		return items, nil
	}
	var refs []itemRef
	if err := json.Unmarshal([]byte(raw), &refs); err != nil {
		return items, err
	}
	for _, r := range refs {
		if r.ID == "" || r.Q <= 0 {
			continue
		}
		items = append(items, models.OrderItem{ProductID: r.ID, Quantity: r.Q})
	}
	return items, nil
}

func sortNewestFirst(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
