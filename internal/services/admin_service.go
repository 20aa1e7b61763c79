package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/korelia/storefront-backend/internal/config"
	"github.com/korelia/storefront-backend/internal/dto"
	"github.com/korelia/storefront-backend/internal/models"
	"github.com/korelia/storefront-backend/internal/notify"
	"github.com/korelia/storefront-backend/internal/store"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// statusRank orders the fulfilment chain; canceled sits outside it.
var statusRank = map[string]int{
	models.OrderStatusPaid:      0,
	models.OrderStatusPreparing: 1,
	models.OrderStatusShipped:   2,
	models.OrderStatusDelivered: 3,
}

// CanTransition reports whether an order may move from one status to another.
// Orders move forward along paid → preparing → shipped → delivered and can be
// canceled until they are delivered.
func CanTransition(from, to string) bool {
	if from == models.OrderStatusCanceled || from == models.OrderStatusDelivered {
		return false
	}
	if to == models.OrderStatusCanceled {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

type AdminService struct {
	orders    *store.File[models.Order]
	notifier  Notifier
	templates notify.Templates
	now       func() time.Time
}

func NewAdminService(cfg *config.Config, orders *store.File[models.Order], notifier Notifier) *AdminService {
	return &AdminService{
		orders:    orders,
		notifier:  notifier,
		templates: notify.Templates{ShopName: cfg.ShopName, FrontendURL: cfg.FrontendURL},
		now:       time.Now,
	}
}

// ListOrders returns all orders, newest first, optionally filtered by status.
func (s *AdminService) ListOrders(status string) ([]models.Order, error) {
	orders, err := s.orders.Load()
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if status == "" || strings.EqualFold(o.Status, status) {
			out = append(out, o)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *AdminService) UpdateStatus(ctx context.Context, orderID string, req *dto.UpdateOrderStatusRequest) (*models.Order, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	var updated models.Order
	err := s.orders.Update(func(orders []models.Order) ([]models.Order, bool, error) {
		for i := range orders {
			o := &orders[i]
			if o.ID != orderID {
				continue
			}
			if !CanTransition(o.Status, req.Status) {
				return nil, false, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, o.Status, req.Status)
			}
			o.SetStatus(req.Status, strings.TrimSpace(req.Note), s.now().UTC())
			if t := req.Tracking; t != nil {
				o.Tracking = &models.Tracking{
					Carrier: strings.TrimSpace(t.Carrier),
					Number:  strings.TrimSpace(t.Number),
					URL:     strings.TrimSpace(t.URL),
				}
			}
			updated = *o
			return orders, true, nil
		}
		return nil, false, ErrOrderNotFound
	})
	if err != nil {
		return nil, err
	}

	slog.Info("order status updated", "order_id", orderID, "status", updated.Status)
	if updated.Status == models.OrderStatusShipped {
		enqueue(ctx, s.notifier, s.templates.OrderShipped(&updated))
	}
	return &updated, nil
}
