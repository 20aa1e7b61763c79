package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korelia/storefront-backend/internal/dto"
	"github.com/korelia/storefront-backend/internal/models"
	"github.com/korelia/storefront-backend/internal/notify"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{models.OrderStatusPaid, models.OrderStatusPreparing, true},
		{models.OrderStatusPaid, models.OrderStatusShipped, true},
		{models.OrderStatusPreparing, models.OrderStatusDelivered, true},
		{models.OrderStatusShipped, models.OrderStatusPreparing, false},
		{models.OrderStatusPaid, models.OrderStatusPaid, false},
		{models.OrderStatusShipped, models.OrderStatusCanceled, true},
		{models.OrderStatusDelivered, models.OrderStatusCanceled, false},
		{models.OrderStatusCanceled, models.OrderStatusPaid, false},
		{models.OrderStatusPaid, "refunded", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func seedOrders(t *testing.T, env *testEnv) {
	t.Helper()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var orders []models.Order
	for i, id := range []string{"cs_old", "cs_mid", "cs_new"} {
		o := models.Order{
			ID: id, Email: "mina@example.com", PaymentStatus: models.PaymentStatusPaid,
			AmountTotal: 2789, Currency: "eur", CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		o.SetStatus(models.OrderStatusPaid, "", o.CreatedAt)
		orders = append(orders, o)
	}
	orders[1].SetStatus(models.OrderStatusPreparing, "", base.Add(2*time.Hour))
	require.NoError(t, env.stores.Orders.Save(orders))
}

func TestListOrders(t *testing.T) {
	env := newTestEnv(t)
	seedOrders(t, env)

	all, err := env.admin.ListOrders("")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "cs_new", all[0].ID)
	assert.Equal(t, "cs_old", all[2].ID)

	preparing, err := env.admin.ListOrders("PREPARING")
	require.NoError(t, err)
	require.Len(t, preparing, 1)
	assert.Equal(t, "cs_mid", preparing[0].ID)
}

func TestUpdateStatus_ShippedSendsTracking(t *testing.T) {
	env := newTestEnv(t)
	seedOrders(t, env)

	o, err := env.admin.UpdateStatus(context.Background(), "cs_mid", &dto.UpdateOrderStatusRequest{
		Status:   models.OrderStatusShipped,
		Note:     " handed to carrier ",
		Tracking: &dto.TrackingRequest{Carrier: "Colissimo", Number: "6A123", URL: "https://track.test/6A123"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, o.Status)
	last := o.StatusHistory[len(o.StatusHistory)-1]
	assert.Equal(t, models.OrderStatusShipped, last.Status)
	assert.Equal(t, "handed to carrier", last.Note)
	require.NotNil(t, o.Tracking)
	assert.Equal(t, "6A123", o.Tracking.Number)

	shipped := env.notifier.byKind(notify.KindOrderShipped)
	require.Len(t, shipped, 1)
	assert.Equal(t, "mina@example.com", shipped[0].To)
	assert.Contains(t, shipped[0].Text, "6A123")

	stored := env.loadOrders(t)
	assert.Equal(t, models.OrderStatusShipped, stored[1].Status)
	assert.Len(t, stored[1].StatusHistory, 3)
}

func TestUpdateStatus_Rejections(t *testing.T) {
	env := newTestEnv(t)
	seedOrders(t, env)
	ctx := context.Background()

	_, err := env.admin.UpdateStatus(ctx, "cs_mid", &dto.UpdateOrderStatusRequest{Status: models.OrderStatusPaid})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = env.admin.UpdateStatus(ctx, "cs_missing", &dto.UpdateOrderStatusRequest{Status: models.OrderStatusShipped})
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = env.admin.UpdateStatus(ctx, "cs_old", &dto.UpdateOrderStatusRequest{Status: "lost"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.admin.UpdateStatus(ctx, "cs_old", &dto.UpdateOrderStatusRequest{Status: models.OrderStatusCanceled})
	require.NoError(t, err)
	_, err = env.admin.UpdateStatus(ctx, "cs_old", &dto.UpdateOrderStatusRequest{Status: models.OrderStatusPreparing})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Empty(t, env.notifier.byKind(notify.KindOrderShipped))
}
