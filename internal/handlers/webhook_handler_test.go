package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korelia/storefront-backend/internal/catalog"
	"github.com/korelia/storefront-backend/internal/config"
	"github.com/korelia/storefront-backend/internal/models"
	"github.com/korelia/storefront-backend/internal/notify"
	"github.com/korelia/storefront-backend/internal/payments"
	"github.com/korelia/storefront-backend/internal/payments/paymentstest"
	"github.com/korelia/storefront-backend/internal/rewards"
	"github.com/korelia/storefront-backend/internal/services"
	"github.com/korelia/storefront-backend/internal/store"
)

type brokenOrders struct {
	*store.File[models.Order]
	broken bool
}

func (b *brokenOrders) Update(fn func([]models.Order) ([]models.Order, bool, error)) error {
	if b.broken {
		return errors.New("read-only file system")
	}
	return b.File.Update(fn)
}

type discardNotifier struct{}

func (discardNotifier) Enqueue(_ context.Context, _ notify.Message) error { return nil }

func TestWebhook_PersistenceFailureReturns500ThenRecovers(t *testing.T) {
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	cat := catalog.New(s.Products)
	require.NoError(t, cat.Reload())

	cfg := &config.Config{Currency: "eur", ShopName: "Korelia"}
	gw := paymentstest.New()
	orders := &brokenOrders{File: s.Orders, broken: true}
	svc := services.NewOrderService(cfg, orders, cat, rewards.NewLedger(s, gw, cfg.Currency), gw, discardNotifier{})

	app := fiber.New()
	app.Use(requestid.New())
	app.Post("/webhook", NewWebhookHandler(svc).HandleStripe)

	sig := gw.AddEvent("sig-1", &payments.Event{
		ID:   "evt_1",
		Type: payments.EventCheckoutSessionCompleted,
		Session: &payments.CheckoutSession{
			ID: "cs_1", PaymentStatus: models.PaymentStatusPaid,
			AmountSubtotal: 4599, AmountTotal: 4599, Currency: "eur", Email: "guest@example.com",
		},
	})
	deliver := func() (int, map[string]any) {
		req := httptest.NewRequest(fiber.MethodPost, "/webhook", strings.NewReader(`{}`))
		req.Header.Set("Stripe-Signature", sig)
		resp, err := app.Test(req)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return resp.StatusCode, body
	}

	status, body := deliver()
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, true, body["error"])

	orders.broken = false
	status, body = deliver()
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "cs_1", body["order_id"])

	stored, err := s.Orders.Load()
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}
