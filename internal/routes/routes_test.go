package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/korelia/storefront-backend/internal/catalog"
	"github.com/korelia/storefront-backend/internal/config"
	"github.com/korelia/storefront-backend/internal/handlers"
	"github.com/korelia/storefront-backend/internal/middleware"
	"github.com/korelia/storefront-backend/internal/models"
	"github.com/korelia/storefront-backend/internal/notify"
	"github.com/korelia/storefront-backend/internal/payments"
	"github.com/korelia/storefront-backend/internal/payments/paymentstest"
	"github.com/korelia/storefront-backend/internal/rewards"
	"github.com/korelia/storefront-backend/internal/services"
	"github.com/korelia/storefront-backend/internal/store"
)

type testServer struct {
	app     *fiber.App
	gateway *paymentstest.Gateway
	stores  *store.Stores
	outbox  *notify.Outbox
}

func intPtr(v int) *int { return &v }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		JWTSecret:                  "routes-secret",
		JWTExpiry:                  time.Hour,
		BcryptCost:                 bcrypt.MinCost,
		Currency:                   "eur",
		ShippingFlatCents:          490,
		FreeShippingThresholdCents: 5000,
		ShippingCountries:          []string{"FR"},
		ShopName:                   "Korelia",
		FrontendURL:                "https://korelia.test",
		AdminToken:                 "admin-secret",
		RateLimitPerMinute:         1000,
		AuthRateLimitPerMinute:     1000,
		LoginMaxFailures:           5,
		LoginLockout:               time.Minute,
	}

	s, err := store.Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Products.Save([]models.Product{
		{ID: "p1", Slug: "snail-essence", Name: "Snail Essence", PriceCents: 2299, Stock: intPtr(5), Category: "serum"},
		{ID: "p2", Slug: "rice-toner", Name: "Rice Toner", PriceCents: 1500, Category: "toner"},
	}))
	cat := catalog.New(s.Products)
	require.NoError(t, cat.Reload())

	outbox, err := notify.OpenOutbox(filepath.Join(dir, "outbox.db"), notify.LogSender{}, notify.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = outbox.Close() })

	gw := paymentstest.New()
	ledger := rewards.NewLedger(s, gw, cfg.Currency)
	authService := services.NewAuthService(cfg, s.Users, ledger, outbox, services.NewLockout(cfg.LoginMaxFailures, cfg.LoginLockout))
	orderService := services.NewOrderService(cfg, s.Orders, cat, ledger, gw, outbox)

	app := fiber.New()
	app.Use(requestid.New())
	Setup(app, cfg, authService, Handlers{
		Auth:     handlers.NewAuthHandler(authService, cfg),
		Health:   handlers.NewHealthHandler(cat, outbox),
		Webhook:  handlers.NewWebhookHandler(orderService),
		Rewards:  handlers.NewRewardsHandler(ledger),
		Orders:   handlers.NewOrderHandler(services.NewCheckoutService(cfg, cat, gw), orderService),
		Products: handlers.NewProductHandler(cat, services.NewReviewService(s.Reviews, cat, ledger)),
		Admin:    handlers.NewAdminHandler(services.NewAdminService(cfg, s.Orders, outbox), cat, outbox),
	})
	return &testServer{app: app, gateway: gw, stores: s, outbox: outbox}
}

// browser keeps cookies between requests the way a storefront tab would.
type browser struct {
	t       *testing.T
	srv     *testServer
	cookies map[string]string
	csrf    string
}

func (s *testServer) browser(t *testing.T) *browser {
	b := &browser{t: t, srv: s, cookies: map[string]string{}}
	resp, body := b.do(fiber.MethodGet, "/api/csrf-token", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.Unmarshal(body, &out))
	b.csrf = out["csrf_token"]
	require.NotEmpty(t, b.csrf)
	require.Equal(t, b.csrf, b.cookies[middleware.CSRFCookie])
	return b
}

func (b *browser) do(method, path string, payload interface{}, headers map[string]string) (*http.Response, []byte) {
	b.t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(b.t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if b.csrf != "" {
		req.Header.Set(middleware.CSRFHeader, b.csrf)
	}
	for name, value := range b.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.srv.app.Test(req, -1)
	require.NoError(b.t, err)
	for _, ck := range resp.Cookies() {
		if ck.Value == "" || (!ck.Expires.IsZero() && ck.Expires.Before(time.Now())) {
			delete(b.cookies, ck.Name)
			continue
		}
		b.cookies[ck.Name] = ck.Value
	}
	out, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp, out
}

func decode(t *testing.T, body []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body, v), string(body))
}

func (s *testServer) deliver(t *testing.T, sig string, evt *payments.Event) (*http.Response, map[string]interface{}) {
	t.Helper()
	s.gateway.AddEvent(sig, evt)
	req := httptest.NewRequest(fiber.MethodPost, "/webhook", bytes.NewReader([]byte(`{"id":"`+evt.ID+`"}`)))
	req.Header.Set("Stripe-Signature", sig)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	var out map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	decode(t, raw, &out)
	return resp, out
}

func checkoutCompleted(id, userID, email string, subtotal int64) *payments.Event {
	return &payments.Event{
		ID:   "evt_" + id,
		Type: payments.EventCheckoutSessionCompleted,
		Session: &payments.CheckoutSession{
			ID: id, PaymentStatus: "paid", AmountSubtotal: subtotal, AmountTotal: subtotal + 490,
			ShippingCost: 490, Currency: "eur", Email: email,
			Metadata: map[string]string{
				payments.MetadataUserID: userID,
				payments.MetadataItems:  `[{"id":"p1","q":2}]`,
			},
		},
	}
}

type rewardsBody struct {
	Points  int `json:"points"`
	History []struct {
		Delta  int    `json:"delta"`
		Reason string `json:"reason"`
	} `json:"history"`
	Tiers []rewards.Tier `json:"tiers"`
}

func TestStorefrontFlow(t *testing.T) {
	srv := newTestServer(t)
	b := srv.browser(t)

	// Register: session cookie set, signup bonus granted.
	resp, body := b.do(fiber.MethodPost, "/api/auth/register", map[string]string{
		"email": "mina@example.com", "password": "correct-horse", "name": "Mina",
	}, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	var auth struct {
		Token string `json:"token"`
		User  struct {
			ID     string `json:"id"`
			Points int    `json:"points"`
		} `json:"user"`
	}
	decode(t, body, &auth)
	assert.Equal(t, 50, auth.User.Points)
	assert.Equal(t, auth.Token, b.cookies[middleware.SessionCookie])

	// Paid checkout webhook credits the account.
	wresp, out := srv.deliver(t, "sig-1", checkoutCompleted("cs_1", auth.User.ID, "mina@example.com", 4599))
	require.Equal(t, fiber.StatusOK, wresp.StatusCode)
	assert.Equal(t, "cs_1", out["order_id"])

	// Stripe redelivers the same event.
	wresp, out = srv.deliver(t, "sig-1", checkoutCompleted("cs_1", auth.User.ID, "mina@example.com", 4599))
	require.Equal(t, fiber.StatusOK, wresp.StatusCode)
	assert.Equal(t, true, out["duplicate"])

	resp, body = b.do(fiber.MethodGet, "/api/me/rewards", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var sum rewardsBody
	decode(t, body, &sum)
	assert.Equal(t, 95, sum.Points)
	require.Len(t, sum.History, 2)
	assert.Equal(t, rewards.ReasonOrder, sum.History[0].Reason)
	assert.Len(t, sum.Tiers, 3)

	resp, body = b.do(fiber.MethodGet, "/api/me/orders", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var orders struct {
		Orders []models.Order `json:"orders"`
	}
	decode(t, body, &orders)
	require.Len(t, orders.Orders, 1)
	assert.Equal(t, 45, *orders.Orders[0].RewardsPoints)

	// Redemption: silver is out of reach, bronze goes through.
	resp, _ = b.do(fiber.MethodPost, "/api/rewards/redeem", map[string]string{"tier": "silver"}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, srv.gateway.DiscountCalls())

	srv.addPoints(t, auth.User.ID, 150)
	resp, body = b.do(fiber.MethodPost, "/api/rewards/redeem", map[string]string{"tier": "bronze"}, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	var red struct {
		Code   string `json:"code"`
		Points int    `json:"points"`
	}
	decode(t, body, &red)
	assert.Regexp(t, `^KOR-[A-Z2-9]{8}$`, red.Code)
	assert.Equal(t, 45, red.Points)

	// Logout clears the session.
	resp, _ = b.do(fiber.MethodPost, "/api/auth/logout", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = b.do(fiber.MethodGet, "/api/me", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// Logging back in with the bearer header works without CSRF.
	resp, body = b.do(fiber.MethodPost, "/api/auth/login", map[string]string{
		"email": "MINA@example.com", "password": "correct-horse",
	}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	decode(t, body, &auth)

	api := &browser{t: t, srv: srv, cookies: map[string]string{}}
	resp, body = api.do(fiber.MethodPatch, "/api/me", map[string]string{"name": "Mina Park"},
		map[string]string{fiber.HeaderAuthorization: "Bearer " + auth.Token})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
}

func (s *testServer) addPoints(t *testing.T, userID string, delta int) {
	t.Helper()
	ledger := rewards.NewLedger(s.stores, s.gateway, "eur")
	ok, err := ledger.AddPoints(rewards.Target{UserID: userID}, delta, "manual", nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCSRFRequiredForCookieSessions(t *testing.T) {
	srv := newTestServer(t)
	b := srv.browser(t)
	b.csrf = ""

	resp, _ := b.do(fiber.MethodPost, "/api/auth/register", map[string]string{
		"email": "mina@example.com", "password": "correct-horse",
	}, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	users, err := srv.stores.Users.Load()
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestWebhookRejections(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(fiber.MethodPost, "/webhook", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=forged")
	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	wresp, out := srv.deliver(t, "sig-refund", &payments.Event{ID: "evt_r", Type: "charge.refunded"})
	assert.Equal(t, fiber.StatusOK, wresp.StatusCode)
	assert.Equal(t, true, out["ignored"])

	orders, err := srv.stores.Orders.Load()
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestGuestPurchaseBackfilledAtRegistration(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := srv.deliver(t, "sig-guest", checkoutCompleted("cs_guest", "", "Guest@Example.com", 4500))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	b := srv.browser(t)
	r, body := b.do(fiber.MethodPost, "/api/auth/register", map[string]string{
		"email": "guest@example.com", "password": "correct-horse",
	}, nil)
	require.Equal(t, fiber.StatusCreated, r.StatusCode, string(body))
	var auth struct {
		User struct {
			Points int `json:"points"`
		} `json:"user"`
		RewardsBackfill *rewards.BackfillResult `json:"rewards_backfill"`
	}
	decode(t, body, &auth)
	require.NotNil(t, auth.RewardsBackfill)
	assert.Equal(t, rewards.BackfillResult{Credited: 45, Orders: 1}, *auth.RewardsBackfill)
	assert.Equal(t, 95, auth.User.Points)
}

func TestAdminSurface(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := srv.deliver(t, "sig-1", checkoutCompleted("cs_1", "", "mina@example.com", 4599))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	customer := srv.browser(t)
	r, _ := customer.do(fiber.MethodPost, "/api/auth/register", map[string]string{
		"email": "mina@example.com", "password": "correct-horse",
	}, nil)
	require.Equal(t, fiber.StatusCreated, r.StatusCode)
	r, _ = customer.do(fiber.MethodGet, "/api/admin/orders", nil, nil)
	assert.Equal(t, fiber.StatusForbidden, r.StatusCode)

	admin := &browser{t: t, srv: srv, cookies: map[string]string{}}
	asAdmin := map[string]string{"X-Admin-Token": "admin-secret"}

	r, body := admin.do(fiber.MethodGet, "/api/admin/orders?status=paid", nil, asAdmin)
	require.Equal(t, fiber.StatusOK, r.StatusCode)
	var list struct {
		Orders []models.Order `json:"orders"`
	}
	decode(t, body, &list)
	require.Len(t, list.Orders, 1)

	r, body = admin.do(fiber.MethodPatch, "/api/admin/orders/cs_1/status", map[string]interface{}{
		"status":   "shipped",
		"tracking": map[string]string{"carrier": "Colissimo", "number": "6A123"},
	}, asAdmin)
	require.Equal(t, fiber.StatusOK, r.StatusCode, string(body))

	r, _ = admin.do(fiber.MethodPatch, "/api/admin/orders/cs_1/status", map[string]string{"status": "paid"}, asAdmin)
	assert.Equal(t, fiber.StatusConflict, r.StatusCode)

	r, body = admin.do(fiber.MethodPatch, "/api/admin/products/p1/stock", map[string]int{"delta": 4}, asAdmin)
	require.Equal(t, fiber.StatusOK, r.StatusCode, string(body))
	var p models.Product
	decode(t, body, &p)
	// 5 seeded, 2 sold through the webhook, 4 restocked.
	assert.Equal(t, 7, *p.Stock)

	r, _ = admin.do(fiber.MethodPatch, "/api/admin/products/p2/stock", map[string]int{"delta": 1}, asAdmin)
	assert.Equal(t, fiber.StatusConflict, r.StatusCode)

	r, body = admin.do(fiber.MethodGet, "/api/admin/outbox", nil, asAdmin)
	require.Equal(t, fiber.StatusOK, r.StatusCode)
	var ob struct {
		Stats  notify.Stats   `json:"stats"`
		Recent []notify.Entry `json:"recent"`
	}
	decode(t, body, &ob)
	// Order confirmation, verification email and shipping notice.
	assert.Equal(t, 3, ob.Stats.Pending)
	assert.Len(t, ob.Recent, 3)
}

func TestPublicCatalogAndCheckout(t *testing.T) {
	srv := newTestServer(t)
	b := srv.browser(t)

	r, body := b.do(fiber.MethodGet, "/api/products?category=toner", nil, nil)
	require.Equal(t, fiber.StatusOK, r.StatusCode)
	var list struct {
		Products []models.Product `json:"products"`
	}
	decode(t, body, &list)
	require.Len(t, list.Products, 1)
	assert.Equal(t, "rice-toner", list.Products[0].Slug)

	r, _ = b.do(fiber.MethodGet, "/api/products/nope", nil, nil)
	assert.Equal(t, fiber.StatusNotFound, r.StatusCode)

	r, body = b.do(fiber.MethodPost, "/api/checkout", map[string]interface{}{
		"items": []map[string]interface{}{{"id": "snail-essence", "quantity": 1}},
		"email": "guest@example.com",
	}, nil)
	require.Equal(t, fiber.StatusOK, r.StatusCode, string(body))
	var co struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	decode(t, body, &co)
	assert.NotEmpty(t, co.URL)

	r, _ = b.do(fiber.MethodPost, "/api/checkout", map[string]interface{}{
		"items": []map[string]interface{}{{"id": "p1", "quantity": 9}},
	}, nil)
	assert.Equal(t, fiber.StatusConflict, r.StatusCode)

	r, _ = b.do(fiber.MethodPost, "/api/products/rice-toner/reviews", map[string]int{"rating": 5}, nil)
	assert.Equal(t, fiber.StatusUnauthorized, r.StatusCode)

	r, body = b.do(fiber.MethodGet, "/api/health", nil, nil)
	require.Equal(t, fiber.StatusOK, r.StatusCode)
	var health struct {
		Products int    `json:"products"`
		Outbox   string `json:"outbox"`
	}
	decode(t, body, &health)
	assert.Equal(t, 2, health.Products)
	assert.Equal(t, "ok", health.Outbox)
}
