package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/korelia/storefront-backend/internal/catalog"
	"github.com/korelia/storefront-backend/internal/config"
	"github.com/korelia/storefront-backend/internal/models"
	"github.com/korelia/storefront-backend/internal/notify"
	"github.com/korelia/storefront-backend/internal/payments/paymentstest"
	"github.com/korelia/storefront-backend/internal/rewards"
	"github.com/korelia/storefront-backend/internal/store"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	fail bool
}

func (n *recordingNotifier) Enqueue(_ context.Context, m notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("outbox unavailable")
	}
	n.msgs = append(n.msgs, m)
	return nil
}

func (n *recordingNotifier) byKind(kind string) []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Message
	for _, m := range n.msgs {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

type testEnv struct {
	cfg      *config.Config
	stores   *store.Stores
	catalog  *catalog.Catalog
	gateway  *paymentstest.Gateway
	notifier *recordingNotifier
	ledger   *rewards.Ledger
	lockout  *Lockout

	auth     *AuthService
	orders   *OrderService
	checkout *CheckoutService
	admin    *AdminService
	reviews  *ReviewService
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:                  "test-secret",
		JWTExpiry:                  time.Hour,
		BcryptCost:                 bcrypt.MinCost,
		Currency:                   "eur",
		ShippingFlatCents:          490,
		FreeShippingThresholdCents: 5000,
		ShippingCountries:          []string{"FR", "BE"},
		ShopName:                   "Korelia",
		FrontendURL:                "https://korelia.test",
		LoginMaxFailures:           3,
		LoginLockout:               time.Minute,
	}
}

func intPtr(v int) *int { return &v }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig()

	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Products.Save([]models.Product{
		{ID: "p1", Slug: "snail-essence", Name: "Snail Essence", PriceCents: 2299, Stock: intPtr(5), Category: "serum"},
		{ID: "p2", Slug: "cica-cream", Name: "Cica Cream", PriceCents: 1800, Stock: intPtr(1), Category: "moisturizer"},
		{ID: "p3", Slug: "rice-toner", Name: "Rice Toner", PriceCents: 1500, Category: "toner"},
	}))

	cat := catalog.New(s.Products)
	require.NoError(t, cat.Reload())

	gw := paymentstest.New()
	n := &recordingNotifier{}
	ledger := rewards.NewLedger(s, gw, cfg.Currency)
	lockout := NewLockout(cfg.LoginMaxFailures, cfg.LoginLockout)

	return &testEnv{
		cfg:      cfg,
		stores:   s,
		catalog:  cat,
		gateway:  gw,
		notifier: n,
		ledger:   ledger,
		lockout:  lockout,
		auth:     NewAuthService(cfg, s.Users, ledger, n, lockout),
		orders:   NewOrderService(cfg, s.Orders, cat, ledger, gw, n),
		checkout: NewCheckoutService(cfg, cat, gw),
		admin:    NewAdminService(cfg, s.Orders, n),
		reviews:  NewReviewService(s.Reviews, cat, ledger),
	}
}

func (e *testEnv) loadOrders(t *testing.T) []models.Order {
	t.Helper()
	orders, err := e.stores.Orders.Load()
	require.NoError(t, err)
	return orders
}
