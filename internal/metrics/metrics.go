package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook ingestion
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "korelia_webhook_events_total",
			Help: "Stripe webhook events by type and outcome",
		},
		[]string{"type", "outcome"}, // created, duplicate, ignored, rejected, failed
	)

	OrdersCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "korelia_orders_created_total",
			Help: "Orders recorded from completed checkout sessions",
		},
	)

	OrderAmountMinorTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "korelia_order_amount_minor_total",
			Help: "Sum of order totals in minor currency units",
		},
		[]string{"currency"},
	)

	// Rewards
	PointsLedgerTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "korelia_points_ledger_total",
			Help: "Absolute points moved through the ledger by reason and direction",
		},
		[]string{"reason", "direction"},
	)

	RedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "korelia_redemptions_total",
			Help: "Reward redemptions by tier and outcome",
		},
		[]string{"tier", "outcome"},
	)

	// Auth
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "korelia_login_attempts_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"}, // success, invalid, locked
	)

	// Mail outbox
	OutboxDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "korelia_outbox_deliveries_total",
			Help: "Outbox delivery attempts by message kind and outcome",
		},
		[]string{"kind", "outcome"}, // sent, retry, failed
	)

	OutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "korelia_outbox_pending",
			Help: "Messages waiting in the outbox",
		},
	)

	// Catalog
	CatalogReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "korelia_catalog_reloads_total",
			Help: "Product catalog reloads by outcome",
		},
		[]string{"outcome"},
	)
)

func RecordWebhookEvent(eventType, outcome string) {
	WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func RecordOrderCreated(currency string, amountTotal int64) {
	OrdersCreatedTotal.Inc()
	if amountTotal > 0 {
		OrderAmountMinorTotal.WithLabelValues(currency).Add(float64(amountTotal))
	}
}

// RecordPoints records a ledger movement. Zero deltas are ignored.
func RecordPoints(reason string, delta int) {
	switch {
	case delta > 0:
		PointsLedgerTotal.WithLabelValues(reason, "earn").Add(float64(delta))
	case delta < 0:
		PointsLedgerTotal.WithLabelValues(reason, "spend").Add(float64(-delta))
	}
}

func RecordRedemption(tier, outcome string) {
	RedemptionsTotal.WithLabelValues(tier, outcome).Inc()
}

func RecordLogin(outcome string) {
	LoginAttemptsTotal.WithLabelValues(outcome).Inc()
}

func RecordOutboxDelivery(kind, outcome string) {
	OutboxDeliveriesTotal.WithLabelValues(kind, outcome).Inc()
}

func SetOutboxPending(n int) {
	OutboxPending.Set(float64(n))
}

func RecordCatalogReload(err error) {
	if err != nil {
		CatalogReloadsTotal.WithLabelValues("error").Inc()
		return
	}
	CatalogReloadsTotal.WithLabelValues("ok").Inc()
}
