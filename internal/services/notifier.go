package services

import (
	"context"
	"log/slog"

	"github.com/korelia/storefront-backend/internal/notify"
)

// Notifier queues outgoing email. *notify.Outbox implements it.
type Notifier interface {
	Enqueue(ctx context.Context, m notify.Message) error
}

// enqueue never fails the caller; delivery problems are the outbox's concern.
func enqueue(ctx context.Context, n Notifier, m notify.Message) {
	if n == nil || m.To == "" {
		return
	}
	if err := n.Enqueue(ctx, m); err != nil {
		slog.Error("failed to queue email", "kind", m.Kind, "to", m.To, "error", err)
	}
}
