package notify

import (
	"context"
	"log/slog"
)

// LogSender writes messages to the log instead of sending them. Used when
// SMTP is not configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, m Message) error {
	slog.Info("email (not sent, smtp not configured)", "kind", m.Kind, "to", m.To, "subject", m.Subject)
	return nil
}
