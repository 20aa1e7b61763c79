// Package notify delivers transactional email through a persistent outbox so
// that sending is retried independently of the request that queued it.
package notify

import "context"

const (
	KindOrderConfirmation = "order_confirmation"
	KindEmailVerification = "email_verification"
	KindPasswordReset     = "password_reset"
	KindOrderShipped      = "order_shipped"
)

type Message struct {
	Kind    string
	To      string
	Subject string
	Text    string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}
