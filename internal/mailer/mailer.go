// Package mailer sends transactional email. Delivery is best-effort at every
// call site: callers log failures and carry on, so a mail outage never blocks
// registration or password flows.
package mailer

import "context"

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Text    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Kind labels for metrics and logs.
const (
	KindVerification  = "verification"
	KindPasswordReset = "password_reset"
	KindWelcome       = "welcome"
)
