// Package eventlog is the append-only record of security-relevant actions.
// Entries are never updated or deleted; deleting an account only detaches it
// as actor so its history stays intact.
package eventlog

import (
	"time"

	"github.com/google/uuid"
)

// Well-known actions. User-initiated actions carry the "user." prefix, admin
// actions "admin.", billing webhooks "billing.".
const (
	ActionRegister       = "user.register"
	ActionLogin          = "user.login"
	ActionTokenRefresh   = "user.token_refresh"
	ActionProfileUpdate  = "user.profile_update"
	ActionPasswordChange = "user.password_change"
	ActionPasswordReset  = "user.password_reset"
	ActionResetRequest   = "user.password_reset_request"
	ActionEmailVerify    = "user.email_verify"

	ActionAdminUserUpdate       = "admin.user_update"
	ActionAdminUserDelete       = "admin.user_delete"
	ActionAdminImpersonateStart = "admin.impersonate_start"
	ActionAdminImpersonateStop  = "admin.impersonate_stop"

	ActionBillingWebhook = "billing.webhook"
)

// Entry is one appended event. AccountID is the acting account and becomes
// nil once that account is deleted.
type Entry struct {
	ID        uuid.UUID
	AccountID *uuid.UUID
	Action    string
	Details   map[string]any
	IP        string
	UserAgent string
	CreatedAt time.Time
}

// Filter narrows a Query. Zero fields are ignored. Action and ActionPrefix
// are mutually exclusive; Action wins when both are set.
type Filter struct {
	AccountID    *uuid.UUID
	Action       string
	ActionPrefix string
	From         time.Time
	To           time.Time
}

// Page is a limit/offset window over query results.
type Page struct {
	Limit  int
	Offset int
}

// DefaultPageLimit bounds unpaged queries.
const DefaultPageLimit = 50

// MaxPageLimit caps client-supplied page sizes.
const MaxPageLimit = 200

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
