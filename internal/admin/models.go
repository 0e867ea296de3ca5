// Package admin implements the management surface: account administration,
// impersonation, the event log browser and the dashboard.
package admin

import (
	"time"

	"github.com/google/uuid"

	"memberd/internal/account/models"
	"memberd/internal/eventlog"
)

// UpdateAccountRequest patches any subset of an account's fields.
type UpdateAccountRequest struct {
	Email          *string `json:"email" validate:"omitempty,email"`
	FirstName      *string `json:"first_name" validate:"omitempty,max=100"`
	LastName       *string `json:"last_name" validate:"omitempty,max=100"`
	IsAdmin        *bool   `json:"is_admin"`
	IsPremium      *bool   `json:"is_premium"`
	EmailConfirmed *bool   `json:"email_confirmed"`
}

// AccountView is the admin-facing account representation.
type AccountView struct {
	ID                uuid.UUID `json:"id"`
	Email             string    `json:"email"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	IsAdmin           bool      `json:"is_admin"`
	IsPremium         bool      `json:"is_premium"`
	EmailConfirmed    bool      `json:"email_confirmed"`
	BillingCustomerID string    `json:"billing_customer_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	LastSeenAt        time.Time `json:"last_seen_at"`
}

// AccountPage is a paginated listing.
type AccountPage struct {
	Accounts []AccountView `json:"accounts"`
	Total    int           `json:"total"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
}

// EventView is the admin-facing event log representation.
type EventView struct {
	ID        uuid.UUID      `json:"id"`
	AccountID *uuid.UUID     `json:"account_id"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	IP        string         `json:"ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EventPage is a paginated event listing.
type EventPage struct {
	Events []EventView `json:"events"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// Dashboard aggregates account stats with the most recent activity.
type Dashboard struct {
	Stats        models.Stats `json:"stats"`
	RecentEvents []EventView  `json:"recent_events"`
}

func viewOf(a *models.Account) AccountView {
	return AccountView{
		ID:                a.ID,
		Email:             a.Email,
		FirstName:         a.FirstName,
		LastName:          a.LastName,
		IsAdmin:           a.IsAdmin,
		IsPremium:         a.IsPremium,
		EmailConfirmed:    a.EmailConfirmed,
		BillingCustomerID: a.BillingCustomerID,
		CreatedAt:         a.CreatedAt,
		LastSeenAt:        a.LastSeenAt,
	}
}

func eventViewOf(e eventlog.Entry) EventView {
	return EventView{
		ID:        e.ID,
		AccountID: e.AccountID,
		Action:    e.Action,
		Details:   e.Details,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		CreatedAt: e.CreatedAt,
	}
}
