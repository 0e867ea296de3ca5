// Package models holds the account domain types shared by stores, services
// and handlers.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is a registered member. Email is stored lowercase and unique
// case-insensitively. PasswordHash never leaves the store/service boundary.
type Account struct {
	ID                uuid.UUID
	Email             string
	PasswordHash      string
	FirstName         string
	LastName          string
	IsAdmin           bool
	IsPremium         bool
	EmailConfirmed    bool
	BillingCustomerID string
	CreatedAt         time.Time
	LastSeenAt        time.Time
}

// ListFilter narrows admin account listings. Zero fields are ignored.
// Search matches email, first and last name case-insensitively.
type ListFilter struct {
	Search    string
	IsAdmin   *bool
	IsPremium *bool
	Limit     int
	Offset    int
}

// DefaultListLimit bounds unpaged listings; MaxListLimit caps client input.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Normalize clamps paging to sane bounds.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Stats is the admin dashboard aggregate.
type Stats struct {
	TotalAccounts   int `json:"total_accounts"`
	AdminAccounts   int `json:"admin_accounts"`
	PremiumAccounts int `json:"premium_accounts"`
	ConfirmedEmails int `json:"confirmed_emails"`
}
