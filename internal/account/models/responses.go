package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the public view of an account.
type Profile struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	IsAdmin        bool      `json:"is_admin"`
	IsPremium      bool      `json:"is_premium"`
	EmailConfirmed bool      `json:"email_confirmed"`
	CreatedAt      time.Time `json:"created_at"`
}

// PublicProfile is the view exposed to other authenticated members.
type PublicProfile struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}

// TokenResponse carries a freshly issued session token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Profile Profile   `json:"profile"`
	Token   string    `json:"token"`
	Expires time.Time `json:"expires_at"`
}

// ProfileOf maps an account onto its public view.
func ProfileOf(a *Account) Profile {
	return Profile{
		ID:             a.ID,
		Email:          a.Email,
		FirstName:      a.FirstName,
		LastName:       a.LastName,
		IsAdmin:        a.IsAdmin,
		IsPremium:      a.IsPremium,
		EmailConfirmed: a.EmailConfirmed,
		CreatedAt:      a.CreatedAt,
	}
}

// PublicProfileOf maps an account onto its member-visible view.
func PublicProfileOf(a *Account) PublicProfile {
	return PublicProfile{ID: a.ID, FirstName: a.FirstName, LastName: a.LastName}
}
