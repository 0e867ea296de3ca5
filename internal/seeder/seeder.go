// Package seeder ensures the configured bootstrap admin account exists, so a
// fresh deployment has a way into the admin surface.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"memberd/internal/account/models"
	"memberd/internal/account/store"
	"memberd/internal/credential"
	"memberd/internal/sentinel"
)

// Seeder creates the bootstrap admin on startup.
type Seeder struct {
	accounts store.Store
	hasher   *credential.Hasher
	logger   *slog.Logger
}

func New(accounts store.Store, hasher *credential.Hasher, logger *slog.Logger) *Seeder {
	return &Seeder{accounts: accounts, hasher: hasher, logger: logger}
}

// EnsureAdmin creates an admin account with the given credentials unless an
// account with that email already exists. Existing accounts are left alone:
// the seeder never overwrites a password or promotes a demoted admin.
func (s *Seeder) EnsureAdmin(ctx context.Context, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}

	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("look up admin account: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	now := time.Now()
	account := &models.Account{
		ID:             uuid.New(),
		Email:          email,
		PasswordHash:   hash,
		FirstName:      "Admin",
		IsAdmin:        true,
		EmailConfirmed: true,
		CreatedAt:      now,
		LastSeenAt:     now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost a race against another instance; the admin exists.
			return nil
		}
		return fmt.Errorf("create admin account: %w", err)
	}

	s.logger.Info("bootstrap admin created", "email", email, "account_id", account.ID)
	return nil
}
