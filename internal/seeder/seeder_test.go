package seeder

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberd/internal/account/models"
	"memberd/internal/account/store"
	"memberd/internal/credential"
)

func newSeeder(accounts store.Store) *Seeder {
	return New(accounts, credential.NewHasher(""), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the admin with a normalized email", func(t *testing.T) {
		accounts := store.NewInMemoryStore()
		s := newSeeder(accounts)

		require.NoError(t, s.EnsureAdmin(ctx, "  Admin@Example.COM ", "hunter22"))

		account, err := accounts.FindByEmail(ctx, "admin@example.com")
		require.NoError(t, err)
		assert.Equal(t, "admin@example.com", account.Email)
		assert.True(t, account.IsAdmin)
		assert.True(t, account.EmailConfirmed)
	})

	t.Run("leaves an existing account alone", func(t *testing.T) {
		accounts := store.NewInMemoryStore()
		s := newSeeder(accounts)

		require.NoError(t, s.EnsureAdmin(ctx, "admin@example.com", "hunter22"))
		before, err := accounts.FindByEmail(ctx, "admin@example.com")
		require.NoError(t, err)

		require.NoError(t, s.EnsureAdmin(ctx, "ADMIN@example.com", "different-password"))
		after, err := accounts.FindByEmail(ctx, "admin@example.com")
		require.NoError(t, err)
		assert.Equal(t, before.PasswordHash, after.PasswordHash)
	})

	t.Run("no-op without credentials", func(t *testing.T) {
		accounts := store.NewInMemoryStore()
		s := newSeeder(accounts)

		require.NoError(t, s.EnsureAdmin(ctx, "", "hunter22"))
		require.NoError(t, s.EnsureAdmin(ctx, "admin@example.com", ""))

		_, total, err := accounts.List(ctx, models.ListFilter{})
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}
