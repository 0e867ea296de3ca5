// Package store persists accounts. Implementations share one error
// contract: Find methods return an error wrapping sentinel.ErrNotFound when
// no account matches, Create and email updates return sentinel.ErrConflict
// on case-insensitive email collisions.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"memberd/internal/account/models"
)

type Store interface {
	Create(ctx context.Context, account *models.Account) error
	Update(ctx context.Context, account *models.Account) error
	Delete(ctx context.Context, id uuid.UUID) error

	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByBillingCustomerID(ctx context.Context, customerID string) (*models.Account, error)

	List(ctx context.Context, filter models.ListFilter) ([]models.Account, int, error)
	CountStats(ctx context.Context) (models.Stats, error)

	// TouchLastSeen updates last_seen_at without racing profile writes.
	TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error
}
