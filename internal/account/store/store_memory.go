package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"memberd/internal/account/models"
	"memberd/internal/sentinel"
)

// InMemoryStore keeps accounts in process memory for tests and development.
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*models.Account
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{accounts: make(map[uuid.UUID]*models.Account)}
}

func (s *InMemoryStore) Create(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lowered := strings.ToLower(account.Email)
	for _, existing := range s.accounts {
		if strings.ToLower(existing.Email) == lowered {
			return fmt.Errorf("email already registered: %w", sentinel.ErrConflict)
		}
	}

	clone := *account
	s.accounts[account.ID] = &clone
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; !ok {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	lowered := strings.ToLower(account.Email)
	for id, existing := range s.accounts {
		if id != account.ID && strings.ToLower(existing.Email) == lowered {
			return fmt.Errorf("email already registered: %w", sentinel.ErrConflict)
		}
	}

	clone := *account
	s.accounts[account.ID] = &clone
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	delete(s.accounts, id)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	clone := *account
	return &clone, nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lowered := strings.ToLower(email)
	for _, account := range s.accounts {
		if strings.ToLower(account.Email) == lowered {
			clone := *account
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) FindByBillingCustomerID(_ context.Context, customerID string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if customerID == "" {
		return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	for _, account := range s.accounts {
		if account.BillingCustomerID == customerID {
			clone := *account
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) List(_ context.Context, filter models.ListFilter) ([]models.Account, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter = filter.Normalize()
	search := strings.ToLower(filter.Search)

	var matched []models.Account
	for _, account := range s.accounts {
		if search != "" &&
			!strings.Contains(strings.ToLower(account.Email), search) &&
			!strings.Contains(strings.ToLower(account.FirstName), search) &&
			!strings.Contains(strings.ToLower(account.LastName), search) {
			continue
		}
		if filter.IsAdmin != nil && account.IsAdmin != *filter.IsAdmin {
			continue
		}
		if filter.IsPremium != nil && account.IsPremium != *filter.IsPremium {
			continue
		}
		matched = append(matched, *account)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if filter.Offset >= total {
		return []models.Account{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

func (s *InMemoryStore) CountStats(_ context.Context) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.Stats{TotalAccounts: len(s.accounts)}
	for _, account := range s.accounts {
		if account.IsAdmin {
			stats.AdminAccounts++
		}
		if account.IsPremium {
			stats.PremiumAccounts++
		}
		if account.EmailConfirmed {
			stats.ConfirmedEmails++
		}
	}
	return stats, nil
}

func (s *InMemoryStore) TouchLastSeen(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	account.LastSeenAt = at
	return nil
}
