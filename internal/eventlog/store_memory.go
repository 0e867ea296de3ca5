package eventlog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps the event log in process memory. Used by tests and
// single-node development runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) InMemoryOption {
	return func(s *InMemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewInMemoryStore(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if entry.AccountID != nil {
		id := *entry.AccountID
		entry.AccountID = &id
	}
	stored := *entry
	stored.Details = cloneDetails(entry.Details)
	s.entries = append(s.entries, stored)
	return nil
}

func (s *InMemoryStore) Query(_ context.Context, filter Filter, page Page) ([]Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Entry
	for _, e := range s.entries {
		if matches(e, filter) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	page = page.Normalize()
	if page.Offset >= total {
		return []Entry{}, total, nil
	}
	end := page.Offset + page.Limit
	if end > total {
		end = total
	}

	out := make([]Entry, end-page.Offset)
	for i, e := range matched[page.Offset:end] {
		e.Details = cloneDetails(e.Details)
		if e.AccountID != nil {
			id := *e.AccountID
			e.AccountID = &id
		}
		out[i] = e
	}
	return out, total, nil
}

func (s *InMemoryStore) DetachActor(_ context.Context, accountID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	detached := 0
	for i := range s.entries {
		if s.entries[i].AccountID != nil && *s.entries[i].AccountID == accountID {
			s.entries[i].AccountID = nil
			detached++
		}
	}
	return detached, nil
}

func matches(e Entry, f Filter) bool {
	if f.AccountID != nil {
		if e.AccountID == nil || *e.AccountID != *f.AccountID {
			return false
		}
	}
	if f.Action != "" {
		if e.Action != f.Action {
			return false
		}
	} else if f.ActionPrefix != "" && !strings.HasPrefix(e.Action, f.ActionPrefix) {
		return false
	}
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.CreatedAt.After(f.To) {
		return false
	}
	return true
}

func cloneDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		out[k] = v
	}
	return out
}
