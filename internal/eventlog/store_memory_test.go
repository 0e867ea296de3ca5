package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_AppendAssignsIDAndTimestamp(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryStore(WithClock(func() time.Time { return fixed }))

	entry := &Entry{Action: ActionLogin}
	require.NoError(t, store.Append(context.Background(), entry))

	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, fixed, entry.CreatedAt)
}

func TestInMemoryStore_QueryFilters(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	store := NewInMemoryStore(WithClock(func() time.Time { return clock }))

	alice := uuid.New()
	bob := uuid.New()

	appendEntry := func(accountID uuid.UUID, action string) {
		id := accountID
		require.NoError(t, store.Append(ctx, &Entry{AccountID: &id, Action: action}))
		clock = clock.Add(time.Minute)
	}

	appendEntry(alice, ActionRegister)
	appendEntry(alice, ActionLogin)
	appendEntry(bob, ActionLogin)
	appendEntry(alice, ActionAdminUserUpdate)

	t.Run("by account", func(t *testing.T) {
		entries, total, err := store.Query(ctx, Filter{AccountID: &alice}, Page{})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, entries, 3)
	})

	t.Run("by action", func(t *testing.T) {
		entries, total, err := store.Query(ctx, Filter{Action: ActionLogin}, Page{})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		for _, e := range entries {
			assert.Equal(t, ActionLogin, e.Action)
		}
	})

	t.Run("by action prefix", func(t *testing.T) {
		_, total, err := store.Query(ctx, Filter{ActionPrefix: "user."}, Page{})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
	})

	t.Run("by time range", func(t *testing.T) {
		_, total, err := store.Query(ctx, Filter{From: now.Add(time.Minute), To: now.Add(2 * time.Minute)}, Page{})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
	})

	t.Run("conjunction", func(t *testing.T) {
		entries, total, err := store.Query(ctx, Filter{AccountID: &alice, Action: ActionLogin}, Page{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, entries, 1)
		assert.Equal(t, ActionLogin, entries[0].Action)
	})
}

func TestInMemoryStore_QueryNewestFirstAndPaged(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryStore(WithClock(func() time.Time { return clock }))

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, &Entry{Action: ActionLogin}))
		clock = clock.Add(time.Minute)
	}

	entries, total, err := store.Query(ctx, Filter{}, Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].CreatedAt.After(entries[1].CreatedAt), "entries must be newest first")

	entries, total, err = store.Query(ctx, Filter{}, Page{Limit: 10, Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, entries)
}

func TestInMemoryStore_DetachActorPreservesEntries(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	alice := uuid.New()
	bob := uuid.New()
	for _, id := range []uuid.UUID{alice, alice, bob} {
		actor := id
		require.NoError(t, store.Append(ctx, &Entry{AccountID: &actor, Action: ActionLogin}))
	}

	detached, err := store.DetachActor(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, detached)

	// Alice's entries survive with a nulled actor.
	entries, total, err := store.Query(ctx, Filter{}, Page{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	nilActors := 0
	for _, e := range entries {
		if e.AccountID == nil {
			nilActors++
		}
	}
	assert.Equal(t, 2, nilActors)

	// Detached entries no longer match account-scoped queries.
	_, total, err = store.Query(ctx, Filter{AccountID: &alice}, Page{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestInMemoryStore_StoredEntriesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	details := map[string]any{"field": "before"}
	require.NoError(t, store.Append(ctx, &Entry{Action: ActionProfileUpdate, Details: details}))

	// Mutating the caller's map must not change the stored entry.
	details["field"] = "after"

	entries, _, err := store.Query(ctx, Filter{}, Page{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "before", entries[0].Details["field"])
}
