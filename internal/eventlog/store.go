package eventlog

import (
	"context"

	"github.com/google/uuid"
)

// Store persists event log entries. Implementations must treat the log as
// append-only: no update or delete operations exist besides DetachActor.
type Store interface {
	// Append inserts entry. The store assigns ID and CreatedAt when unset.
	Append(ctx context.Context, entry *Entry) error

	// Query returns entries matching filter, newest first, windowed by page,
	// along with the total match count before paging.
	Query(ctx context.Context, filter Filter, page Page) ([]Entry, int, error)

	// DetachActor nulls the actor reference on all entries for accountID and
	// returns how many entries were touched. The entries themselves survive.
	DetachActor(ctx context.Context, accountID uuid.UUID) (int, error)
}
