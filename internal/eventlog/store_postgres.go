package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PostgresStore persists the event log in the event_logs table. The actor
// column carries ON DELETE SET NULL so deleting an account detaches rather
// than erases its history; DetachActor exists for stores without that
// guarantee and as the explicit path services call.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry *Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal event details: %w", err)
		}
	}

	var accountID any
	if entry.AccountID != nil {
		accountID = *entry.AccountID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_logs (id, account_id, action, details, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, accountID, entry.Action, details, entry.IP, entry.UserAgent, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event log entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, filter Filter, page Page) ([]Entry, int, error) {
	where, args := buildWhere(filter)
	page = page.Normalize()

	var total int
	countQuery := "SELECT COUNT(*) FROM event_logs" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count event log entries: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, account_id, action, details, ip, user_agent, created_at
		FROM event_logs%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query event log entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e         Entry
			accountID uuid.NullUUID
			details   []byte
		)
		if err := rows.Scan(&e.ID, &accountID, &e.Action, &details, &e.IP, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan event log entry: %w", err)
		}
		if accountID.Valid {
			id := accountID.UUID
			e.AccountID = &id
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, 0, fmt.Errorf("unmarshal event details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate event log entries: %w", err)
	}
	return entries, total, nil
}

func (s *PostgresStore) DetachActor(ctx context.Context, accountID uuid.UUID) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE event_logs SET account_id = NULL WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, fmt.Errorf("detach event log actor: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("detach event log actor rows: %w", err)
	}
	return int(affected), nil
}

func buildWhere(f Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	next := func() int { return len(args) + 1 }

	if f.AccountID != nil {
		clauses = append(clauses, fmt.Sprintf("account_id = $%d", next()))
		args = append(args, *f.AccountID)
	}
	if f.Action != "" {
		clauses = append(clauses, fmt.Sprintf("action = $%d", next()))
		args = append(args, f.Action)
	} else if f.ActionPrefix != "" {
		clauses = append(clauses, fmt.Sprintf("action LIKE $%d", next()))
		args = append(args, likeEscape(f.ActionPrefix)+"%")
	}
	if !f.From.IsZero() {
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", next()))
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", next()))
		args = append(args, f.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
