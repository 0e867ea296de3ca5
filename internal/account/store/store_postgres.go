package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"memberd/internal/account/models"
	"memberd/internal/sentinel"
)

// PostgresStore persists accounts in PostgreSQL. Email uniqueness is enforced
// case-insensitively by a unique index on lower(email).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const accountColumns = `id, email, password_hash, first_name, last_name,
	is_admin, is_premium, email_confirmed, billing_customer_id, created_at, last_seen_at`

func (s *PostgresStore) Create(ctx context.Context, account *models.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, account.ID, account.Email, account.PasswordHash, account.FirstName, account.LastName,
		account.IsAdmin, account.IsPremium, account.EmailConfirmed,
		nullIfEmpty(account.BillingCustomerID), account.CreatedAt, account.LastSeenAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email already registered: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, account *models.Account) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET email = $2, password_hash = $3, first_name = $4, last_name = $5,
			is_admin = $6, is_premium = $7, email_confirmed = $8,
			billing_customer_id = $9, last_seen_at = $10
		WHERE id = $1
	`, account.ID, account.Email, account.PasswordHash, account.FirstName, account.LastName,
		account.IsAdmin, account.IsPremium, account.EmailConfirmed,
		nullIfEmpty(account.BillingCustomerID), account.LastSeenAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email already registered: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("update account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete account rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row, "find account by id")
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email)
	return scanAccount(row, "find account by email")
}

func (s *PostgresStore) FindByBillingCustomerID(ctx context.Context, customerID string) (*models.Account, error) {
	if customerID == "" {
		return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE billing_customer_id = $1`, customerID)
	return scanAccount(row, "find account by billing customer")
}

func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter) ([]models.Account, int, error) {
	filter = filter.Normalize()

	var (
		clauses []string
		args    []any
	)
	next := func() int { return len(args) + 1 }

	if filter.Search != "" {
		pattern := "%" + escapeLike(filter.Search) + "%"
		base := next()
		clauses = append(clauses, fmt.Sprintf(
			"(email ILIKE $%d OR first_name ILIKE $%d OR last_name ILIKE $%d)",
			base, base+1, base+2))
		args = append(args, pattern, pattern, pattern)
	}
	if filter.IsAdmin != nil {
		clauses = append(clauses, fmt.Sprintf("is_admin = $%d", next()))
		args = append(args, *filter.IsAdmin)
	}
	if filter.IsPremium != nil {
		clauses = append(clauses, fmt.Sprintf("is_premium = $%d", next()))
		args = append(args, *filter.IsPremium)
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT `+accountColumns+`
		FROM accounts%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		account, err := scanAccountRow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, total, nil
}

func (s *PostgresStore) CountStats(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_admin),
			COUNT(*) FILTER (WHERE is_premium),
			COUNT(*) FILTER (WHERE email_confirmed)
		FROM accounts
	`).Scan(&stats.TotalAccounts, &stats.AdminAccounts, &stats.PremiumAccounts, &stats.ConfirmedEmails)
	if err != nil {
		return models.Stats{}, fmt.Errorf("count account stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET last_seen_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch last seen: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch last seen rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner, op string) (*models.Account, error) {
	account, err := scanAccountRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return account, nil
}

func scanAccountRow(row rowScanner) (*models.Account, error) {
	var (
		account    models.Account
		customerID sql.NullString
	)
	err := row.Scan(&account.ID, &account.Email, &account.PasswordHash,
		&account.FirstName, &account.LastName, &account.IsAdmin, &account.IsPremium,
		&account.EmailConfirmed, &customerID, &account.CreatedAt, &account.LastSeenAt)
	if err != nil {
		return nil, err
	}
	account.BillingCustomerID = customerID.String
	return &account, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
