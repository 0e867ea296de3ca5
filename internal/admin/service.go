package admin

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"memberd/internal/account/models"
	"memberd/internal/account/store"
	"memberd/internal/eventlog"
	"memberd/internal/jwttoken"
	"memberd/internal/sentinel"
	dErrors "memberd/pkg/domain-errors"
	"memberd/pkg/validation"
)

// recentEventCount is how many events the dashboard shows.
const recentEventCount = 10

// Service implements admin operations. Every caller has already passed the
// admin middleware; the remaining checks here are the ones the middleware
// cannot make, like self-deletion and impersonation state.
type Service struct {
	accounts store.Store
	events   eventlog.Store
	recorder *eventlog.Recorder
	tokens   *jwttoken.Service
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(accounts store.Store, events eventlog.Store, recorder *eventlog.Recorder, tokens *jwttoken.Service, opts ...Option) *Service {
	s := &Service{
		accounts: accounts,
		events:   events,
		recorder: recorder,
		tokens:   tokens,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListAccounts returns accounts matching filter with the total match count.
func (s *Service) ListAccounts(ctx context.Context, filter models.ListFilter) (*AccountPage, error) {
	filter = filter.Normalize()
	accounts, total, err := s.accounts.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not list accounts")
	}

	views := make([]AccountView, len(accounts))
	for i := range accounts {
		views[i] = viewOf(&accounts[i])
	}
	return &AccountPage{Accounts: views, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// GetAccount returns the admin view of one account.
func (s *Service) GetAccount(ctx context.Context, accountID uuid.UUID) (*AccountView, error) {
	account, err := s.findAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	view := viewOf(account)
	return &view, nil
}

// UpdateAccount applies the non-nil fields of req to the target account and
// records the before/after diff of every changed field.
func (s *Service) UpdateAccount(ctx context.Context, adminID, targetID uuid.UUID, req UpdateAccountRequest) (*AccountView, error) {
	if err := validation.Validate(req); err != nil {
		return nil, err
	}

	account, err := s.findAccount(ctx, targetID)
	if err != nil {
		return nil, err
	}

	diff := map[string]any{}
	apply := func(field string, from, to any, set func()) {
		if from == to {
			return
		}
		diff[field] = map[string]any{"from": from, "to": to}
		set()
	}

	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		apply("email", account.Email, email, func() {
			account.Email = email
			account.EmailConfirmed = false
		})
	}
	if req.FirstName != nil {
		apply("first_name", account.FirstName, strings.TrimSpace(*req.FirstName), func() {
			account.FirstName = strings.TrimSpace(*req.FirstName)
		})
	}
	if req.LastName != nil {
		apply("last_name", account.LastName, strings.TrimSpace(*req.LastName), func() {
			account.LastName = strings.TrimSpace(*req.LastName)
		})
	}
	if req.IsAdmin != nil {
		apply("is_admin", account.IsAdmin, *req.IsAdmin, func() { account.IsAdmin = *req.IsAdmin })
	}
	if req.IsPremium != nil {
		apply("is_premium", account.IsPremium, *req.IsPremium, func() { account.IsPremium = *req.IsPremium })
	}
	if req.EmailConfirmed != nil {
		apply("email_confirmed", account.EmailConfirmed, *req.EmailConfirmed, func() { account.EmailConfirmed = *req.EmailConfirmed })
	}

	if len(diff) > 0 {
		if err := s.accounts.Update(ctx, account); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return nil, dErrors.New(dErrors.CodeConflict, "email is already registered")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not update account")
		}
		s.recorder.Record(ctx, eventlog.ActionAdminUserUpdate, &adminID, map[string]any{
			"target_id": targetID.String(),
			"changes":   diff,
		})
	}

	view := viewOf(account)
	return &view, nil
}

// DeleteAccount removes the target account. Admins cannot delete themselves.
// The deletion event is recorded first and the target's event history is
// explicitly detached, so the log survives the account.
func (s *Service) DeleteAccount(ctx context.Context, adminID, targetID uuid.UUID) error {
	if adminID == targetID {
		return dErrors.New(dErrors.CodeForbidden, "admins cannot delete their own account")
	}

	account, err := s.findAccount(ctx, targetID)
	if err != nil {
		return err
	}

	s.recorder.Record(ctx, eventlog.ActionAdminUserDelete, &adminID, map[string]any{
		"target_id":    targetID.String(),
		"target_email": account.Email,
	})

	if _, err := s.events.DetachActor(ctx, targetID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not detach event history")
	}
	if err := s.accounts.Delete(ctx, targetID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not delete account")
	}
	return nil
}

// Impersonate issues a session acting as the target account while embedding
// the admin's identity for the way back. Impersonation cannot nest and
// admins cannot impersonate themselves.
func (s *Service) Impersonate(ctx context.Context, session jwttoken.Session, targetID uuid.UUID) (*models.TokenResponse, error) {
	if _, nested := jwttoken.RealAdminID(session); nested {
		return nil, dErrors.New(dErrors.CodeForbidden, "already impersonating, stop first")
	}
	adminID := session.Subject().ID
	if adminID == targetID {
		return nil, dErrors.New(dErrors.CodeForbidden, "cannot impersonate yourself")
	}

	admin, err := s.findAccount(ctx, adminID)
	if err != nil {
		return nil, err
	}
	target, err := s.findAccount(ctx, targetID)
	if err != nil {
		return nil, err
	}

	targetIdentity := identityOf(target)
	token, expiresAt, err := s.tokens.IssueSession(identityOf(admin), &targetIdentity)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, eventlog.ActionAdminImpersonateStart, &adminID, map[string]any{
		"target_id": targetID.String(),
	})
	return &models.TokenResponse{Token: token, ExpiresAt: expiresAt}, nil
}

// StopImpersonate ends an impersonated session and restores the admin's own
// session. The embedded admin account must still exist and still be an
// admin; demotion mid-impersonation invalidates the way back.
func (s *Service) StopImpersonate(ctx context.Context, session jwttoken.Session) (*models.TokenResponse, error) {
	adminID, ok := jwttoken.RealAdminID(session)
	if !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, "session is not impersonating anyone")
	}

	admin, err := s.findAccount(ctx, adminID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "impersonating admin no longer exists")
	}
	if !admin.IsAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "impersonating account is no longer an admin")
	}

	token, expiresAt, err := s.tokens.IssueSession(identityOf(admin), nil)
	if err != nil {
		return nil, err
	}

	impersonatedID := session.Subject().ID
	s.recorder.Record(ctx, eventlog.ActionAdminImpersonateStop, &adminID, map[string]any{
		"target_id": impersonatedID.String(),
	})
	return &models.TokenResponse{Token: token, ExpiresAt: expiresAt}, nil
}

// GetDashboard aggregates account stats and the latest activity.
func (s *Service) GetDashboard(ctx context.Context) (*Dashboard, error) {
	stats, err := s.accounts.CountStats(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not count accounts")
	}
	entries, _, err := s.events.Query(ctx, eventlog.Filter{}, eventlog.Page{Limit: recentEventCount})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load recent events")
	}

	recent := make([]EventView, len(entries))
	for i, e := range entries {
		recent[i] = eventViewOf(e)
	}
	return &Dashboard{Stats: stats, RecentEvents: recent}, nil
}

// ListEvents returns event log entries matching filter.
func (s *Service) ListEvents(ctx context.Context, filter eventlog.Filter, page eventlog.Page) (*EventPage, error) {
	page = page.Normalize()
	entries, total, err := s.events.Query(ctx, filter, page)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not query events")
	}

	views := make([]EventView, len(entries))
	for i, e := range entries {
		views[i] = eventViewOf(e)
	}
	return &EventPage{Events: views, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

func (s *Service) findAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not look up account")
	}
	return account, nil
}

func identityOf(account *models.Account) jwttoken.Identity {
	return jwttoken.Identity{
		ID:        account.ID,
		Email:     account.Email,
		FirstName: account.FirstName,
		LastName:  account.LastName,
		IsAdmin:   account.IsAdmin,
		IsPremium: account.IsPremium,
	}
}
