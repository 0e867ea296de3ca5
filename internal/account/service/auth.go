package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"memberd/internal/account/models"
	"memberd/internal/eventlog"
	"memberd/internal/jwttoken"
	"memberd/internal/mailer"
	"memberd/internal/sentinel"
	dErrors "memberd/pkg/domain-errors"
	"memberd/pkg/validation"
)

// Register creates an account, provisions billing when configured, sends the
// welcome and verification emails and returns an authenticated session.
// Billing and email failures are logged but never fail registration.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	if err := validation.Validate(req); err != nil {
		return nil, err
	}

	email := normalizeEmail(req.Email)
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	account := &models.Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		CreatedAt:    now,
		LastSeenAt:   now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not create account")
	}

	if s.billing != nil {
		customerID, err := s.billing.ProvisionAccount(ctx, account)
		if err != nil {
			s.logger.Error("billing_provision_failed", "account_id", account.ID, "error", err)
		} else if customerID != "" {
			account.BillingCustomerID = customerID
			if err := s.accounts.Update(ctx, account); err != nil {
				s.logger.Error("billing_customer_save_failed", "account_id", account.ID, "error", err)
			}
		}
	}

	s.events.Record(ctx, eventlog.ActionRegister, &account.ID, map[string]any{
		"email": account.Email,
	})
	if s.metrics != nil {
		s.metrics.RegistrationsTotal.Inc()
	}

	s.sendMail(ctx, mailer.KindWelcome, mailer.WelcomeMessage(account.Email, account.FirstName))
	if verifyToken, err := s.tokens.IssueTyped(jwttoken.PurposeVerifyEmail, account.ID, account.Email); err != nil {
		s.logger.Error("verification_token_issue_failed", "account_id", account.ID, "error", err)
	} else {
		s.sendMail(ctx, mailer.KindVerification,
			mailer.VerificationMessage(account.Email, account.FirstName, s.tokens.VerificationURL(verifyToken)))
	}

	return s.authResponse(account)
}

// Login verifies credentials and returns an authenticated session. Unknown
// email and wrong password produce the same unauthorized error so callers
// cannot probe which addresses are registered.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	if err := validation.Validate(req); err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.authFailure()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not look up account")
	}
	if !s.hasher.Verify(req.Password, account.PasswordHash) {
		return nil, s.authFailure()
	}

	// Legacy digests are upgraded here, the one place the plaintext is known
	// to be correct.
	if s.hasher.NeedsRehash(account.PasswordHash) {
		if hash, err := s.hasher.Hash(req.Password); err == nil {
			account.PasswordHash = hash
			if err := s.accounts.Update(ctx, account); err != nil {
				s.logger.Error("credential_upgrade_failed", "account_id", account.ID, "error", err)
			}
		}
	}

	if err := s.accounts.TouchLastSeen(ctx, account.ID, s.now()); err != nil {
		s.logger.Warn("last_seen_update_failed", "account_id", account.ID, "error", err)
	}

	s.events.Record(ctx, eventlog.ActionLogin, &account.ID, nil)
	if s.metrics != nil {
		s.metrics.LoginsTotal.Inc()
	}
	return s.authResponse(account)
}

// RefreshToken reissues the caller's session token. Tokens younger than the
// reuse window are returned unchanged so polling clients do not mint a fresh
// token on every call. Reissued tokens carry the account's current claims.
func (s *Service) RefreshToken(ctx context.Context, session jwttoken.Session, currentToken string) (*models.TokenResponse, error) {
	issuedAt := session.ExpiresAt().Add(-s.tokens.SessionTTL())
	if s.now().Sub(issuedAt) < refreshReuseWindow {
		return &models.TokenResponse{Token: currentToken, ExpiresAt: session.ExpiresAt()}, nil
	}

	account, err := s.accounts.FindByID(ctx, session.Subject().ID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "account no longer exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not look up account")
	}
	identity := s.identityOf(account)

	var token string
	var expiresAt = session.ExpiresAt()
	if adminID, impersonated := jwttoken.RealAdminID(session); impersonated {
		admin, err := s.accounts.FindByID(ctx, adminID)
		if err != nil || !admin.IsAdmin {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "impersonating admin no longer exists")
		}
		token, expiresAt, err = s.tokens.IssueSession(s.identityOf(admin), &identity)
		if err != nil {
			return nil, err
		}
	} else {
		token, expiresAt, err = s.tokens.IssueSession(identity, nil)
		if err != nil {
			return nil, err
		}
	}

	s.events.Record(ctx, eventlog.ActionTokenRefresh, &account.ID, nil)
	if s.metrics != nil {
		s.metrics.TokensIssuedTotal.WithLabelValues("session").Inc()
	}
	return &models.TokenResponse{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *Service) authResponse(account *models.Account) (*models.AuthResponse, error) {
	token, expiresAt, err := s.tokens.IssueSession(s.identityOf(account), nil)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.TokensIssuedTotal.WithLabelValues("session").Inc()
	}
	return &models.AuthResponse{
		Profile: models.ProfileOf(account),
		Token:   token,
		Expires: expiresAt,
	}, nil
}

func (s *Service) authFailure() error {
	if s.metrics != nil {
		s.metrics.AuthFailuresTotal.Inc()
	}
	return dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
