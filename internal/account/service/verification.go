package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"memberd/internal/account/models"
	"memberd/internal/eventlog"
	"memberd/internal/jwttoken"
	"memberd/internal/mailer"
	"memberd/internal/ratelimit"
	dErrors "memberd/pkg/domain-errors"
	"memberd/pkg/validation"
)

// SendVerificationEmail mails a fresh verification link to the caller.
// Already-confirmed accounts are rejected; the per-account cooldown and daily
// cap bound resend abuse.
func (s *Service) SendVerificationEmail(ctx context.Context, accountID uuid.UUID) error {
	account, err := s.findAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account.EmailConfirmed {
		return dErrors.New(dErrors.CodeConflict, "email is already verified")
	}

	key := account.ID.String()
	if err := s.checkLimit(ctx, "verification-cooldown", key, verifyCooldownQuota, verifyCooldownWindow); err != nil {
		return err
	}
	if err := s.checkLimit(ctx, "verification-daily", key, verifyDailyQuota, verifyDailyWindow); err != nil {
		return err
	}

	s.sendVerification(ctx, account)
	return nil
}

// VerifyEmail consumes a verification token. The email inside the token must
// match the account's current address, so a link sent to an old address dies
// when the account email changes. Verifying an already-confirmed account is a
// no-op success, making retried clicks harmless.
func (s *Service) VerifyEmail(ctx context.Context, req models.VerifyEmailRequest) error {
	if err := validation.Validate(req); err != nil {
		return err
	}

	token, ok := s.tokens.DecodeTyped(req.Token, jwttoken.PurposeVerifyEmail)
	if !ok {
		return dErrors.New(dErrors.CodeTokenInvalid, "verification link is invalid or has expired")
	}

	account, err := s.findAccount(ctx, token.AccountID)
	if err != nil {
		return dErrors.New(dErrors.CodeTokenInvalid, "verification link is invalid or has expired")
	}
	if !emailsEqual(token.Email, account.Email) {
		return dErrors.New(dErrors.CodeTokenInvalid, "verification link is invalid or has expired")
	}
	if account.EmailConfirmed {
		return nil
	}

	account.EmailConfirmed = true
	if err := s.accounts.Update(ctx, account); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not update account")
	}

	s.events.Record(ctx, eventlog.ActionEmailVerify, &account.ID, nil)
	return nil
}

// sendVerification issues a token and mails the link, best-effort.
func (s *Service) sendVerification(ctx context.Context, account *models.Account) {
	token, err := s.tokens.IssueTyped(jwttoken.PurposeVerifyEmail, account.ID, account.Email)
	if err != nil {
		s.logger.Error("verification_token_issue_failed", "account_id", account.ID, "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.TokensIssuedTotal.WithLabelValues("verify-email").Inc()
	}
	s.sendMail(ctx, mailer.KindVerification,
		mailer.VerificationMessage(account.Email, account.FirstName, s.tokens.VerificationURL(token)))
}

// checkLimit consults the limiter, failing open when the limiter itself is
// unavailable so a Redis outage degrades to unlimited rather than a lockout.
func (s *Service) checkLimit(ctx context.Context, action, key string, quota int, window time.Duration) error {
	res, err := s.limiter.Allow(ctx, action, key, quota, window)
	if err != nil {
		s.logger.Warn("rate_limit_check_failed", "action", action, "error", err)
		return nil
	}
	if res.Allowed {
		return nil
	}
	if s.metrics != nil {
		s.metrics.RateLimitDenialsTotal.WithLabelValues(action).Inc()
	}
	return dErrors.Wrap(
		&ratelimit.DeniedError{Action: action, Result: res},
		dErrors.CodeRateLimited,
		"too many requests, try again later",
	)
}

func emailsEqual(a, b string) bool {
	return normalizeEmail(a) == normalizeEmail(b)
}
