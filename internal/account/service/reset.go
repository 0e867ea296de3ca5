package service

import (
	"context"
	"errors"

	"memberd/internal/account/models"
	"memberd/internal/eventlog"
	"memberd/internal/jwttoken"
	"memberd/internal/mailer"
	"memberd/internal/platform/requestmeta"
	"memberd/internal/sentinel"
	dErrors "memberd/pkg/domain-errors"
	"memberd/pkg/validation"
)

// RequestPasswordReset mails a reset link when the address is registered.
// The response is identical whether or not the account exists, so the
// endpoint cannot be used to enumerate addresses. Limits apply per target
// email and per caller IP.
func (s *Service) RequestPasswordReset(ctx context.Context, req models.RequestPasswordResetRequest) error {
	if err := validation.Validate(req); err != nil {
		return err
	}

	email := normalizeEmail(req.Email)
	if err := s.checkLimit(ctx, "reset-cooldown", email, resetCooldownQuota, resetCooldownWindow); err != nil {
		return err
	}
	if ip := requestmeta.FromContext(ctx).IP; ip != "" {
		if err := s.checkLimit(ctx, "reset-ip-daily", ip, resetIPDailyQuota, resetIPDailyWindow); err != nil {
			return err
		}
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Same outcome as the happy path, minus the mail.
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not look up account")
	}

	token, err := s.tokens.IssueTyped(jwttoken.PurposeResetPassword, account.ID, "")
	if err != nil {
		s.logger.Error("reset_token_issue_failed", "account_id", account.ID, "error", err)
		return nil
	}
	if s.metrics != nil {
		s.metrics.TokensIssuedTotal.WithLabelValues("reset-password").Inc()
	}

	s.sendMail(ctx, mailer.KindPasswordReset,
		mailer.PasswordResetMessage(account.Email, account.FirstName, s.tokens.PasswordResetURL(token)))
	s.events.Record(ctx, eventlog.ActionResetRequest, &account.ID, nil)
	return nil
}

// ResetPassword consumes a reset token and sets the new password.
func (s *Service) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	if err := validation.Validate(req); err != nil {
		return err
	}

	token, ok := s.tokens.DecodeTyped(req.Token, jwttoken.PurposeResetPassword)
	if !ok {
		return dErrors.New(dErrors.CodeTokenInvalid, "reset link is invalid or has expired")
	}

	account, err := s.findAccount(ctx, token.AccountID)
	if err != nil {
		return dErrors.New(dErrors.CodeTokenInvalid, "reset link is invalid or has expired")
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}
	account.PasswordHash = hash
	if err := s.accounts.Update(ctx, account); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not update account")
	}

	s.events.Record(ctx, eventlog.ActionPasswordReset, &account.ID, nil)
	return nil
}
