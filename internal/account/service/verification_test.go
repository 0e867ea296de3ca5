package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberd/internal/account/models"
	"memberd/internal/eventlog"
	"memberd/internal/jwttoken"
	dErrors "memberd/pkg/domain-errors"
)

func legacyDigest(t *testing.T, secret, password string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(password))
	return hex.EncodeToString(mac.Sum(nil))
}

// tokenFromMail digs the fragment token out of a mailed link.
func tokenFromMail(t *testing.T, body string) string {
	t.Helper()
	idx := strings.Index(body, "#")
	require.GreaterOrEqual(t, idx, 0, "mail body must contain a fragment link")
	rest := body[idx+1:]
	if end := strings.IndexAny(rest, " \n"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

func TestSendVerificationEmail(t *testing.T) {
	f := newFixture(t)
	resp := f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		require.NoError(t, f.service.SendVerificationEmail(ctx, resp.Profile.ID))
		sent := f.mail.sent()
		require.Len(t, sent, 1)
		assert.Contains(t, sent[0].Text, "https://app.example.com/verify-email#")
		f.mail.reset()
	})

	t.Run("cooldown blocks immediate resend", func(t *testing.T) {
		err := f.service.SendVerificationEmail(ctx, resp.Profile.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeRateLimited))
		assert.Empty(t, f.mail.sent())
	})

	t.Run("resend allowed after cooldown", func(t *testing.T) {
		f.clock.Advance(5*time.Minute + time.Second)
		require.NoError(t, f.service.SendVerificationEmail(ctx, resp.Profile.ID))
		f.mail.reset()
	})

	t.Run("already verified is a conflict", func(t *testing.T) {
		account, err := f.accounts.FindByID(ctx, resp.Profile.ID)
		require.NoError(t, err)
		account.EmailConfirmed = true
		require.NoError(t, f.accounts.Update(ctx, account))

		err = f.service.SendVerificationEmail(ctx, resp.Profile.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func TestVerifyEmail(t *testing.T) {
	f := newFixture(t)
	resp := f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	require.NoError(t, f.service.SendVerificationEmail(ctx, resp.Profile.ID))
	token := tokenFromMail(t, f.mail.sent()[0].Text)

	t.Run("success", func(t *testing.T) {
		require.NoError(t, f.service.VerifyEmail(ctx, models.VerifyEmailRequest{Token: token}))

		account, err := f.accounts.FindByID(ctx, resp.Profile.ID)
		require.NoError(t, err)
		assert.True(t, account.EmailConfirmed)

		_, total, err := f.events.Query(ctx, eventlog.Filter{Action: eventlog.ActionEmailVerify}, eventlog.Page{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("repeat verification is a no-op success", func(t *testing.T) {
		require.NoError(t, f.service.VerifyEmail(ctx, models.VerifyEmailRequest{Token: token}))

		_, total, err := f.events.Query(ctx, eventlog.Filter{Action: eventlog.ActionEmailVerify}, eventlog.Page{})
		require.NoError(t, err)
		assert.Equal(t, 1, total, "no second event for an idempotent retry")
	})

	t.Run("garbage token", func(t *testing.T) {
		err := f.service.VerifyEmail(ctx, models.VerifyEmailRequest{Token: "not-a-token"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTokenInvalid))
	})
}

func TestVerifyEmail_StaleLinkAfterEmailChange(t *testing.T) {
	f := newFixture(t)
	resp := f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	require.NoError(t, f.service.SendVerificationEmail(ctx, resp.Profile.ID))
	oldToken := tokenFromMail(t, f.mail.sent()[0].Text)
	f.mail.reset()

	newEmail := "new@example.com"
	_, err := f.service.UpdateProfile(ctx, resp.Profile.ID, models.UpdateProfileRequest{Email: &newEmail})
	require.NoError(t, err)

	err = f.service.VerifyEmail(ctx, models.VerifyEmailRequest{Token: oldToken})
	require.Error(t, err, "link sent to the old address must die with the email change")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTokenInvalid))
}

func TestVerifyEmail_ExpiredToken(t *testing.T) {
	f := newFixture(t)
	resp := f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	token, err := f.tokens.IssueTyped(jwttoken.PurposeVerifyEmail, resp.Profile.ID, "ada@example.com")
	require.NoError(t, err)

	f.clock.Advance(10*24*time.Hour + time.Minute)

	err = f.service.VerifyEmail(ctx, models.VerifyEmailRequest{Token: token})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTokenInvalid))
}

func TestRequestPasswordReset(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	t.Run("known address gets a mail", func(t *testing.T) {
		require.NoError(t, f.service.RequestPasswordReset(ctx, models.RequestPasswordResetRequest{Email: "ada@example.com"}))
		sent := f.mail.sent()
		require.Len(t, sent, 1)
		assert.Contains(t, sent[0].Text, "https://app.example.com/reset-password#")
		f.mail.reset()
	})

	t.Run("unknown address succeeds identically without mail", func(t *testing.T) {
		require.NoError(t, f.service.RequestPasswordReset(ctx, models.RequestPasswordResetRequest{Email: "nobody@example.com"}))
		assert.Empty(t, f.mail.sent())
	})

	t.Run("cooldown applies per email", func(t *testing.T) {
		err := f.service.RequestPasswordReset(ctx, models.RequestPasswordResetRequest{Email: "ada@example.com"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeRateLimited))

		// A different address is unaffected.
		require.NoError(t, f.service.RequestPasswordReset(ctx, models.RequestPasswordResetRequest{Email: "other@example.com"}))
	})
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	require.NoError(t, f.service.RequestPasswordReset(ctx, models.RequestPasswordResetRequest{Email: "ada@example.com"}))
	token := tokenFromMail(t, f.mail.sent()[0].Text)

	t.Run("success end to end", func(t *testing.T) {
		require.NoError(t, f.service.ResetPassword(ctx, models.ResetPasswordRequest{
			Token:       token,
			NewPassword: "fresh-password",
		}))

		_, err := f.service.Login(ctx, models.LoginRequest{Email: "ada@example.com", Password: "fresh-password"})
		assert.NoError(t, err)
		_, err = f.service.Login(ctx, models.LoginRequest{Email: "ada@example.com", Password: "correct-horse"})
		assert.Error(t, err)
	})

	t.Run("short password is rejected", func(t *testing.T) {
		err := f.service.ResetPassword(ctx, models.ResetPasswordRequest{Token: token, NewPassword: "short"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("verification token cannot reset a password", func(t *testing.T) {
		account, err := f.accounts.FindByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		crossToken, err := f.tokens.IssueTyped(jwttoken.PurposeVerifyEmail, account.ID, account.Email)
		require.NoError(t, err)

		err = f.service.ResetPassword(ctx, models.ResetPasswordRequest{Token: crossToken, NewPassword: "fresh-password2"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTokenInvalid))
	})
}
