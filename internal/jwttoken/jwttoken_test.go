package jwttoken

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "memberd/pkg/domain-errors"
)

func testIdentity() Identity {
	return Identity{
		ID:        uuid.New(),
		Email:     "user@example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}
}

func TestSessionRoundTrip(t *testing.T) {
	svc := New("test-key", "https://app.example.com")
	identity := testIdentity()

	token, expiry, err := svc.IssueSession(identity, nil)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), expiry, time.Minute)

	session, err := svc.DecodeSession(token)
	require.NoError(t, err)

	normal, ok := session.(NormalSession)
	require.True(t, ok, "expected a normal session, got %T", session)
	assert.Equal(t, identity, normal.Subject())
	assert.WithinDuration(t, expiry, session.ExpiresAt(), time.Second)

	_, isImpersonated := RealAdminID(session)
	assert.False(t, isImpersonated)
}

func TestImpersonatedSession(t *testing.T) {
	svc := New("test-key", "https://app.example.com")
	admin := testIdentity()
	admin.IsAdmin = true
	target := testIdentity()

	token, _, err := svc.IssueSession(admin, &target)
	require.NoError(t, err)

	session, err := svc.DecodeSession(token)
	require.NoError(t, err)

	imp, ok := session.(ImpersonatedSession)
	require.True(t, ok, "expected an impersonated session, got %T", session)
	assert.Equal(t, target, imp.Subject())
	assert.False(t, imp.Subject().IsAdmin)

	adminID, isImpersonated := RealAdminID(session)
	require.True(t, isImpersonated)
	assert.Equal(t, admin.ID, adminID)
}

func TestDecodeSessionRejections(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	svc := New("test-key", "https://app.example.com", WithClock(clock))
	identity := testIdentity()

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.DecodeSession("not-a-token")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTokenInvalid))
	})

	t.Run("wrong signing key", func(t *testing.T) {
		other := New("other-key", "https://app.example.com")
		token, _, err := other.IssueSession(identity, nil)
		require.NoError(t, err)

		_, err = svc.DecodeSession(token)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTokenInvalid))
	})

	t.Run("expired", func(t *testing.T) {
		token, _, err := svc.IssueSession(identity, nil)
		require.NoError(t, err)

		now = now.Add(48*time.Hour + time.Minute)
		defer func() { now = time.Now() }()

		_, err = svc.DecodeSession(token)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTokenExpired))
	})

	t.Run("typed token as bearer", func(t *testing.T) {
		token, err := svc.IssueTyped(PurposeVerifyEmail, identity.ID, identity.Email)
		require.NoError(t, err)

		_, err = svc.DecodeSession(token)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTokenInvalid))
	})
}

func TestTypedTokens(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	svc := New("test-key", "https://app.example.com", WithClock(clock))
	accountID := uuid.New()

	t.Run("verification round trip", func(t *testing.T) {
		token, err := svc.IssueTyped(PurposeVerifyEmail, accountID, "user@example.com")
		require.NoError(t, err)

		decoded, ok := svc.DecodeTyped(token, PurposeVerifyEmail)
		require.True(t, ok)
		assert.Equal(t, accountID, decoded.AccountID)
		assert.Equal(t, "user@example.com", decoded.Email)
	})

	t.Run("purpose mismatch", func(t *testing.T) {
		token, err := svc.IssueTyped(PurposeResetPassword, accountID, "")
		require.NoError(t, err)

		_, ok := svc.DecodeTyped(token, PurposeVerifyEmail)
		assert.False(t, ok)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := svc.IssueTyped(PurposeResetPassword, accountID, "")
		require.NoError(t, err)

		now = now.Add(7*24*time.Hour + time.Minute)
		defer func() { now = time.Now() }()

		_, ok := svc.DecodeTyped(token, PurposeResetPassword)
		assert.False(t, ok)
	})
}

func TestLinkURLs(t *testing.T) {
	svc := New("test-key", "https://app.example.com")

	assert.Equal(t, "https://app.example.com/verify-email#tok", svc.VerificationURL("tok"))
	assert.Equal(t, "https://app.example.com/reset-password#tok", svc.PasswordResetURL("tok"))
}
