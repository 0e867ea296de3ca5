package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberd/internal/account/models"
	"memberd/internal/account/store"
	"memberd/internal/credential"
	"memberd/internal/eventlog"
	"memberd/internal/jwttoken"
	"memberd/internal/mailer"
	"memberd/internal/ratelimit"
	dErrors "memberd/pkg/domain-errors"
)

type capturingMailer struct {
	mu       sync.Mutex
	messages []mailer.Message
}

func (m *capturingMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *capturingMailer) sent() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message{}, m.messages...)
}

func (m *capturingMailer) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	service  *Service
	accounts *store.InMemoryStore
	events   *eventlog.InMemoryStore
	mail     *capturingMailer
	tokens   *jwttoken.Service
	clock    *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	accounts := store.NewInMemoryStore()
	events := eventlog.NewInMemoryStore(eventlog.WithClock(clock.Now))
	mail := &capturingMailer{}
	tokens := jwttoken.New("test-signing-key", "https://app.example.com", jwttoken.WithClock(clock.Now))
	limiter := ratelimit.NewMemoryLimiter(ratelimit.WithClock(clock.Now))

	svc := New(
		accounts,
		credential.NewHasher("legacy-secret"),
		tokens,
		limiter,
		eventlog.NewRecorder(events),
		WithMailer(mail),
		WithClock(clock.Now),
	)
	return &fixture{service: svc, accounts: accounts, events: events, mail: mail, tokens: tokens, clock: clock}
}

func (f *fixture) register(t *testing.T, email, password string) *models.AuthResponse {
	t.Helper()
	resp, err := f.service.Register(context.Background(), models.RegisterRequest{
		Email:     email,
		Password:  password,
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)
	f.mail.reset()
	return resp
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.service.Register(ctx, models.RegisterRequest{
		Email:     "Ada@Example.COM",
		Password:  "correct-horse",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", resp.Profile.Email, "email is normalized to lowercase")
	assert.False(t, resp.Profile.EmailConfirmed)
	assert.NotEmpty(t, resp.Token)

	session, err := f.tokens.DecodeSession(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.Profile.ID, session.Subject().ID)
	_, impersonated := jwttoken.RealAdminID(session)
	assert.False(t, impersonated)

	// Welcome + verification mail, both to the new address.
	sent := f.mail.sent()
	require.Len(t, sent, 2)
	for _, msg := range sent {
		assert.Equal(t, "ada@example.com", msg.To)
	}

	_, total, err := f.events.Query(ctx, eventlog.Filter{Action: eventlog.ActionRegister}, eventlog.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestRegister_DuplicateEmailIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada@example.com", "correct-horse")

	_, err := f.service.Register(context.Background(), models.RegisterRequest{
		Email:    "ADA@EXAMPLE.COM",
		Password: "another-pass",
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestRegister_RejectsShortPassword(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Register(context.Background(), models.RegisterRequest{
		Email:    "ada@example.com",
		Password: "short",
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		resp, err := f.service.Login(ctx, models.LoginRequest{Email: "ada@example.com", Password: "correct-horse"})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Token)

		stored, err := f.accounts.FindByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, f.clock.Now(), stored.LastSeenAt)
	})

	t.Run("wrong password and unknown email are indistinguishable", func(t *testing.T) {
		_, errWrongPass := f.service.Login(ctx, models.LoginRequest{Email: "ada@example.com", Password: "wrong"})
		_, errNoAccount := f.service.Login(ctx, models.LoginRequest{Email: "nobody@example.com", Password: "whatever"})

		require.Error(t, errWrongPass)
		require.Error(t, errNoAccount)
		assert.True(t, dErrors.HasCode(errWrongPass, dErrors.CodeUnauthorized))
		assert.Equal(t, errWrongPass.Error(), errNoAccount.Error())
	})
}

func TestLogin_UpgradesLegacyDigest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.register(t, "ada@example.com", "correct-horse")

	// Rewrite the stored digest to the retired HMAC scheme.
	hasher := credential.NewHasher("legacy-secret")
	account, err := f.accounts.FindByID(ctx, resp.Profile.ID)
	require.NoError(t, err)
	account.PasswordHash = legacyDigest(t, "legacy-secret", "correct-horse")
	require.NoError(t, f.accounts.Update(ctx, account))
	require.True(t, hasher.NeedsRehash(account.PasswordHash))

	_, err = f.service.Login(ctx, models.LoginRequest{Email: "ada@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	upgraded, err := f.accounts.FindByID(ctx, resp.Profile.ID)
	require.NoError(t, err)
	assert.False(t, hasher.NeedsRehash(upgraded.PasswordHash), "legacy digest is replaced on login")
	assert.True(t, hasher.Verify("correct-horse", upgraded.PasswordHash))
}

func TestRefreshToken(t *testing.T) {
	f := newFixture(t)
	resp := f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	session, err := f.tokens.DecodeSession(resp.Token)
	require.NoError(t, err)

	t.Run("fresh token is returned unchanged", func(t *testing.T) {
		refreshed, err := f.service.RefreshToken(ctx, session, resp.Token)
		require.NoError(t, err)
		assert.Equal(t, resp.Token, refreshed.Token)
	})

	t.Run("stale token is reissued with current claims", func(t *testing.T) {
		f.clock.Advance(6 * time.Minute)

		refreshed, err := f.service.RefreshToken(ctx, session, resp.Token)
		require.NoError(t, err)
		assert.NotEqual(t, resp.Token, refreshed.Token)

		newSession, err := f.tokens.DecodeSession(refreshed.Token)
		require.NoError(t, err)
		assert.Equal(t, session.Subject().ID, newSession.Subject().ID)
		assert.True(t, newSession.ExpiresAt().After(session.ExpiresAt()))
	})
}

func TestUpdateProfile_EmailChangeResetsConfirmation(t *testing.T) {
	f := newFixture(t)
	resp := f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	// Confirm first so the reset is observable.
	account, err := f.accounts.FindByID(ctx, resp.Profile.ID)
	require.NoError(t, err)
	account.EmailConfirmed = true
	require.NoError(t, f.accounts.Update(ctx, account))

	newEmail := "ada.l@example.com"
	profile, err := f.service.UpdateProfile(ctx, resp.Profile.ID, models.UpdateProfileRequest{Email: &newEmail})
	require.NoError(t, err)

	assert.Equal(t, newEmail, profile.Email)
	assert.False(t, profile.EmailConfirmed)

	sent := f.mail.sent()
	require.Len(t, sent, 1, "verification mail goes to the new address")
	assert.Equal(t, newEmail, sent[0].To)

	_, total, err := f.events.Query(ctx, eventlog.Filter{Action: eventlog.ActionProfileUpdate}, eventlog.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestUpdateProfile_ConflictingEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "taken@example.com", "correct-horse")
	resp := f.register(t, "ada@example.com", "correct-horse")

	taken := "Taken@example.com"
	_, err := f.service.UpdateProfile(context.Background(), resp.Profile.ID, models.UpdateProfileRequest{Email: &taken})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	resp := f.register(t, "ada@example.com", "correct-horse")
	ctx := context.Background()

	t.Run("wrong current password", func(t *testing.T) {
		err := f.service.ChangePassword(ctx, resp.Profile.ID, models.ChangePasswordRequest{
			CurrentPassword: "wrong",
			NewPassword:     "brand-new-pass",
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("new password must differ", func(t *testing.T) {
		err := f.service.ChangePassword(ctx, resp.Profile.ID, models.ChangePasswordRequest{
			CurrentPassword: "correct-horse",
			NewPassword:     "correct-horse",
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("success", func(t *testing.T) {
		err := f.service.ChangePassword(ctx, resp.Profile.ID, models.ChangePasswordRequest{
			CurrentPassword: "correct-horse",
			NewPassword:     "brand-new-pass",
		})
		require.NoError(t, err)

		_, err = f.service.Login(ctx, models.LoginRequest{Email: "ada@example.com", Password: "brand-new-pass"})
		assert.NoError(t, err)
		_, err = f.service.Login(ctx, models.LoginRequest{Email: "ada@example.com", Password: "correct-horse"})
		assert.Error(t, err)
	})
}
