package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "memberd/pkg/domain-errors"
)

// Purpose tags single-use-flow tokens so a token minted for one flow can
// never be consumed by another.
type Purpose string

const (
	PurposeVerifyEmail   Purpose = "verify-email"
	PurposeResetPassword Purpose = "reset-password"
)

// Identity is the account view carried inside a session token. It is all a
// handler knows about the caller without touching the database.
type Identity struct {
	ID        uuid.UUID
	Email     string
	FirstName string
	LastName  string
	IsAdmin   bool
	IsPremium bool
}

// Session is the decoded form of a session token. It is a closed set:
// NormalSession or ImpersonatedSession. Making impersonation a distinct type
// forces consumers to handle it instead of forgetting an optional field.
type Session interface {
	// Subject returns the effective identity requests act as.
	Subject() Identity
	// ExpiresAt returns the token expiry.
	ExpiresAt() time.Time

	isSession()
}

// NormalSession is a regular authenticated session.
type NormalSession struct {
	Account Identity
	Expiry  time.Time
}

func (s NormalSession) Subject() Identity    { return s.Account }
func (s NormalSession) ExpiresAt() time.Time { return s.Expiry }
func (s NormalSession) isSession()           {}

// ImpersonatedSession is an admin acting as another account. RealAdminID is
// the id the session returns to when impersonation stops.
type ImpersonatedSession struct {
	ActingAs    Identity
	RealAdminID uuid.UUID
	Expiry      time.Time
}

func (s ImpersonatedSession) Subject() Identity    { return s.ActingAs }
func (s ImpersonatedSession) ExpiresAt() time.Time { return s.Expiry }
func (s ImpersonatedSession) isSession()           {}

// sessionClaims is the wire format of session tokens. The purpose field is
// never set on issue; it is decoded so a typed token presented as a bearer
// token can be rejected.
type sessionClaims struct {
	Purpose     string `json:"purpose,omitempty"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	IsAdmin     bool   `json:"is_admin"`
	IsPremium   bool   `json:"is_premium"`
	RealAdminID string `json:"real_admin_id,omitempty"`
	jwt.RegisteredClaims
}

// typedClaims is the wire format of single-purpose tokens. The email claim is
// set for verification tokens only, so changing the account email invalidates
// outstanding verification links.
type typedClaims struct {
	Purpose string `json:"purpose"`
	Email   string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Service issues and validates signed bearer tokens. Tokens are stateless and
// self-verifying; there is no server-side session store, which means a token
// cannot be revoked before its expiry. TTLs are kept short to bound that risk.
type Service struct {
	signingKey []byte
	sessionTTL time.Duration
	verifyTTL  time.Duration
	resetTTL   time.Duration
	publicURL  string
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSessionTTL overrides the session token lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithTypedTTLs overrides the verification and reset token lifetimes.
func WithTypedTTLs(verify, reset time.Duration) Option {
	return func(s *Service) {
		if verify > 0 {
			s.verifyTTL = verify
		}
		if reset > 0 {
			s.resetTTL = reset
		}
	}
}

// New constructs a token Service signing with the given shared secret.
// publicURL is the base for verification/reset links.
func New(signingKey, publicURL string, opts ...Option) *Service {
	svc := &Service{
		signingKey: []byte(signingKey),
		sessionTTL: 48 * time.Hour,
		verifyTTL:  10 * 24 * time.Hour,
		resetTTL:   7 * 24 * time.Hour,
		publicURL:  publicURL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// SessionTTL returns the configured session token lifetime.
func (s *Service) SessionTTL() time.Duration { return s.sessionTTL }

// IssueSession creates a signed session token for account. When impersonating
// is non-nil the token's subject is the impersonated identity and the real
// admin's id is embedded so the original identity can be restored later.
func (s *Service) IssueSession(account Identity, impersonating *Identity) (string, time.Time, error) {
	effective := account
	realAdminID := ""
	if impersonating != nil {
		effective = *impersonating
		realAdminID = account.ID.String()
	}

	now := s.now()
	expiry := now.Add(s.sessionTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Email:       effective.Email,
		FirstName:   effective.FirstName,
		LastName:    effective.LastName,
		IsAdmin:     effective.IsAdmin,
		IsPremium:   effective.IsPremium,
		RealAdminID: realAdminID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   effective.ID.String(),
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, dErrors.Wrap(err, dErrors.CodeInternal, "sign session token")
	}
	return signed, expiry, nil
}

// DecodeSession verifies signature and expiry and returns the decoded session.
// Expired tokens fail with CodeTokenExpired, everything else with
// CodeTokenInvalid, so the transport can attach the right challenge.
func (s *Service) DecodeSession(tokenString string) (Session, error) {
	claims := new(sessionClaims)
	parsed, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeTokenExpired, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeTokenInvalid, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeTokenInvalid, "invalid token")
	}
	if claims.Purpose != "" {
		// A typed token must never authenticate a request.
		return nil, dErrors.New(dErrors.CodeTokenInvalid, "invalid token")
	}

	subjectID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeTokenInvalid, "invalid token subject")
	}

	identity := Identity{
		ID:        subjectID,
		Email:     claims.Email,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		IsAdmin:   claims.IsAdmin,
		IsPremium: claims.IsPremium,
	}
	expiry := claims.ExpiresAt.Time

	if claims.RealAdminID != "" {
		adminID, err := uuid.Parse(claims.RealAdminID)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeTokenInvalid, "invalid token claims")
		}
		return ImpersonatedSession{ActingAs: identity, RealAdminID: adminID, Expiry: expiry}, nil
	}
	return NormalSession{Account: identity, Expiry: expiry}, nil
}

// RealAdminID extracts the embedded admin id from an impersonation session.
// Returns false for normal sessions.
func RealAdminID(session Session) (uuid.UUID, bool) {
	imp, ok := session.(ImpersonatedSession)
	if !ok {
		return uuid.Nil, false
	}
	return imp.RealAdminID, true
}

// TypedToken is the decoded form of a single-purpose token.
type TypedToken struct {
	Purpose   Purpose
	AccountID uuid.UUID
	Email     string
	ExpiresAt time.Time
}

// IssueTyped creates a signed single-purpose token for accountID. The email
// argument is only meaningful for verification tokens and may be empty
// otherwise.
func (s *Service) IssueTyped(purpose Purpose, accountID uuid.UUID, email string) (string, error) {
	ttl := s.resetTTL
	if purpose == PurposeVerifyEmail {
		ttl = s.verifyTTL
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, typedClaims{
		Purpose: string(purpose),
		Email:   email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign typed token")
	}
	return signed, nil
}

// DecodeTyped verifies a single-purpose token against the expected purpose.
// Any failure — bad signature, expiry, purpose mismatch — returns ok=false
// with no further detail, so callers uniformly treat the token as invalid or
// expired without leaking which.
func (s *Service) DecodeTyped(tokenString string, expected Purpose) (TypedToken, bool) {
	claims := new(typedClaims)
	parsed, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return TypedToken{}, false
	}
	if claims.Purpose != string(expected) {
		return TypedToken{}, false
	}
	accountID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return TypedToken{}, false
	}
	return TypedToken{
		Purpose:   expected,
		AccountID: accountID,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}, true
}

// VerificationURL builds the email verification link. The token rides in the
// URL fragment instead of the query string so it never reaches server access
// logs.
func (s *Service) VerificationURL(token string) string {
	return s.publicURL + "/verify-email#" + token
}

// PasswordResetURL builds the password reset link, fragment-based for the
// same reason as VerificationURL.
func (s *Service) PasswordResetURL(token string) string {
	return s.publicURL + "/reset-password#" + token
}

func (s *Service) keyFunc(token *jwt.Token) (any, error) {
	if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, jwt.ErrTokenUnverifiable
	}
	return s.signingKey, nil
}
