// Package service implements the account domain operations: registration,
// authentication, profile management, email verification and password reset.
package service

import (
	"context"
	"log/slog"
	"time"

	"memberd/internal/account/models"
	"memberd/internal/account/store"
	"memberd/internal/credential"
	"memberd/internal/eventlog"
	"memberd/internal/jwttoken"
	"memberd/internal/mailer"
	"memberd/internal/platform/metrics"
	"memberd/internal/ratelimit"
)

// Rate limit quotas. Cooldowns stop tight resend loops; the daily caps bound
// abuse that paces itself past the cooldown.
const (
	verifyCooldownQuota  = 1
	verifyCooldownWindow = 5 * time.Minute
	verifyDailyQuota     = 10
	verifyDailyWindow    = 24 * time.Hour

	resetCooldownQuota  = 1
	resetCooldownWindow = 5 * time.Minute
	resetIPDailyQuota   = 20
	resetIPDailyWindow  = 24 * time.Hour
)

// refreshReuseWindow is how long a freshly issued session token keeps being
// returned unchanged by the refresh endpoint, so polling clients don't mint a
// new token per request.
const refreshReuseWindow = 5 * time.Minute

// BillingProvisioner sets up billing records for a new account. Registration
// treats failures as soft: the account is created either way.
type BillingProvisioner interface {
	ProvisionAccount(ctx context.Context, account *models.Account) (customerID string, err error)
}

// Service orchestrates account flows over the store and the supporting
// platform services.
type Service struct {
	accounts store.Store
	hasher   *credential.Hasher
	tokens   *jwttoken.Service
	limiter  ratelimit.Limiter
	mail     mailer.Mailer
	events   *eventlog.Recorder
	billing  BillingProvisioner
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithBilling attaches the billing provisioner used at registration.
func WithBilling(b BillingProvisioner) Option {
	return func(s *Service) {
		s.billing = b
	}
}

func WithMailer(m mailer.Mailer) Option {
	return func(s *Service) {
		if m != nil {
			s.mail = m
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs the account service. The mailer defaults to disabled and
// billing to none; production wiring supplies both via options.
func New(
	accounts store.Store,
	hasher *credential.Hasher,
	tokens *jwttoken.Service,
	limiter ratelimit.Limiter,
	events *eventlog.Recorder,
	opts ...Option,
) *Service {
	s := &Service{
		accounts: accounts,
		hasher:   hasher,
		tokens:   tokens,
		limiter:  limiter,
		mail:     mailer.Disabled{},
		events:   events,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) identityOf(account *models.Account) jwttoken.Identity {
	return jwttoken.Identity{
		ID:        account.ID,
		Email:     account.Email,
		FirstName: account.FirstName,
		LastName:  account.LastName,
		IsAdmin:   account.IsAdmin,
		IsPremium: account.IsPremium,
	}
}

// sendMail delivers msg best-effort, logging and counting the outcome.
func (s *Service) sendMail(ctx context.Context, kind string, msg mailer.Message) {
	err := s.mail.Send(ctx, msg)
	outcome := "sent"
	if err != nil {
		outcome = "failed"
		s.logger.Error("email_send_failed", "kind", kind, "error", err)
	}
	if s.metrics != nil {
		s.metrics.EmailsSentTotal.WithLabelValues(kind, outcome).Inc()
	}
}
