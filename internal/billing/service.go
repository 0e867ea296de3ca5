package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"memberd/internal/account/models"
	"memberd/internal/account/store"
	"memberd/internal/platform/metrics"
	"memberd/internal/sentinel"
	dErrors "memberd/pkg/domain-errors"
)

// SubscriptionStatus is the account-facing view of the provider state.
type SubscriptionStatus struct {
	Active    bool      `json:"active"`
	IsPremium bool      `json:"is_premium"`
	Status    string    `json:"status,omitempty"`
	PeriodEnd time.Time `json:"period_end,omitzero"`
}

// Service keeps accounts and the payment provider in sync. A Service with a
// nil provider is disabled: provisioning becomes a no-op and the
// customer-facing operations fail with CodeUnavailable.
type Service struct {
	accounts       store.Store
	provider       Provider
	defaultPriceID string
	publicURL      string
	logger         *slog.Logger
	metrics        *metrics.Metrics
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

// New constructs the billing service. provider may be nil to disable billing.
func New(accounts store.Store, provider Provider, defaultPriceID, publicURL string, opts ...Option) *Service {
	s := &Service{
		accounts:       accounts,
		provider:       provider,
		defaultPriceID: defaultPriceID,
		publicURL:      publicURL,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether a provider is configured.
func (s *Service) Enabled() bool { return s.provider != nil }

// ProvisionAccount ensures the account has a provider customer and the
// default subscription. Called from registration, where failures are soft.
func (s *Service) ProvisionAccount(ctx context.Context, account *models.Account) (string, error) {
	if !s.Enabled() {
		return "", nil
	}

	customerID, err := s.ensureCustomer(ctx, account)
	if err != nil {
		return "", err
	}

	if s.defaultPriceID != "" {
		if _, err := s.provider.CreateSubscription(ctx, customerID, s.defaultPriceID); err != nil {
			// The customer exists; the default subscription can be set up
			// later by reconciliation or checkout.
			s.logger.Warn("default_subscription_failed", "customer_id", customerID, "error", err)
		}
	}
	return customerID, nil
}

// ensureCustomer finds or creates the provider customer for account. A
// customer with the same email whose metadata points at a missing account is
// an orphan from a deleted registration and gets reclaimed instead of
// creating a duplicate.
func (s *Service) ensureCustomer(ctx context.Context, account *models.Account) (string, error) {
	if account.BillingCustomerID != "" {
		return account.BillingCustomerID, nil
	}

	candidates, err := s.provider.CustomersByEmail(ctx, account.Email)
	if err != nil {
		return "", err
	}
	for _, candidate := range candidates {
		if !s.isOrphan(ctx, candidate, account.ID) {
			continue
		}
		if err := s.provider.ClaimCustomer(ctx, candidate.ID, account.ID.String()); err != nil {
			s.logger.Warn("customer_claim_failed", "customer_id", candidate.ID, "error", err)
			continue
		}
		return candidate.ID, nil
	}

	customer, err := s.provider.CreateCustomer(ctx, account.Email,
		displayName(account), account.ID.String())
	if err != nil {
		return "", err
	}
	return customer.ID, nil
}

// isOrphan reports whether a provider customer is safe to reclaim: either
// its metadata never referenced an account, it already references this one,
// or the referenced account no longer exists.
func (s *Service) isOrphan(ctx context.Context, customer Customer, accountID uuid.UUID) bool {
	ref := customer.Metadata["account_id"]
	if ref == "" || ref == accountID.String() {
		return true
	}
	refID, err := uuid.Parse(ref)
	if err != nil {
		return true
	}
	_, err = s.accounts.FindByID(ctx, refID)
	return errors.Is(err, sentinel.ErrNotFound)
}

// SubscriptionStatus reports the provider-side state for accountID.
func (s *Service) SubscriptionStatus(ctx context.Context, accountID uuid.UUID) (*SubscriptionStatus, error) {
	if !s.Enabled() {
		return nil, dErrors.New(dErrors.CodeUnavailable, "billing is not configured")
	}

	account, err := s.findAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.BillingCustomerID == "" {
		return &SubscriptionStatus{}, nil
	}

	current, err := s.currentSubscription(ctx, account.BillingCustomerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not reach billing provider")
	}
	if current == nil {
		return &SubscriptionStatus{}, nil
	}
	return &SubscriptionStatus{
		Active:    true,
		IsPremium: current.Paid(),
		Status:    current.Status,
		PeriodEnd: current.CurrentPeriodEnd,
	}, nil
}

// Reconcile recomputes IsPremium for the account owning customerID from the
// provider's current state and corrects the stored flag when they disagree.
// Recomputing from current state rather than applying deltas makes the
// operation idempotent and safe under duplicate or out-of-order webhooks.
func (s *Service) Reconcile(ctx context.Context, customerID string) error {
	if !s.Enabled() {
		return nil
	}

	account, err := s.accounts.FindByBillingCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Customer belongs to no account, nothing to sync.
			s.countSync("unmatched")
			return nil
		}
		s.countSync("error")
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not look up account")
	}

	current, err := s.currentSubscription(ctx, customerID)
	if err != nil {
		s.countSync("error")
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "could not reach billing provider")
	}

	premium := current != nil && current.Paid()
	if account.IsPremium == premium {
		s.countSync("unchanged")
		return nil
	}

	account.IsPremium = premium
	if err := s.accounts.Update(ctx, account); err != nil {
		s.countSync("error")
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not update account")
	}

	s.logger.Info("premium_status_synced",
		"account_id", account.ID,
		"customer_id", customerID,
		"is_premium", premium,
	)
	s.countSync("updated")
	return nil
}

// PortalURL creates a billing portal session for the account. Unlike
// provisioning, failures here propagate: a member asked for the portal and
// deserves to know it did not open.
func (s *Service) PortalURL(ctx context.Context, accountID uuid.UUID) (string, error) {
	if !s.Enabled() {
		return "", dErrors.New(dErrors.CodeUnavailable, "billing is not configured")
	}

	account, err := s.findAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	customerID, err := s.requireCustomer(ctx, account)
	if err != nil {
		return "", err
	}

	portalURL, err := s.provider.PortalSessionURL(ctx, customerID, s.publicURL+"/account")
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "could not open billing portal")
	}
	return portalURL, nil
}

// CheckoutURL creates a checkout session for the default paid plan.
func (s *Service) CheckoutURL(ctx context.Context, accountID uuid.UUID) (string, error) {
	if !s.Enabled() {
		return "", dErrors.New(dErrors.CodeUnavailable, "billing is not configured")
	}
	if s.defaultPriceID == "" {
		return "", dErrors.New(dErrors.CodeUnavailable, "no default plan is configured")
	}

	account, err := s.findAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	customerID, err := s.requireCustomer(ctx, account)
	if err != nil {
		return "", err
	}

	checkoutURL, err := s.provider.CheckoutSessionURL(ctx, customerID, s.defaultPriceID,
		s.publicURL+"/account?checkout=success", s.publicURL+"/account?checkout=cancelled")
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "could not start checkout")
	}
	return checkoutURL, nil
}

// requireCustomer returns the account's customer id, provisioning one on the
// fly for accounts registered while billing was disabled.
func (s *Service) requireCustomer(ctx context.Context, account *models.Account) (string, error) {
	if account.BillingCustomerID != "" {
		return account.BillingCustomerID, nil
	}

	customerID, err := s.ensureCustomer(ctx, account)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "could not reach billing provider")
	}
	account.BillingCustomerID = customerID
	if err := s.accounts.Update(ctx, account); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not update account")
	}
	return customerID, nil
}

// currentSubscription picks the subscription that determines entitlement:
// the newest active one, preferring paid over free.
func (s *Service) currentSubscription(ctx context.Context, customerID string) (*Subscription, error) {
	subs, err := s.provider.SubscriptionsByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	var best *Subscription
	for i := range subs {
		sub := &subs[i]
		if !sub.Active() {
			continue
		}
		if best == nil || (sub.Paid() && !best.Paid()) {
			best = sub
		}
	}
	return best, nil
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

func (s *Service) countSync(outcome string) {
	if s.metrics != nil {
		s.metrics.BillingSyncsTotal.WithLabelValues(outcome).Inc()
	}
}

func displayName(account *models.Account) string {
	switch {
	case account.FirstName != "" && account.LastName != "":
		return account.FirstName + " " + account.LastName
	case account.FirstName != "":
		return account.FirstName
	default:
		return account.LastName
	}
}
