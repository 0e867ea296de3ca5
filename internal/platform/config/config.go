package config

import (
	"net/netip"
	"os"
	"strings"
	"time"
)

// Token lifetime defaults. Sessions are deliberately short-lived relative to
// the single-purpose tokens, which are delivered out of band via email links.
const (
	DefaultSessionTokenTTL = 48 * time.Hour
	DefaultVerifyTokenTTL  = 10 * 24 * time.Hour
	DefaultResetTokenTTL   = 7 * 24 * time.Hour
)

// Server captures top-level application configuration.
type Server struct {
	Addr        string
	Environment string
	PublicURL   string

	JWTSigningKey      string
	PasswordHashSecret string
	SessionTokenTTL    time.Duration
	VerifyTokenTTL     time.Duration
	ResetTokenTTL      time.Duration

	DatabaseURL string
	RedisURL    string

	// TrustedProxies lists CIDR prefixes allowed to set X-Forwarded-For.
	TrustedProxies []netip.Prefix

	Billing Billing
	Mail    Mail

	// Seed admin credentials for first boot. Ignored when empty.
	AdminEmail    string
	AdminPassword string
}

// Billing configures the subscription provider integration.
// The integration is disabled when APIKey is empty.
type Billing struct {
	APIKey         string
	BaseURL        string
	WebhookSecret  string
	DefaultPriceID string
}

// Mail configures the outbound email provider.
// Sending is disabled when APIKey is empty.
type Mail struct {
	APIKey   string
	Domain   string
	BaseURL  string
	FromName string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:               envOr("ADDR", ":8080"),
		Environment:        envOr("ENVIRONMENT", "development"),
		PublicURL:          strings.TrimRight(os.Getenv("PUBLIC_URL"), "/"),
		JWTSigningKey:      envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		PasswordHashSecret: os.Getenv("PASSWORD_HASH_SECRET"),
		SessionTokenTTL:    durationOr("SESSION_TOKEN_TTL", DefaultSessionTokenTTL),
		VerifyTokenTTL:     durationOr("VERIFY_TOKEN_TTL", DefaultVerifyTokenTTL),
		ResetTokenTTL:      durationOr("RESET_TOKEN_TTL", DefaultResetTokenTTL),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		Billing: Billing{
			APIKey:         os.Getenv("BILLING_API_KEY"),
			BaseURL:        envOr("BILLING_BASE_URL", "https://api.stripe.com"),
			WebhookSecret:  os.Getenv("BILLING_WEBHOOK_SECRET"),
			DefaultPriceID: os.Getenv("BILLING_DEFAULT_PRICE_ID"),
		},
		Mail: Mail{
			APIKey:   os.Getenv("MAILGUN_API_KEY"),
			Domain:   os.Getenv("MAILGUN_DOMAIN"),
			BaseURL:  envOr("MAILGUN_API_BASEURL", "https://api.eu.mailgun.net"),
			FromName: envOr("MAILGUN_FROM_NAME", "memberd"),
		},
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}

	for _, raw := range strings.Split(os.Getenv("TRUSTED_PROXIES"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(raw); err == nil {
			cfg.TrustedProxies = append(cfg.TrustedProxies, prefix)
		}
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
