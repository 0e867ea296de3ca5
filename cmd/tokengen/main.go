// Package main provides a CLI tool for generating test tokens for memberd.
// These tokens use the dev signing key and will NOT work in production.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"memberd/internal/jwttoken"
)

const (
	// Dev signing key - matches config.go when JWT_SIGNING_KEY is not set
	devSigningKey = "dev-secret-key-change-in-production"

	defaultPublicURL = "http://localhost:8080"
)

type tokenOutput struct {
	Token     string `json:"token"`
	Type      string `json:"type"`
	ExpiresAt string `json:"expires_at,omitempty"`
	URL       string `json:"url,omitempty"`
	Usage     string `json:"usage"`
}

func main() {
	sessionCmd := flag.NewFlagSet("session", flag.ExitOnError)
	sessionUserID := sessionCmd.String("user-id", "", "Account ID (UUID). Generated if empty.")
	sessionEmail := sessionCmd.String("email", "dev@example.com", "Account email claim")
	sessionAdmin := sessionCmd.Bool("admin", false, "Set the admin claim")
	sessionPremium := sessionCmd.Bool("premium", false, "Set the premium claim")
	sessionTTL := sessionCmd.Duration("ttl", 48*time.Hour, "Token time-to-live")
	sessionJSON := sessionCmd.Bool("json", false, "Output as JSON")

	typedCmd := flag.NewFlagSet("typed", flag.ExitOnError)
	typedUserID := typedCmd.String("user-id", "", "Account ID (UUID). Generated if empty.")
	typedEmail := typedCmd.String("email", "dev@example.com", "Email claim (verification tokens)")
	typedPurpose := typedCmd.String("purpose", "verify-email", "Token purpose: verify-email or reset-password")
	typedJSON := typedCmd.Bool("json", false, "Output as JSON")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	key := os.Getenv("JWT_SIGNING_KEY")
	if key == "" {
		key = devSigningKey
	}

	switch os.Args[1] {
	case "session":
		sessionCmd.Parse(os.Args[2:])
		generateSession(key, *sessionUserID, *sessionEmail, *sessionAdmin, *sessionPremium, *sessionTTL, *sessionJSON)
	case "typed":
		typedCmd.Parse(os.Args[2:])
		generateTyped(key, *typedUserID, *typedEmail, *typedPurpose, *typedJSON)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func generateSession(key, userID, email string, admin, premium bool, ttl time.Duration, asJSON bool) {
	id := parseOrNewID(userID)
	svc := jwttoken.New(key, defaultPublicURL, jwttoken.WithSessionTTL(ttl))

	token, expiry, err := svc.IssueSession(jwttoken.Identity{
		ID:        id,
		Email:     email,
		IsAdmin:   admin,
		IsPremium: premium,
	}, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue session token:", err)
		os.Exit(1)
	}

	emit(tokenOutput{
		Token:     token,
		Type:      "session",
		ExpiresAt: expiry.Format(time.RFC3339),
		Usage:     `curl -H "Authorization: Bearer <token>" http://localhost:8080/users/me`,
	}, asJSON)
}

func generateTyped(key, userID, email, purpose string, asJSON bool) {
	id := parseOrNewID(userID)
	svc := jwttoken.New(key, defaultPublicURL)

	var p jwttoken.Purpose
	var url func(string) string
	switch purpose {
	case "verify-email":
		p = jwttoken.PurposeVerifyEmail
		url = svc.VerificationURL
	case "reset-password":
		p = jwttoken.PurposeResetPassword
		url = svc.PasswordResetURL
		email = ""
	default:
		fmt.Fprintf(os.Stderr, "Unknown purpose: %s (want verify-email or reset-password)\n", purpose)
		os.Exit(1)
	}

	token, err := svc.IssueTyped(p, id, email)
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue typed token:", err)
		os.Exit(1)
	}

	emit(tokenOutput{
		Token: token,
		Type:  purpose,
		URL:   url(token),
		Usage: "POST the token to the matching /auth endpoint",
	}, asJSON)
}

func parseOrNewID(raw string) uuid.UUID {
	if raw == "" {
		return uuid.New()
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid user-id %q: %v\n", raw, err)
		os.Exit(1)
	}
	return id
}

func emit(out tokenOutput, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(out) //nolint:errcheck // stdout
		return
	}
	fmt.Println(out.Token)
	if out.URL != "" {
		fmt.Fprintln(os.Stderr, "link:", out.URL)
	}
}

func printUsage() {
	fmt.Println(`tokengen - Generate test tokens for memberd

WARNING: These tokens use the dev signing key unless JWT_SIGNING_KEY is set.
         Only use for local development and testing.

Usage:
  tokengen <command> [flags]

Commands:
  session   Generate a bearer session token
  typed     Generate a single-purpose token (verify-email, reset-password)

Examples:
  # Session token for a fresh account id
  tokengen session -email me@example.com

  # Admin session token
  tokengen session -admin

  # Email verification link for an existing account
  tokengen typed -purpose verify-email -user-id <uuid> -email me@example.com`)
}
