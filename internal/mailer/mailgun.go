package mailer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const mailgunTimeout = 10 * time.Second

// Mailgun sends messages through the Mailgun REST API.
type Mailgun struct {
	apiKey   string
	domain   string
	baseURL  string
	from     string
	client   *http.Client
}

// MailgunOption configures a Mailgun mailer.
type MailgunOption func(*Mailgun)

// WithHTTPClient overrides the HTTP client, used by tests.
func WithHTTPClient(client *http.Client) MailgunOption {
	return func(m *Mailgun) {
		if client != nil {
			m.client = client
		}
	}
}

// NewMailgun constructs a Mailgun mailer. baseURL defaults to the public
// Mailgun API when empty; from is the display name on the sending address.
func NewMailgun(apiKey, domain, baseURL, fromName string, opts ...MailgunOption) *Mailgun {
	if baseURL == "" {
		baseURL = "https://api.mailgun.net"
	}
	m := &Mailgun{
		apiKey:  apiKey,
		domain:  domain,
		baseURL: strings.TrimRight(baseURL, "/"),
		from:    fmt.Sprintf("%s <noreply@%s>", fromName, domain),
		client:  &http.Client{Timeout: mailgunTimeout},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send implements Mailer.
func (m *Mailgun) Send(ctx context.Context, msg Message) error {
	form := url.Values{}
	form.Set("from", m.from)
	form.Set("to", msg.To)
	form.Set("subject", msg.Subject)
	form.Set("text", msg.Text)

	endpoint := fmt.Sprintf("%s/v3/%s/messages", m.baseURL, m.domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.SetBasicAuth("api", m.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send mail: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Disabled is the no-op mailer used when no API key is configured. Sends
// succeed without doing anything so flows behave identically in development.
type Disabled struct{}

func (Disabled) Send(context.Context, Message) error { return nil }
