// Package billing syncs account premium status with the payment provider
// and serves the customer-facing portal and checkout links.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const clientTimeout = 15 * time.Second

// Customer is the provider-side record an account maps onto.
type Customer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata"`
}

// Subscription is a provider-side subscription. UnitAmount is the price of
// the first item in the smallest currency unit; zero means a free plan.
type Subscription struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"`
	UnitAmount       int64     `json:"-"`
	PriceID          string    `json:"-"`
	CurrentPeriodEnd time.Time `json:"-"`
}

// Paid reports whether the subscription carries a non-free price.
func (s Subscription) Paid() bool { return s.UnitAmount > 0 }

// Active reports whether the subscription entitles the customer right now.
// Trialing counts: the provider has accepted the payment method.
func (s Subscription) Active() bool {
	return s.Status == "active" || s.Status == "trialing"
}

// Provider is the payment API surface the service needs. *Client implements
// it against the real REST API; tests substitute a fake.
type Provider interface {
	CreateCustomer(ctx context.Context, email, name, accountID string) (*Customer, error)
	CustomersByEmail(ctx context.Context, email string) ([]Customer, error)
	ClaimCustomer(ctx context.Context, customerID, accountID string) error
	CreateSubscription(ctx context.Context, customerID, priceID string) (*Subscription, error)
	SubscriptionsByCustomer(ctx context.Context, customerID string) ([]Subscription, error)
	PortalSessionURL(ctx context.Context, customerID, returnURL string) (string, error)
	CheckoutSessionURL(ctx context.Context, customerID, priceID, successURL, cancelURL string) (string, error)
}

// Client talks to the provider's REST API: form-encoded requests, Bearer
// auth, JSON responses.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client, used by tests.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// NewClient constructs a provider client. baseURL defaults to the public
// API when empty; tests point it at a local server.
func NewClient(apiKey, baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: clientTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) CreateCustomer(ctx context.Context, email, name, accountID string) (*Customer, error) {
	form := url.Values{}
	form.Set("email", email)
	if name != "" {
		form.Set("name", name)
	}
	form.Set("metadata[account_id]", accountID)

	var customer Customer
	if err := c.do(ctx, http.MethodPost, "/v1/customers", form, &customer); err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return &customer, nil
}

func (c *Client) CustomersByEmail(ctx context.Context, email string) ([]Customer, error) {
	query := url.Values{}
	query.Set("email", email)
	query.Set("limit", "10")

	var list struct {
		Data []Customer `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/customers?"+query.Encode(), nil, &list); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return list.Data, nil
}

func (c *Client) ClaimCustomer(ctx context.Context, customerID, accountID string) error {
	form := url.Values{}
	form.Set("metadata[account_id]", accountID)

	if err := c.do(ctx, http.MethodPost, "/v1/customers/"+customerID, form, &Customer{}); err != nil {
		return fmt.Errorf("claim customer: %w", err)
	}
	return nil
}

func (c *Client) CreateSubscription(ctx context.Context, customerID, priceID string) (*Subscription, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("items[0][price]", priceID)

	var raw subscriptionJSON
	if err := c.do(ctx, http.MethodPost, "/v1/subscriptions", form, &raw); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	sub := raw.toSubscription()
	return &sub, nil
}

func (c *Client) SubscriptionsByCustomer(ctx context.Context, customerID string) ([]Subscription, error) {
	query := url.Values{}
	query.Set("customer", customerID)
	query.Set("status", "all")
	query.Set("limit", "20")

	var list struct {
		Data []subscriptionJSON `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/subscriptions?"+query.Encode(), nil, &list); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	subs := make([]Subscription, len(list.Data))
	for i, raw := range list.Data {
		subs[i] = raw.toSubscription()
	}
	return subs, nil
}

func (c *Client) PortalSessionURL(ctx context.Context, customerID, returnURL string) (string, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("return_url", returnURL)

	var session struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/billing_portal/sessions", form, &session); err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return session.URL, nil
}

func (c *Client) CheckoutSessionURL(ctx context.Context, customerID, priceID, successURL, cancelURL string) (string, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", priceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)

	var session struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return session.URL, nil
}

// subscriptionJSON is the provider wire shape; flattened into Subscription.
type subscriptionJSON struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	Items            struct {
		Data []struct {
			Price struct {
				ID         string `json:"id"`
				UnitAmount int64  `json:"unit_amount"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (j subscriptionJSON) toSubscription() Subscription {
	sub := Subscription{
		ID:     j.ID,
		Status: j.Status,
	}
	if j.CurrentPeriodEnd > 0 {
		sub.CurrentPeriodEnd = time.Unix(j.CurrentPeriodEnd, 0).UTC()
	}
	if len(j.Items.Data) > 0 {
		sub.PriceID = j.Items.Data[0].Price.ID
		sub.UnitAmount = j.Items.Data[0].Price.UnitAmount
	}
	return sub
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("provider returned %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("provider returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
