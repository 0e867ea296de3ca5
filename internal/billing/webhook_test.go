package billing

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberd/internal/account/store"
	"memberd/internal/eventlog"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid", func(t *testing.T) {
		header := SignPayload(payload, secret, now)
		assert.NoError(t, VerifySignature(payload, header, secret, now))
	})

	t.Run("wrong secret", func(t *testing.T) {
		header := SignPayload(payload, "whsec_other", now)
		assert.Error(t, VerifySignature(payload, header, secret, now))
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := SignPayload(payload, secret, now)
		assert.Error(t, VerifySignature([]byte(`{"id":"evt_2"}`), header, secret, now))
	})

	t.Run("stale timestamp", func(t *testing.T) {
		header := SignPayload(payload, secret, now)
		assert.Error(t, VerifySignature(payload, header, secret, now.Add(10*time.Minute)))
	})

	t.Run("malformed header", func(t *testing.T) {
		assert.Error(t, VerifySignature(payload, "", secret, now))
		assert.Error(t, VerifySignature(payload, "t=abc,v1=zz", secret, now))
	})
}

func TestWebhookEndpoint(t *testing.T) {
	secret := "whsec_test"
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	accounts := store.NewInMemoryStore()
	provider := newFakeProvider()
	events := eventlog.NewInMemoryStore()
	svc := New(accounts, provider, "price_default", "https://app.example.com")
	handler := NewHandler(svc, secret, eventlog.NewRecorder(events),
		WithHandlerClock(func() time.Time { return now }))

	router := chi.NewRouter()
	handler.MountWebhook(router)

	account := seedAccount(t, accounts, "ada@example.com", "cus_500", false)
	provider.subscriptions["cus_500"] = []Subscription{
		{ID: "sub_1", Status: "active", UnitAmount: 999},
	}

	post := func(t *testing.T, payload []byte, header string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(payload))
		req.Header.Set("Stripe-Signature", header)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("unsigned delivery is rejected", func(t *testing.T) {
		payload := []byte(`{"id":"evt_1","type":"customer.subscription.updated"}`)
		rec := post(t, payload, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("signature outside the Stripe-Signature header is rejected", func(t *testing.T) {
		payload := []byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{"id":"in_1","customer":"cus_500"}}}`)
		req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(payload))
		req.Header.Set("Signature", SignPayload(payload, secret, now))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("subscription event reconciles the account", func(t *testing.T) {
		payload := []byte(`{"id":"evt_2","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","customer":"cus_500"}}}`)
		rec := post(t, payload, SignPayload(payload, secret, now))
		require.Equal(t, http.StatusOK, rec.Code)

		stored, err := accounts.FindByID(context.Background(), account.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsPremium)

		_, total, err := events.Query(context.Background(), eventlog.Filter{Action: eventlog.ActionBillingWebhook}, eventlog.Page{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("unknown event type is acknowledged and ignored", func(t *testing.T) {
		payload := []byte(`{"id":"evt_3","type":"payment_method.attached","data":{"object":{"id":"pm_1","customer":"cus_500"}}}`)
		rec := post(t, payload, SignPayload(payload, secret, now))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("duplicate delivery is harmless", func(t *testing.T) {
		payload := []byte(`{"id":"evt_2","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","customer":"cus_500"}}}`)
		rec := post(t, payload, SignPayload(payload, secret, now))
		require.Equal(t, http.StatusOK, rec.Code)

		stored, err := accounts.FindByID(context.Background(), account.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsPremium)
	})
}
