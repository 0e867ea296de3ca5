package billing

import (
	encjson "encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"memberd/internal/eventlog"
	"memberd/internal/platform/metrics"
	"memberd/internal/platform/middleware"
	"memberd/internal/transport/http/json"
	"memberd/internal/transport/http/shared"
	dErrors "memberd/pkg/domain-errors"
)

// maxWebhookBytes caps webhook payloads; provider events are small.
const maxWebhookBytes = 1 << 20

// Handler exposes the billing endpoints.
type Handler struct {
	service       *Service
	webhookSecret string
	recorder      *eventlog.Recorder
	logger        *slog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithHandlerMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithHandlerClock overrides the time source used for signature tolerance,
// used by tests.
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHandler(service *Service, webhookSecret string, recorder *eventlog.Recorder, opts ...HandlerOption) *Handler {
	h := &Handler{
		service:       service,
		webhookSecret: webhookSecret,
		recorder:      recorder,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MountAuthenticated registers the member-facing billing routes on r.
func (h *Handler) MountAuthenticated(r chi.Router) {
	r.Get("/billing/subscription", h.subscription)
	r.Get("/billing/portal", h.portal)
	r.Post("/billing/checkout", h.checkout)
}

// MountWebhook registers the provider callback on r. The route is public;
// authenticity comes from the signature, not a session.
func (h *Handler) MountWebhook(r chi.Router) {
	r.Post("/billing/webhook", h.webhook)
}

func (h *Handler) subscription(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())

	status, err := h.service.SubscriptionStatus(r.Context(), session.Subject().ID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) portal(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())

	portalURL, err := h.service.PortalURL(r.Context(), session.Subject().ID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]string{"url": portalURL})
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSession(r.Context())

	checkoutURL, err := h.service.CheckoutURL(r.Context(), session.Subject().ID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]string{"url": checkoutURL})
}

// webhook verifies and processes one provider delivery. Unknown event types
// are acknowledged so the provider stops retrying them; reconcile failures
// return 5xx so relevant events are retried.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "could not read payload"))
		return
	}

	if err := VerifySignature(payload, r.Header.Get("Stripe-Signature"), h.webhookSecret, h.now()); err != nil {
		h.logger.Warn("webhook_signature_rejected", "error", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid webhook signature"))
		return
	}

	var event Event
	if err := encjson.Unmarshal(payload, &event); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "payload is not a valid event"))
		return
	}

	if h.metrics != nil {
		h.metrics.WebhookEventsTotal.WithLabelValues(event.Type).Inc()
	}
	h.recorder.Record(r.Context(), eventlog.ActionBillingWebhook, nil, map[string]any{
		"event_id":   event.ID,
		"event_type": event.Type,
	})

	if reconcileEventTypes[event.Type] {
		customerID := event.CustomerID()
		if customerID == "" {
			h.logger.Warn("webhook_missing_customer", "event_id", event.ID, "event_type", event.Type)
		} else if err := h.service.Reconcile(r.Context(), customerID); err != nil {
			h.logger.Error("webhook_reconcile_failed",
				"event_id", event.ID,
				"customer_id", customerID,
				"error", err,
			)
			shared.WriteError(w, err)
			return
		}
	}

	json.WriteJSON(w, http.StatusOK, map[string]string{"received": event.ID})
}
