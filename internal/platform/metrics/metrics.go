package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	RegistrationsTotal prometheus.Counter
	LoginsTotal        prometheus.Counter
	AuthFailuresTotal  prometheus.Counter
	TokensIssuedTotal  *prometheus.CounterVec

	RateLimitDenialsTotal *prometheus.CounterVec

	EmailsSentTotal    *prometheus.CounterVec
	WebhookEventsTotal *prometheus.CounterVec
	BillingSyncsTotal  *prometheus.CounterVec

	EndpointLatency *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RegistrationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberd_registrations_total",
			Help: "Total number of accounts registered",
		}),
		LoginsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberd_logins_total",
			Help: "Total number of successful logins",
		}),
		AuthFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberd_auth_failures_total",
			Help: "Total number of authentication failures",
		}),
		TokensIssuedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "memberd_tokens_issued_total",
			Help: "Total number of tokens issued, labeled by kind",
		}, []string{"kind"}),
		RateLimitDenialsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "memberd_rate_limit_denials_total",
			Help: "Total number of requests denied by the rate limiter, labeled by action",
		}, []string{"action"}),
		EmailsSentTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "memberd_emails_sent_total",
			Help: "Total number of outbound emails, labeled by kind and outcome",
		}, []string{"kind", "outcome"}),
		WebhookEventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "memberd_webhook_events_total",
			Help: "Total number of billing webhook events received, labeled by type",
		}, []string{"type"}),
		BillingSyncsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "memberd_billing_syncs_total",
			Help: "Total number of billing reconciliations, labeled by outcome",
		}, []string{"outcome"}),
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memberd_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}
