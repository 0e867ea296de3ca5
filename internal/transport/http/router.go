// Package httptransport assembles the HTTP surface: middleware stack, route
// groups and the operational endpoints.
package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	accounthandler "memberd/internal/account/handler"
	"memberd/internal/admin"
	"memberd/internal/billing"
	"memberd/internal/platform/health"
	"memberd/internal/platform/metrics"
	"memberd/internal/platform/middleware"
)

// Deps carries everything the router mounts.
type Deps struct {
	Accounts *accounthandler.Handler
	Admin    *admin.Handler
	Billing  *billing.Handler
	Health   *health.Handler

	SessionDecoder middleware.SessionDecoder
	TrustedProxies []netip.Prefix
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// NewRouter wires all endpoints with the middleware stack. Route groups:
// public (registration, login, token flows, webhook), authenticated
// (everything under a session) and admin (authenticated + admin claim).
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Latency(deps.Metrics))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.Metadata(deps.TrustedProxies))

	deps.Health.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		deps.Accounts.MountPublic(r)
		deps.Billing.MountWebhook(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.SessionDecoder, deps.Logger))
		deps.Accounts.MountAuthenticated(r)
		deps.Billing.MountAuthenticated(r)
		deps.Admin.MountSession(r)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.SessionDecoder, deps.Logger))
		r.Use(middleware.RequireAdmin(deps.Logger))
		deps.Admin.Mount(r)
	})

	return r
}
