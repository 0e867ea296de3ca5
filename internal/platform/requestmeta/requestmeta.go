// Package requestmeta carries per-request client metadata through context so
// domain services can record who did what without touching *http.Request.
package requestmeta

import "context"

type contextKey struct{}

// Meta is the client-identifying metadata of one request.
type Meta struct {
	IP        string
	UserAgent string
	RequestID string
}

// WithMeta returns a context carrying m.
func WithMeta(ctx context.Context, m Meta) context.Context {
	return context.WithValue(ctx, contextKey{}, m)
}

// FromContext returns the request metadata, zero-valued when absent.
func FromContext(ctx context.Context) Meta {
	m, _ := ctx.Value(contextKey{}).(Meta)
	return m
}
