package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"memberd/internal/platform/requestmeta"
)

// Metadata stashes the client IP and user agent in the request context for
// the event log. The X-Forwarded-For chain is only trusted when the direct
// peer is inside one of the trusted proxy ranges; otherwise spoofed headers
// would let clients rewrite their own audit trail.
func Metadata(trustedProxies []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			meta := requestmeta.Meta{
				IP:        clientIP(r, trustedProxies),
				UserAgent: r.UserAgent(),
				RequestID: GetRequestID(r.Context()),
			}
			next.ServeHTTP(w, r.WithContext(requestmeta.WithMeta(r.Context(), meta)))
		})
	}
}

func clientIP(r *http.Request, trustedProxies []netip.Prefix) string {
	peer := remoteIP(r.RemoteAddr)

	if peerAddr, err := netip.ParseAddr(peer); err == nil && isTrusted(peerAddr, trustedProxies) {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			// The first hop is the original client.
			first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
			if addr, err := netip.ParseAddr(first); err == nil {
				return addr.String()
			}
		}
	}
	return peer
}

func remoteIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func isTrusted(addr netip.Addr, trustedProxies []netip.Prefix) bool {
	for _, prefix := range trustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
