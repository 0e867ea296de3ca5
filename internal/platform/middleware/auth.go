package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"memberd/internal/jwttoken"
	"memberd/internal/transport/http/shared"
	dErrors "memberd/pkg/domain-errors"
)

// SessionDecoder validates bearer tokens into sessions.
type SessionDecoder interface {
	DecodeSession(tokenString string) (jwttoken.Session, error)
}

type sessionKey struct{}
type rawTokenKey struct{}

// GetSession retrieves the authenticated session from the context, nil when
// the request did not pass RequireAuth.
func GetSession(ctx context.Context) jwttoken.Session {
	session, _ := ctx.Value(sessionKey{}).(jwttoken.Session)
	return session
}

// GetRawToken retrieves the bearer token string the session was decoded
// from. The refresh endpoint returns it unchanged for fresh tokens.
func GetRawToken(ctx context.Context) string {
	raw, _ := ctx.Value(rawTokenKey{}).(string)
	return raw
}

// RequireAuth rejects requests without a valid bearer token and stores the
// decoded session in the context.
func RequireAuth(decoder SessionDecoder, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx),
				)
				shared.WriteError(w, dErrors.New(dErrors.CodeTokenInvalid, "missing or invalid Authorization header"))
				return
			}

			session, err := decoder.DecodeSession(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				shared.WriteError(w, err)
				return
			}

			ctx = context.WithValue(ctx, sessionKey{}, session)
			ctx = context.WithValue(ctx, rawTokenKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects sessions whose effective identity is not an admin.
// Must run after RequireAuth. An admin impersonating a non-admin account is
// rejected too: the effective identity is what counts.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			session := GetSession(ctx)
			if session == nil {
				shared.WriteError(w, dErrors.New(dErrors.CodeTokenInvalid, "missing or invalid Authorization header"))
				return
			}
			if !session.Subject().IsAdmin {
				logger.WarnContext(ctx, "forbidden - admin required",
					"account_id", session.Subject().ID,
					"request_id", GetRequestID(ctx),
				)
				shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "admin access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
