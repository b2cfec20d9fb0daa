package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-cardlink-api/internal/domain"
	jwtinfra "github.com/go-cardlink-api/internal/infrastructure/jwt"
)

type contextKey string

const claimsKey contextKey = "claims"

// SessionCookie is the name of the cookie carrying the session credential.
const SessionCookie = "session"

// SessionChecker reports whether the session behind a credential is still live.
// GetCurrent fails with domain.ErrUnauthorized for disabled or expired sessions.
type SessionChecker interface {
	GetCurrent(ctx context.Context, sessionID string) (*domain.Session, error)
}

// Auth returns middleware that validates the session credential and injects claims into context.
// The session cookie is preferred; a Bearer Authorization header is accepted otherwise.
// A signed token whose session has been logged out or has expired is rejected.
func Auth(provider *jwtinfra.Provider, sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := credential(r)
			if tokenStr == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing session credential")
				return
			}
			claims, err := provider.Verify(tokenStr)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}
			if _, err := sessions.GetCurrent(r.Context(), claims.SessionID); err != nil {
				if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrNotFound) {
					writeJSONError(w, http.StatusUnauthorized, "invalid or expired session")
					return
				}
				slog.Error("session lookup failed", "session_id", claims.SessionID, "error", err)
				writeJSONError(w, http.StatusInternalServerError, "failed to load session")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func credential(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *jwtinfra.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext extracts JWT claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*jwtinfra.Claims)
	return c, ok
}
