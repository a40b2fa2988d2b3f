// Package middleware wraps control-API handlers with token authentication.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"signaturelens/internal/auth"
)

// ContextKey is a custom type for context keys.
type ContextKey string

// UserContextKey stores the authenticated claims on the request context.
const UserContextKey ContextKey = "user"

// Auth returns middleware enforcing a valid bearer token when the
// authenticator is enabled. Browser-driven endpoints (the MJPEG stream, the
// WebSocket upgrade) cannot set headers, so a `token` query parameter is
// accepted as a fallback.
func Auth(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authenticator.IsEnabled() {
				next.ServeHTTP(w, r)
				return
			}

			tokenString := bearerToken(r)
			if tokenString == "" {
				tokenString = r.URL.Query().Get("token")
			}
			if tokenString == "" {
				http.Error(w, `{"error": "missing authorization"}`, http.StatusUnauthorized)
				return
			}

			claims, err := authenticator.ValidateToken(tokenString)
			if err != nil {
				if err == auth.ErrExpiredToken {
					http.Error(w, `{"error": "token has expired"}`, http.StatusUnauthorized)
				} else {
					http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
				}
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// UserFromContext retrieves the authenticated claims, or nil.
func UserFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(UserContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}
