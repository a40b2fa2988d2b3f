package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"signaturelens/internal/auth"
)

func protected(t *testing.T) (http.Handler, string) {
	t.Helper()
	t.Setenv("LENSD_AUTH_ENABLED", "true")
	t.Setenv("LENSD_AUTH_PASSWORD", "hunter2")
	t.Setenv("LENSD_JWT_SECRET", "test-secret")

	a := auth.NewAuthenticator()
	token, _, err := a.Authenticate("operator", "hunter2")
	require.NoError(t, err)

	h := Auth(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := UserFromContext(r.Context())
		require.NotNil(t, claims)
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, token
}

func TestAuthMiddlewareBearerHeader(t *testing.T) {
	h, token := protected(t)

	req := httptest.NewRequest(http.MethodGet, "/api/captures", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestAuthMiddlewareQueryToken(t *testing.T) {
	h, token := protected(t)

	req := httptest.NewRequest(http.MethodGet, "/preview?token="+token, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestAuthMiddlewareRejects(t *testing.T) {
	h, _ := protected(t)

	req := httptest.NewRequest(http.MethodGet, "/api/captures", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/captures", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthMiddlewareDisabledPassesThrough(t *testing.T) {
	t.Setenv("LENSD_AUTH_ENABLED", "false")
	a := auth.NewAuthenticator()
	h := Auth(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/captures", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
}
