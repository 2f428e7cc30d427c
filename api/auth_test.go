package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulmark/payroll-engine/payroll"
)

func signToken(t *testing.T, secret []byte, sub string, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func actorThrough(t *testing.T, auth *Authenticator, decorate func(*http.Request)) (payroll.Actor, bool) {
	t.Helper()

	var (
		got   payroll.Actor
		found bool
	)
	h := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	decorate(req)
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got, found
}

func TestAuthenticator_ValidToken(t *testing.T) {
	secret := []byte("test-secret")
	auth := &Authenticator{JWTSecret: secret}

	actor, ok := actorThrough(t, auth, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+signToken(t, secret, "driver-1", "driver"))
	})
	require.True(t, ok)
	assert.Equal(t, "driver-1", actor.ID)
	assert.Equal(t, payroll.RoleDriver, actor.Role)
}

func TestAuthenticator_WrongSecretRejected(t *testing.T) {
	auth := &Authenticator{JWTSecret: []byte("right")}

	_, ok := actorThrough(t, auth, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+signToken(t, []byte("wrong"), "driver-1", "driver"))
	})
	assert.False(t, ok)
}

func TestAuthenticator_HeadersIgnoredWhenSecretSet(t *testing.T) {
	// With a secret configured, the dev header fallback must be dead.
	auth := &Authenticator{JWTSecret: []byte("secret")}

	_, ok := actorThrough(t, auth, func(r *http.Request) {
		r.Header.Set("X-Role", "admin")
		r.Header.Set("X-Actor-ID", "hr-1")
	})
	assert.False(t, ok)
}

func TestAuthenticator_DevHeaderFallback(t *testing.T) {
	auth := &Authenticator{}

	actor, ok := actorThrough(t, auth, func(r *http.Request) {
		r.Header.Set("X-Role", "accountant")
		r.Header.Set("X-Actor-ID", "acct-1")
	})
	require.True(t, ok)
	assert.Equal(t, payroll.RoleAccountant, actor.Role)
	assert.Equal(t, "acct-1", actor.ID)
}

func TestRequireRoles(t *testing.T) {
	gate := RequireRoles(payroll.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	auth := &Authenticator{}

	serve := func(role string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if role != "" {
			req.Header.Set("X-Role", role)
		}
		rec := httptest.NewRecorder()
		auth.Middleware(gate).ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(""))
	assert.Equal(t, http.StatusForbidden, serve("driver"))
	assert.Equal(t, http.StatusOK, serve("admin"))
}
