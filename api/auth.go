/*
auth.go - Authentication middleware and actor extraction

PURPOSE:
  Extracts the calling actor (ID + role) from the request and makes it
  available to handlers. Workflow role guards live in the payroll package;
  this layer only identifies the caller.

TOKEN FORMAT:
  Authorization: Bearer <jwt>, HS256-signed, with claims:
    sub:  actor ID (driver ID for driver-role callers)
    role: "driver" | "admin" | "accountant"

DEV MODE:
  When no JWT secret is configured, the middleware falls back to the
  X-Actor-ID and X-Role headers. This keeps local development and tests
  simple; production deployments must set JWT_SECRET.
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/haulmark/payroll-engine/payroll"
)

type contextKey string

const actorContextKey contextKey = "actor"

// ActorFromContext returns the authenticated actor, or false if the
// request carried no usable identity.
func ActorFromContext(ctx context.Context) (payroll.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(payroll.Actor)
	return actor, ok
}

// Authenticator resolves the caller's identity for every request.
type Authenticator struct {
	// JWTSecret verifies bearer tokens. Empty enables the header fallback.
	JWTSecret []byte
}

// Middleware attaches the actor to the request context. Requests without
// identity still pass through; role enforcement happens per-route via
// RequireRoles and inside the workflow itself.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor, ok := a.resolve(r); ok {
			r = r.WithContext(context.WithValue(r.Context(), actorContextKey, actor))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) resolve(r *http.Request) (payroll.Actor, bool) {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") && len(a.JWTSecret) > 0 {
		return a.fromToken(strings.TrimPrefix(auth, "Bearer "))
	}

	if len(a.JWTSecret) == 0 {
		role := payroll.Role(r.Header.Get("X-Role"))
		if role == "" {
			return payroll.Actor{}, false
		}
		return payroll.Actor{ID: r.Header.Get("X-Actor-ID"), Role: role}, true
	}

	return payroll.Actor{}, false
}

func (a *Authenticator) fromToken(tokenStr string) (payroll.Actor, bool) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.JWTSecret, nil
	})
	if err != nil || !token.Valid {
		return payroll.Actor{}, false
	}

	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if role == "" {
		return payroll.Actor{}, false
	}
	return payroll.Actor{ID: sub, Role: payroll.Role(role)}, true
}

// RequireRoles rejects requests whose actor role is not in the allow list.
// Build the allow map once; lookups are O(1).
func RequireRoles(roles ...payroll.Role) func(http.Handler) http.Handler {
	allowed := make(map[payroll.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Missing or invalid credentials", nil)
				return
			}
			if _, ok := allowed[actor.Role]; !ok {
				writeError(w, http.StatusForbidden, "Role not permitted", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
