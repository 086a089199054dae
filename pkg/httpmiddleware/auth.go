package httpmiddleware

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/avetra/ordergate/pkg/auth"
	"github.com/avetra/ordergate/pkg/httpx"
)

// BearerAuth returns a middleware that verifies the Authorization bearer
// token and stores the resulting principal in the request context. An absent
// header yields 401 missing_token; a malformed, expired or mis-signed token
// yields 401 invalid_token.
func BearerAuth(verifier *auth.TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if header == "" || !ok || token == "" {
				httpx.WriteError(w, http.StatusUnauthorized,
					httpx.CodeMissingToken, "missing or malformed bearer token")
				return
			}

			p, err := verifier.Verify(token)
			if err != nil {
				zctx.From(r.Context()).Warn("token rejected", zap.Error(err))
				httpx.WriteError(w, http.StatusUnauthorized,
					httpx.CodeInvalidToken, "invalid token")
				return
			}

			ctx := auth.ContextWithPrincipal(r.Context(), p)
			ctx = zctx.With(ctx, zap.String("user_id", p.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles returns a middleware that admits only principals holding at
// least one of the given roles. A missing principal or an empty role set is
// always forbidden.
func RequireRoles(roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFromContext(r.Context())
			if !ok || !p.HasAnyRole(roles...) {
				httpx.WriteError(w, http.StatusForbidden,
					httpx.CodeForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TrustedIdentity returns a middleware for backend services that builds the
// principal from the gateway-injected X-User-ID and X-User-Roles headers.
// Requests on the skip list (health endpoints) pass through unauthenticated.
//
// These headers are only trustworthy because the gateway is the sole network
// entry point; a missing X-User-ID means the request did not come through it.
func TrustedIdentity(skip ...string) Middleware {
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		skipped[path] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skipped[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			userID := r.Header.Get(auth.HeaderUserID)
			if userID == "" {
				httpx.WriteError(w, http.StatusUnauthorized,
					httpx.CodeMissingIdentity, "request did not pass through the gateway")
				return
			}

			p := auth.Principal{UserID: userID, Roles: splitRoles(r.Header.Get(auth.HeaderUserRoles))}
			ctx := auth.ContextWithPrincipal(r.Context(), p)
			ctx = zctx.With(ctx, zap.String("user_id", p.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// splitRoles parses the comma-joined X-User-Roles value, dropping empty
// entries.
func splitRoles(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	roles := make([]string, 0, len(parts))
	for _, part := range parts {
		if role := strings.TrimSpace(part); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}
