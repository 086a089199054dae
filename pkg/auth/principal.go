// Package auth holds the caller identity model shared by the gateway and the
// backend services: signed bearer tokens on the public hop, identity headers
// on the gateway-to-backend hop.
package auth

import "context"

// RoleAdmin grants read access to every resource and, policy permitting,
// privileged state transitions.
const RoleAdmin = "admin"

// Identity propagation headers. They are set exclusively by the gateway and
// are only trustworthy on the gateway-to-backend network hop; backends must
// not be exposed to traffic that bypasses the gateway.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRoles = "X-User-Roles"
)

// Principal is the verified identity of a caller for the duration of one
// request. It is never persisted.
type Principal struct {
	UserID string
	Roles  []string
}

// HasAnyRole reports whether the principal holds at least one of the required
// roles. An empty required set admits any principal with a non-empty role set.
// A principal without roles never matches: authorization fails closed.
func (p Principal) HasAnyRole(required ...string) bool {
	if len(p.Roles) == 0 {
		return false
	}
	if len(required) == 0 {
		return true
	}
	for _, have := range p.Roles {
		for _, want := range required {
			if have == want {
				return true
			}
		}
	}
	return false
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.HasAnyRole(RoleAdmin)
}

type principalKey struct{}

// ContextWithPrincipal returns a context carrying the principal.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext extracts the principal stored by the authentication
// middleware. The second return is false for unauthenticated requests.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
