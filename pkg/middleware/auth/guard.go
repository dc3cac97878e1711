package auth

import (
	"context"
	"errors"
	"slices"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Requirement is an access rule. Users, when set, takes precedence over
// Roles. The admin role satisfies any role rule.
type Requirement struct {
	RequireAuth bool
	Users       []string
	Roles       []string
}

// Check returns nil, ErrUnauthorized or ErrForbidden for the user on ctx.
// A nil Middleware only admits requirements that demand nothing.
func (m *Middleware) Check(ctx context.Context, req Requirement) error {
	empty := !req.RequireAuth && len(req.Users) == 0 && len(req.Roles) == 0
	if empty {
		return nil
	}
	if m == nil {
		return ErrUnauthorized
	}

	u, ok := UserFrom(ctx)
	if !ok {
		return ErrUnauthorized
	}
	if len(req.Users) > 0 {
		if slices.Contains(req.Users, u.Username) {
			return nil
		}
		return ErrForbidden
	}
	if len(req.Roles) > 0 {
		if m.isAdmin(u) || slices.Contains(req.Roles, u.Role.Name) {
			return nil
		}
		return ErrForbidden
	}
	return nil
}
