package core

import (
	"net/http"

	"github.com/joeydtaylor/steeze-stack/pkg/manifest"
	"github.com/joeydtaylor/steeze-stack/pkg/middleware/auth"
	"github.com/joeydtaylor/steeze-stack/pkg/stack"
)

// guardHandler punts auth.ErrUnauthorized or auth.ErrForbidden down the
// chain when the caller does not satisfy g.
func guardHandler(a *auth.Middleware, g manifest.Guard) stack.HandlerFunc {
	req := auth.Requirement{RequireAuth: g.RequireAuth, Users: g.Users, Roles: g.Roles}
	return func(c *stack.Context, next stack.Next) error {
		r, ok := c.Request.(*http.Request)
		if !ok || r == nil {
			return next(auth.ErrUnauthorized)
		}
		ctx := r.Context()
		// far-side replays carry no auth middleware in front of them
		if _, has := auth.UserFrom(ctx); !has && a != nil {
			if u, err := a.Authenticate(r); err == nil {
				ctx = auth.WithUser(ctx, u)
				c.Request = r.WithContext(ctx)
			}
		}
		return next(a.Check(ctx, req))
	}
}
