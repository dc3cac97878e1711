package auth

import "context"

func (m *Middleware) GetUser(ctx context.Context) User {
	u, _ := UserFrom(ctx)
	return u
}

func (m *Middleware) IsRole(ctx context.Context, role Role) bool {
	if u, ok := UserFrom(ctx); ok {
		return u.Role.Name == role.Name || m.isAdmin(u)
	}
	return false
}

func (m *Middleware) IsAdmin(ctx context.Context) bool {
	u, ok := UserFrom(ctx)
	return ok && m.isAdmin(u)
}

func (m *Middleware) IsUser(ctx context.Context, username string) bool {
	if u, ok := UserFrom(ctx); ok {
		return u.Username == username || m.isAdmin(u)
	}
	return false
}

func (m *Middleware) IsAuthenticated(ctx context.Context) bool {
	_, ok := UserFrom(ctx)
	return ok
}

func (m *Middleware) isAdmin(u User) bool {
	return m != nil && m.adminRole != "" && u.Role.Name == m.adminRole
}
