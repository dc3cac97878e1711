package auth

import (
	"errors"
	"net/http"
	"strings"
)

// ErrNoCredentials is returned by Authenticate when the request carries
// neither an assertion nor dev headers.
var ErrNoCredentials = errors.New("auth: no credentials")

// Middleware puts the authenticated user, if any, on the request context.
// Unauthenticated requests pass through; guards decide what to reject.
func (m *Middleware) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if u, err := m.Authenticate(r); err == nil {
				r = r.WithContext(WithUser(r.Context(), u))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticate resolves the caller from, in order: dev headers (only when
// the bypass is enabled), the assertion cookie, an Authorization bearer.
func (m *Middleware) Authenticate(r *http.Request) (User, error) {
	// Dev bypass for local testing (NEVER enable in prod)
	if m.devBypass {
		if u := devUserFromHeaders(r); u.Username != "" {
			return u, nil
		}
	}

	if ac, _ := r.Cookie(m.assertCookieName); ac != nil && ac.Value != "" {
		return m.validateAssertion(ac.Value)
	}
	if raw, ok := bearer(r); ok {
		return m.validateAssertion(raw)
	}
	return User{}, ErrNoCredentials
}

func bearer(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	return tok, tok != ""
}

func devUserFromHeaders(r *http.Request) User {
	user := r.Header.Get("X-Dev-User")
	if user == "" {
		return User{}
	}
	return User{
		Username:             user,
		AuthenticationSource: AuthenticationSource{Provider: r.Header.Get("X-Dev-Provider")},
		Role:                 Role{Name: r.Header.Get("X-Dev-Role")},
	}
}
