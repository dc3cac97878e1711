package auth

import (
	"crypto/rsa"
	"net/http"
	"sync"
	"time"
)

// HTTPDoer is satisfied by *http.Client and allows easy mocking in tests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

type Middleware struct {
	httpClient HTTPDoer
	adminRole  string
	devBypass  bool

	// Assertion verification
	assertCookieName string
	assertKeyURL     string
	assertKeyKID     string
	assertIssuer     string
	assertAudience   string
	assertLeeway     time.Duration

	// guarded by mu
	mu         sync.RWMutex
	assertKey  *rsa.PublicKey
	assertETag string
	cacheTTL   time.Duration
	lastFetch  time.Time
}

// Option configures a Middleware built with New.
type Option func(*Middleware)

func WithHTTPClient(c HTTPDoer) Option      { return func(m *Middleware) { m.httpClient = c } }
func WithAdminRole(role string) Option      { return func(m *Middleware) { m.adminRole = role } }
func WithDevBypass(on bool) Option          { return func(m *Middleware) { m.devBypass = on } }
func WithCookieName(name string) Option     { return func(m *Middleware) { m.assertCookieName = name } }
func WithIssuer(iss string) Option          { return func(m *Middleware) { m.assertIssuer = iss } }
func WithAudience(aud string) Option        { return func(m *Middleware) { m.assertAudience = aud } }
func WithLeeway(d time.Duration) Option     { return func(m *Middleware) { m.assertLeeway = d } }
func WithPublicKey(k *rsa.PublicKey) Option { return func(m *Middleware) { m.assertKey = k } }

// WithKeyURL sets a JWKS or PEM endpoint; kid selects a JWKS key.
func WithKeyURL(url, kid string) Option {
	return func(m *Middleware) { m.assertKeyURL, m.assertKeyKID = url, kid }
}

// New returns a Middleware with defaults applied. It does not fetch keys.
func New(opts ...Option) *Middleware {
	m := &Middleware{
		httpClient:       http.DefaultClient,
		assertCookieName: "assert",
		assertLeeway:     60 * time.Second,
		cacheTTL:         1 * time.Hour, // default; overridable by Cache-Control
	}
	for _, o := range opts {
		o(m)
	}
	return m
}
