package auth

import (
	"context"
	"crypto/rsa"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ProvideAuthentication wires defaults and env config.
// It non-fatally attempts to load the assertion key on startup.
func ProvideAuthentication(lc fx.Lifecycle, zl *zap.Logger) *Middleware {
	hc := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:       10,
			IdleConnTimeout:    30 * time.Second,
			DisableCompression: false,
		},
		Timeout: 8 * time.Second,
	}

	opts := []Option{
		WithHTTPClient(hc),
		WithAdminRole(os.Getenv("ADMIN_ROLE_NAME")),
		WithDevBypass(os.Getenv("AUTH_DEV_BYPASS") == "true"),
		WithIssuer(strings.TrimSpace(os.Getenv("ASSERTION_ISSUER"))),
		WithAudience(strings.TrimSpace(os.Getenv("ASSERTION_AUDIENCE"))),
		WithKeyURL(strings.TrimSpace(os.Getenv("ASSERTION_KEY_URL")), strings.TrimSpace(os.Getenv("ASSERTION_KEY_KID"))),
	}
	if v := strings.TrimSpace(os.Getenv("ASSERTION_COOKIE_NAME")); v != "" {
		opts = append(opts, WithCookieName(v))
	}
	if v := strings.TrimSpace(os.Getenv("ASSERTION_LEEWAY_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts = append(opts, WithLeeway(time.Duration(n)*time.Second))
		}
	}
	if p := strings.TrimSpace(os.Getenv("ASSERTION_PUBLIC_KEY_FILE")); p != "" {
		if k, err := loadPublicKeyFile(p); err != nil {
			zl.Warn("assertion key file unreadable", zap.String("path", p), zap.Error(err))
		} else {
			opts = append(opts, WithPublicKey(k))
		}
	}

	m := New(opts...)

	if m.assertKeyURL != "" {
		ctx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				if err := m.refreshAssertionKey(ctx); err != nil {
					zl.Warn("assertion key fetch failed", zap.String("url", m.assertKeyURL), zap.Error(err))
				}
				go m.backgroundRefresh(ctx)
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				return nil
			},
		})
	}
	return m
}

func loadPublicKeyFile(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(b)
}

// Module provided to fx
var Module = fx.Options(
	fx.Provide(ProvideAuthentication),
)
