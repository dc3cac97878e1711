package logger

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	chimd "github.com/go-chi/chi/v5/middleware"
	"github.com/joeydtaylor/steeze-stack/pkg/middleware/auth"
	"go.uber.org/zap"
)

const maxLoggedBody = 1 << 16 // 64 KiB

// Middleware writes one access-log line per request. Request bodies are
// redacted unless the path is allowlisted.
type Middleware struct {
	access *zap.Logger
	auth   *auth.Middleware

	mu        sync.RWMutex
	bodyPaths map[string]struct{}
}

type Option func(*Middleware)

func WithAccessLogger(l *zap.Logger) Option { return func(m *Middleware) { m.access = l } }
func WithAuth(a *auth.Middleware) Option    { return func(m *Middleware) { m.auth = a } }
func WithBodyPaths(paths ...string) Option  { return func(m *Middleware) { m.AllowBody(paths...) } }

func New(opts ...Option) *Middleware {
	m := &Middleware{bodyPaths: map[string]struct{}{}}
	for _, o := range opts {
		o(m)
	}
	if m.access == nil {
		m.access = zap.NewNop()
	}
	return m
}

// AllowBody adds paths whose small JSON request bodies are logged.
func (m *Middleware) AllowBody(paths ...string) {
	m.mu.Lock()
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			m.bodyPaths[p] = struct{}{}
		}
	}
	m.mu.Unlock()
}

func (m *Middleware) shouldLogBody(r *http.Request) bool {
	if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
		return false
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return false
	}
	m.mu.RLock()
	_, ok := m.bodyPaths[r.URL.Path]
	m.mu.RUnlock()
	return ok
}

func (m *Middleware) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimd.NewWrapResponseWriter(w, r.ProtoMajor)

			// read and restore the body only when it may be logged
			var body []byte
			if r.Body != nil && m.shouldLogBody(r) {
				b, _ := io.ReadAll(io.LimitReader(r.Body, maxLoggedBody+1))
				r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(b), r.Body))
				if len(b) <= maxLoggedBody {
					body = b
				}
			}

			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}

			start := time.Now()
			defer func() {
				// nil-safe; the auth middleware runs before us
				u := m.auth.GetUser(r.Context())
				isAuth := m.auth.IsAuthenticated(r.Context())
				fields := []zap.Field{
					zap.String("requestId", chimd.GetReqID(r.Context())),
					zap.String("httpScheme", scheme),
					zap.Bool("isAuthenticated", isAuth),
					zap.String("username", u.Username),
					zap.String("role", u.Role.Name),
					zap.String("authenticationProvider", u.AuthenticationSource.Provider),
					zap.String("httpProto", r.Proto),
					zap.String("httpMethod", r.Method),
					zap.String("remoteAddr", r.RemoteAddr),
					zap.String("uri", r.URL.Path),
					zap.Duration("lat", time.Since(start)),
					zap.Int("responseSize", ww.BytesWritten()),
					zap.Int("status", ww.Status()),
				}
				if len(body) > 0 {
					fields = append(fields, zap.ByteString("requestData", body))
				}
				m.access.Info("http request", fields...)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
