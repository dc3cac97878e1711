package logger

import (
	"os"
	"strings"

	"github.com/joeydtaylor/steeze-stack/pkg/middleware/auth"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func ProvideLogger() *zap.Logger { return NewLog("system.log") }

// ProvideLoggerMiddleware builds the access logger. LOG_BODY_PATHS is a
// comma separated body allowlist.
func ProvideLoggerMiddleware(a *auth.Middleware) *Middleware {
	return New(
		WithAccessLogger(NewLog("http-access.log")),
		WithAuth(a),
		WithBodyPaths(strings.Split(os.Getenv("LOG_BODY_PATHS"), ",")...),
	)
}

var Module = fx.Options(
	fx.Provide(ProvideLoggerMiddleware),
	fx.Provide(ProvideLogger),
)
