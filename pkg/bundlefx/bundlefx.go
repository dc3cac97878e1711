// bundlefx/bundlefx.go
package bundlefx

import (
	"github.com/joeydtaylor/steeze-stack/pkg/middleware/auth"
	"github.com/joeydtaylor/steeze-stack/pkg/middleware/logger"
	"github.com/joeydtaylor/steeze-stack/pkg/middleware/metrics"
	"go.uber.org/fx"
)

// Module provides the ambient middleware: auth, loggers, metrics handler
// (named "metrics") and the dispatch observer.
var Module = fx.Options(
	auth.Module,
	logger.Module,
	metrics.Module,
)
