package core

import (
	"fmt"
	"net/http"
	"time"

	chimd "github.com/go-chi/chi/v5/middleware"
	manifest "github.com/joeydtaylor/steeze-stack/pkg/manifest"
	"github.com/joeydtaylor/steeze-stack/pkg/middleware/auth"
	"github.com/joeydtaylor/steeze-stack/pkg/middleware/logger"
	hmetrics "github.com/joeydtaylor/steeze-stack/pkg/middleware/metrics"
	"github.com/joeydtaylor/steeze-stack/pkg/stack"
	httpx "github.com/joeydtaylor/steeze-stack/pkg/transport/httpx"
	"go.uber.org/zap"
)

type BuildDeps struct {
	Auth     *auth.Middleware
	LogMW    *logger.Middleware
	Metrics  http.Handler
	Relay    RelayClient
	Router   httpx.Router
	Observer stack.Observer
	Logger   *zap.Logger
}

func (d BuildDeps) relay() RelayClient {
	if d.Relay == nil {
		return NoopRelay{}
	}
	return d.Relay
}

func (d BuildDeps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// BuildStack turns manifest routes into a dispatch stack, in file order.
// Every route contributes an optional guard, an optional timeout and its
// body, all sharing the route's path, method and side.
func BuildStack(cfg manifest.Config, d BuildDeps) (*stack.Stack, error) {
	s := stack.New(stack.WithLogger(d.logger()), stack.WithObserver(d.Observer))

	for i, rt := range cfg.Routes {
		if err := pushRoute(s, rt, d); err != nil {
			return nil, fmt.Errorf("route %d (%s): %w", i, rt.Name, err)
		}
	}

	if cfg.Handoff.Enabled {
		s.OnFarSideDispatch(HandoffHook(d.relay(), cfg.Handoff.Topic, d.logger()))
	}
	return s, nil
}

func routeOptions(rt manifest.Route, name string) []stack.Option {
	opts := []stack.Option{stack.Name(name), stack.Where(rt.StackSide(stack.Near))}
	if rt.Method != "" {
		opts = append(opts, stack.Method(rt.Method))
	}
	if rt.Mount != nil {
		opts = append(opts, stack.Mount(*rt.Mount))
	}
	if rt.End != nil {
		opts = append(opts, stack.End(*rt.End))
	}
	return opts
}

func pushRoute(s *stack.Stack, rt manifest.Route, d BuildDeps) error {
	if !rt.Guard.Empty() {
		if _, err := s.Push(rt.Path, guardHandler(d.Auth, rt.Guard), routeOptions(rt, rt.Name+"#guard")...); err != nil {
			return err
		}
	}
	if rt.Policy.TimeoutMS > 0 {
		t := time.Duration(rt.Policy.TimeoutMS) * time.Millisecond
		if _, err := s.Push(rt.Path, timeoutHandler(t), routeOptions(rt, rt.Name+"#timeout")...); err != nil {
			return err
		}
	}

	var body any
	switch rt.Handler.Type {
	case manifest.HandlerInproc:
		// resolved against the dispatch receiver (Handlers) on every call
		body = rt.Handler.Name
	case manifest.HandlerStatic:
		body = staticBody(rt.Handler)
	case manifest.HandlerRelayPublish:
		body = relayPublishBody(d.relay(), *rt.Handler.Relay)
	case manifest.HandlerRelayReq:
		body = relayRequestBody(d.relay(), *rt.Handler.Relay)
	case manifest.HandlerError:
		body = stack.ErrorHandlerFunc(errorBody)
	default:
		return fmt.Errorf("unknown handler type %q", rt.Handler.Type)
	}
	_, err := s.Push(rt.Path, body, routeOptions(rt, rt.Name)...)
	return err
}

// BuildRouter puts the ambient middleware and /metrics in front of app,
// which serves every other path.
func BuildRouter(d BuildDeps, app http.Handler) http.Handler {
	r := d.Router
	r.Use(chimd.RequestID, chimd.Recoverer, chimd.Heartbeat("/ping"))
	if d.Auth != nil {
		r.Use(d.Auth.Middleware())
	}
	if d.LogMW != nil {
		r.Use(d.LogMW.Middleware())
	}
	r.Use(hmetrics.Collect(d.Auth, hmetrics.SkipPaths("/ping")))

	if d.Metrics != nil {
		r.Handle(http.MethodGet, "/metrics", d.Metrics)
	}
	r.Mount("/", app)
	return r.Mux()
}
