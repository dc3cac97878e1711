package serverfx

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/joeydtaylor/steeze-stack/pkg/bundlefx"
	"github.com/joeydtaylor/steeze-stack/pkg/core"
	"github.com/joeydtaylor/steeze-stack/pkg/electrician"
	"github.com/joeydtaylor/steeze-stack/pkg/manifest"
	"github.com/joeydtaylor/steeze-stack/pkg/middleware/auth"
	"github.com/joeydtaylor/steeze-stack/pkg/middleware/logger"
	"github.com/joeydtaylor/steeze-stack/pkg/stack"
	"github.com/joeydtaylor/steeze-stack/pkg/transport/httpx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ---------- Options ----------

type Config struct {
	Service         string // for logs/metrics tags only
	ManifestEnv     string // e.g., STACK_MANIFEST
	DefaultManifest string // e.g., "manifest.toml"
	ListenEnv       string // SERVER_LISTEN_ADDRESS
	TLSCertEnv      string // SSL_SERVER_CERTIFICATE
	TLSKeyEnv       string // SSL_SERVER_KEY
	SideEnv         string // STACK_SIDE: near | far
	WatchEnv        string // STACK_MANIFEST_WATCH: "true" enables hot reload
}

type Option func(*Config)

func WithService(s string) Option            { return func(c *Config) { c.Service = s } }
func WithManifestEnv(k string) Option        { return func(c *Config) { c.ManifestEnv = k } }
func WithDefaultManifest(path string) Option { return func(c *Config) { c.DefaultManifest = path } }
func WithListenEnv(k string) Option          { return func(c *Config) { c.ListenEnv = k } }
func WithSideEnv(k string) Option            { return func(c *Config) { c.SideEnv = k } }
func WithWatchEnv(k string) Option           { return func(c *Config) { c.WatchEnv = k } }
func WithTLSCertKeyEnv(cert, key string) Option {
	return func(c *Config) { c.TLSCertEnv, c.TLSKeyEnv = cert, key }
}

func defaultConfig() Config {
	return Config{
		Service:         "steeze-stack",
		ManifestEnv:     "STACK_MANIFEST",
		DefaultManifest: "manifest.toml",
		ListenEnv:       "SERVER_LISTEN_ADDRESS",
		TLSCertEnv:      "SSL_SERVER_CERTIFICATE",
		TLSKeyEnv:       "SSL_SERVER_KEY",
		SideEnv:         "STACK_SIDE",
		WatchEnv:        "STACK_MANIFEST_WATCH",
	}
}

func (c Config) manifestPath() string { return envOr(c.ManifestEnv, c.DefaultManifest) }

// Side is the side this process dispatches as.
func (c Config) Side() (stack.Side, error) {
	return stack.ParseSide(envOr(c.SideEnv, "near"))
}

// Module returns a complete Fx option set; register inproc handlers with
// core.Register before Run.
func Module(opts ...Option) fx.Option {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return fx.Options(
		bundlefx.Module,
		fx.Provide(httpx.NewChi),
		fx.Provide(func() Config { return cfg }),
		fx.Provide(provideManifest),
		fx.Provide(provideRelayClient),
		fx.Provide(provideAdapter),
		fx.Provide(fx.Annotate(
			provideRouter,
			fx.ParamTags(``, ``, ``, `name:"metrics"`, ``, ``), // ad,a,lm,m,r,zl
			fx.ResultTags(`name:"app"`),
		)),
		fx.Invoke(registerHooks),
	)
}

// ---------- Manifest ----------

func provideManifest(cfg Config, zl *zap.Logger) (manifest.Config, error) {
	path := cfg.manifestPath()
	man, err := core.LoadConfig(path)
	if err != nil {
		return manifest.Config{}, err
	}
	zl.Info("manifest loaded", zap.String("path", path), zap.Int("routes", len(man.Routes)))
	return man, nil
}

// ---------- Relay adapter ----------

type relayAdapter struct{ inner electrician.RelayClient }

func (a relayAdapter) Request(ctx context.Context, rr core.RelayRequest) ([]byte, error) {
	return a.inner.Request(ctx, electrician.RelayRequest{Topic: rr.Topic, Body: rr.Body, Headers: rr.Headers, Timeout: rr.Timeout})
}
func (a relayAdapter) Publish(ctx context.Context, rr core.RelayRequest) error {
	return a.inner.Publish(ctx, electrician.RelayRequest{Topic: rr.Topic, Body: rr.Body, Headers: rr.Headers, Timeout: rr.Timeout})
}

func provideRelayClient(lc fx.Lifecycle, man manifest.Config, zl *zap.Logger) (core.RelayClient, error) {
	ec, err := electrician.NewBuilderRelayFromEnv(context.Background())
	if err != nil {
		return nil, err
	}
	if c, ok := ec.(io.Closer); ok {
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return c.Close() }})
	} else if needsRelay(man) {
		// Fail-safety: the noop client discards publishes
		zl.Error("manifest publishes but no relay target is configured",
			zap.String("ELECTRICIAN_TARGET", os.Getenv("ELECTRICIAN_TARGET")),
			zap.String("OAUTH_ISSUER_BASE", os.Getenv("OAUTH_ISSUER_BASE")),
		)
	}
	return relayAdapter{inner: ec}, nil
}

func needsRelay(man manifest.Config) bool {
	if man.Handoff.Enabled {
		return true
	}
	for _, rt := range man.Routes {
		switch rt.Handler.Type {
		case manifest.HandlerRelayPublish, manifest.HandlerRelayReq:
			return true
		}
	}
	return false
}

// ---------- Stack + router ----------

type stackDeps struct {
	fx.In
	Auth     *auth.Middleware
	LogMW    *logger.Middleware
	Relay    core.RelayClient
	Observer stack.Observer
	Logger   *zap.Logger
}

func (d stackDeps) build() core.BuildDeps {
	return core.BuildDeps{
		Auth:     d.Auth,
		LogMW:    d.LogMW,
		Relay:    d.Relay,
		Observer: d.Observer,
		Logger:   d.Logger,
	}
}

// bodyLogTag marks routes whose JSON request bodies the access log keeps.
const bodyLogTag = "log-body"

func allowBodies(lm *logger.Middleware, man manifest.Config) {
	for _, rt := range man.Routes {
		if slices.Contains(rt.Tags, bodyLogTag) {
			lm.AllowBody(rt.Path)
		}
	}
}

func provideAdapter(cfg Config, man manifest.Config, d stackDeps) (*httpx.Adapter, error) {
	side, err := cfg.Side()
	if err != nil {
		return nil, err
	}
	s, err := core.BuildStack(man, d.build())
	if err != nil {
		return nil, err
	}
	allowBodies(d.LogMW, man)
	checkManifest(man, side, d.Logger)
	return httpx.NewAdapter(s,
		httpx.AdapterSide(side),
		httpx.AdapterReceiver(core.Handlers),
		httpx.AdapterErrors(core.WriteError),
		httpx.AdapterLogger(d.Logger),
	), nil
}

// checkManifest warns about routes that will never do anything useful on
// this process.
func checkManifest(man manifest.Config, side stack.Side, zl *zap.Logger) []string {
	registered := core.Registered()
	var missing []string
	for _, rt := range man.Routes {
		if rt.Handler.Type != manifest.HandlerInproc {
			continue
		}
		if _, ok := slices.BinarySearch(registered, rt.Handler.Name); !ok {
			missing = append(missing, rt.Handler.Name)
		}
	}
	if len(missing) > 0 {
		zl.Warn("inproc handlers not registered", zap.Strings("names", missing), zap.Strings("registered", registered))
	}
	if side == stack.Near && man.HasFarRoutes() && !man.Handoff.Enabled {
		zl.Warn("far-side routes are never handed off; enable [handoff]")
	}
	return missing
}

func provideRouter(
	ad *httpx.Adapter,
	a *auth.Middleware,
	lm *logger.Middleware,
	/* name:"metrics" */ m http.Handler,
	r httpx.Router,
	zl *zap.Logger,
) http.Handler {
	return core.BuildRouter(core.BuildDeps{
		Auth:    a,
		LogMW:   lm,
		Metrics: m,
		Router:  r,
		Logger:  zl,
	}, ad)
}

// ---------- Lifecycle (receiver + reload + HTTP server) ----------

type serverDeps struct {
	fx.In
	Logger   *zap.Logger
	App      http.Handler `name:"app"`
	Adapter  *httpx.Adapter
	Manifest manifest.Config
	Stack    stackDeps
}

func registerHooks(lc fx.Lifecycle, cfg Config, d serverDeps) {
	addr := envOr(cfg.ListenEnv, ":4000")
	cert := os.Getenv(cfg.TLSCertEnv)
	key := os.Getenv(cfg.TLSKeyEnv)

	srv := &http.Server{
		Addr:         addr,
		Handler:      d.App,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		TLSConfig:    &tls.Config{MinVersion: tls.VersionTLS13, MaxVersion: tls.VersionTLS13},
	}
	useTLS := fileExists(cert) && fileExists(key)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	var stopReceiver func()

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if rc := d.Manifest.Receiver; rc != nil {
				stop, err := electrician.StartReceiverFromEnv(bgCtx, rc.Address, rc.BufferSize, envelopeHandler(bgCtx, d.Adapter, d.Logger))
				if err != nil {
					d.Logger.Error("receiver start failed", zap.String("address", rc.Address), zap.Error(err))
					bgCancel()
					return err
				}
				stopReceiver = stop
				d.Logger.Info("receiver started", zap.String("address", rc.Address), zap.Int("buffer", rc.BufferSize))
			}

			if envTrue(cfg.WatchEnv) {
				path := cfg.manifestPath()
				rebuild := func() error { return reloadStack(path, d.Adapter, d.Stack) }
				if err := watchManifest(bgCtx, path, rebuild, d.Logger); err != nil {
					d.Logger.Warn("manifest watch disabled", zap.String("path", path), zap.Error(err))
				}
			}

			if useTLS {
				d.Logger.Info("server starting (TLS)", zap.String("service", cfg.Service), zap.String("addr", addr), zap.String("cert", cert))
				go func() {
					if err := srv.ListenAndServeTLS(cert, key); err != nil && !errors.Is(err, http.ErrServerClosed) {
						d.Logger.Fatal("server failed", zap.Error(err))
					}
				}()
			} else {
				d.Logger.Info("server starting (PLAINTEXT)", zap.String("service", cfg.Service), zap.String("addr", addr))
				srv.TLSConfig = nil
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						d.Logger.Fatal("server failed", zap.Error(err))
					}
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Logger.Info("server stopping")
			bgCancel()
			if stopReceiver != nil {
				stopReceiver()
			}
			return srv.Shutdown(ctx)
		},
	})
}

// envelopeHandler replays received hand-offs on the far side of the
// adapter's current stack.
func envelopeHandler(ctx context.Context, ad *httpx.Adapter, zl *zap.Logger) func([]byte) error {
	return func(b []byte) error {
		rep, err := core.ServeEnvelope(ctx, ad.Stack(), b, stack.WithReceiver(core.Handlers))
		if err != nil {
			zl.Warn("envelope rejected", zap.Error(err))
			return err
		}
		if rep.Err != "" {
			zl.Warn("envelope dispatch failed", zap.String("id", rep.ID), zap.Int("status", rep.Status), zap.String("error", rep.Err))
			return nil
		}
		zl.Debug("envelope served", zap.String("id", rep.ID), zap.Int("status", rep.Status))
		return nil
	}
}

// ---------- tiny helpers ----------

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envTrue(k string) bool { return k != "" && os.Getenv(k) == "true" }

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
