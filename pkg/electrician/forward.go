package electrician

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/joeydtaylor/electrician/pkg/builder"
)

// startForward builds Wire[[]byte] -> ForwardRelay[[]byte] and starts both.
// submit feeds the wire; stop tears both down in reverse.
func startForward(ctx context.Context, fwd forwardEnv) (submit func(context.Context, []byte) error, stop func(), err error) {
	logger := builder.NewLogger(builder.LoggerWithDevelopment(true))
	wire := builder.NewWire[[]byte](ctx, builder.WireWithLogger[[]byte](logger))

	perf := builder.NewPerformanceOptions(fwd.useSnappy, builder.COMPRESS_SNAPPY)
	sec := builder.NewSecurityOptions(fwd.useAESGCM, builder.ENCRYPTION_AES_GCM)
	tlsCfg := builder.NewTlsClientConfig(
		fwd.useTLS,
		fwd.tlsCrt, fwd.tlsKey, fwd.tlsCA,
		tls.VersionTLS13, tls.VersionTLS13,
	)

	var relayStart func(context.Context) error
	var relayStop func()

	// OAuth2 bearer is the only conditional branch
	if fwd.oauth.clientCredentials() {
		authOpts := builder.NewForwardRelayAuthenticationOptionsOAuth2(nil)
		if fwd.oauth.jwks != "" {
			authOpts = builder.NewForwardRelayAuthenticationOptionsOAuth2(
				builder.NewForwardRelayOAuth2JWTOptions(fwd.oauth.issuer, fwd.oauth.jwks, fwd.oauth.requiredAud, fwd.oauth.scopes, 300),
			)
		}

		// token fetch client (TLS1.3; optional insecure for local)
		authHTTP := &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion:         tls.VersionTLS13,
					MaxVersion:         tls.VersionTLS13,
					InsecureSkipVerify: fwd.tlsInsecure, // dev only
				},
			},
		}
		_ = preflightOAuthToken(ctx, authHTTP, fwd.oauth, fwd.preflight)

		ts := builder.NewForwardRelayRefreshingClientCredentialsSource(
			fwd.oauth.issuer, fwd.oauth.clientID, fwd.oauth.clientSecret, fwd.oauth.scopes, fwd.leeway, authHTTP,
		)
		relay := builder.NewForwardRelay[[]byte](
			ctx,
			builder.ForwardRelayWithLogger[[]byte](logger),
			builder.ForwardRelayWithTarget[[]byte](fwd.targets...),
			builder.ForwardRelayWithPerformanceOptions[[]byte](perf),
			builder.ForwardRelayWithSecurityOptions[[]byte](sec, fwd.aesKey),
			builder.ForwardRelayWithTLSConfig[[]byte](tlsCfg),
			builder.ForwardRelayWithStaticHeaders[[]byte](fwd.staticHeaders),
			builder.ForwardRelayWithAuthenticationOptions[[]byte](authOpts),
			builder.ForwardRelayWithOAuthBearer[[]byte](ts),
			builder.ForwardRelayWithInput(wire),
		)
		relayStart, relayStop = relay.Start, relay.Stop
	} else {
		relay := builder.NewForwardRelay[[]byte](
			ctx,
			builder.ForwardRelayWithLogger[[]byte](logger),
			builder.ForwardRelayWithTarget[[]byte](fwd.targets...),
			builder.ForwardRelayWithPerformanceOptions[[]byte](perf),
			builder.ForwardRelayWithSecurityOptions[[]byte](sec, fwd.aesKey),
			builder.ForwardRelayWithTLSConfig[[]byte](tlsCfg),
			builder.ForwardRelayWithStaticHeaders[[]byte](fwd.staticHeaders),
			builder.ForwardRelayWithInput(wire),
		)
		relayStart, relayStop = relay.Start, relay.Stop
	}

	if err := wire.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("builder wire start: %w", err)
	}
	if err := relayStart(ctx); err != nil {
		wire.Stop()
		return nil, nil, fmt.Errorf("builder relay start: %w", err)
	}
	submit = func(ctx context.Context, b []byte) error { return wire.Submit(ctx, b) }
	return submit, func() {
		relayStop()
		wire.Stop()
	}, nil
}
