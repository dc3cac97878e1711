package electrician

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"

	"github.com/joeydtaylor/electrician/pkg/builder"
)

// StartReceiverFromEnv wires ReceivingRelay[[]byte] -> Wire[[]byte] and
// calls handle for every payload received on address. A handle error is
// logged by the wire and drops that payload.
//
// Receive env:
//
//	ELECTRICIAN_RX_TLS_ENABLE, ELECTRICIAN_RX_TLS_SERVER_CRT, ELECTRICIAN_RX_TLS_SERVER_KEY,
//	ELECTRICIAN_RX_TLS_CA, ELECTRICIAN_RX_TLS_SERVER_NAME, ELECTRICIAN_AES256_KEY_HEX
//	OAUTH_JWKS_URL, OAUTH_ISSUER_BASE, OAUTH_REQUIRED_AUD, OAUTH_SCOPES,
//	OAUTH_INTROSPECT_URL, OAUTH_INTROSPECT_AUTH, OAUTH_CLIENT_ID, OAUTH_CLIENT_SECRET, OAUTH_INTROSPECT_BEARER
func StartReceiverFromEnv(ctx context.Context, address string, buffer int, handle func([]byte) error) (stop func(), err error) {
	if strings.TrimSpace(address) == "" {
		return nil, errors.New("receiver: address required")
	}
	if handle == nil {
		return nil, errors.New("receiver: handler required")
	}
	if buffer <= 0 {
		buffer = 1024
	}
	rx, err := loadReceiverEnv()
	if err != nil {
		return nil, err
	}

	logger := builder.NewLogger(builder.LoggerWithDevelopment(true))
	wire := builder.NewWire[[]byte](
		ctx,
		builder.WireWithLogger[[]byte](logger),
		builder.WireWithTransformer[[]byte](func(b []byte) ([]byte, error) {
			if err := handle(b); err != nil {
				return nil, err
			}
			return b, nil
		}),
	)

	tlsSrv := builder.NewTlsServerConfig(
		rx.tlsEnable,
		rx.crt, rx.key, rx.ca, rx.serverName,
		tls.VersionTLS13, tls.VersionTLS13,
	)

	var receiverStart func(context.Context) error
	var receiverStop func()

	switch {
	case rx.oauth.jwks != "" && rx.introspectURL != "":
		oauth := builder.NewReceivingRelayMergeOAuth2Options(
			builder.NewReceivingRelayOAuth2JWTOptions(rx.oauth.issuer, rx.oauth.jwks, rx.oauth.requiredAud, rx.oauth.scopes, 300),
			builder.NewReceivingRelayOAuth2IntrospectionOptions(rx.introspectURL, rx.introspectAuth, rx.oauth.clientID, rx.oauth.clientSecret, rx.bearer, 300),
		)
		r := builder.NewReceivingRelay[[]byte](
			ctx,
			builder.ReceivingRelayWithAddress[[]byte](address),
			builder.ReceivingRelayWithBufferSize[[]byte](uint32(buffer)),
			builder.ReceivingRelayWithLogger[[]byte](logger),
			builder.ReceivingRelayWithOutput(wire),
			builder.ReceivingRelayWithTLSConfig[[]byte](tlsSrv),
			builder.ReceivingRelayWithDecryptionKey[[]byte](rx.decKey),
			builder.ReceivingRelayWithAuthenticationOptions[[]byte](builder.NewReceivingRelayAuthenticationOptionsOAuth2(oauth)),
		)
		receiverStart, receiverStop = r.Start, r.Stop

	case rx.oauth.jwks != "":
		oauth := builder.NewReceivingRelayMergeOAuth2Options(
			builder.NewReceivingRelayOAuth2JWTOptions(rx.oauth.issuer, rx.oauth.jwks, rx.oauth.requiredAud, rx.oauth.scopes, 300),
			nil,
		)
		r := builder.NewReceivingRelay[[]byte](
			ctx,
			builder.ReceivingRelayWithAddress[[]byte](address),
			builder.ReceivingRelayWithBufferSize[[]byte](uint32(buffer)),
			builder.ReceivingRelayWithLogger[[]byte](logger),
			builder.ReceivingRelayWithOutput(wire),
			builder.ReceivingRelayWithTLSConfig[[]byte](tlsSrv),
			builder.ReceivingRelayWithDecryptionKey[[]byte](rx.decKey),
			builder.ReceivingRelayWithAuthenticationOptions[[]byte](builder.NewReceivingRelayAuthenticationOptionsOAuth2(oauth)),
		)
		receiverStart, receiverStop = r.Start, r.Stop

	case rx.introspectURL != "":
		oauth := builder.NewReceivingRelayMergeOAuth2Options(
			nil,
			builder.NewReceivingRelayOAuth2IntrospectionOptions(rx.introspectURL, rx.introspectAuth, rx.oauth.clientID, rx.oauth.clientSecret, rx.bearer, 300),
		)
		r := builder.NewReceivingRelay[[]byte](
			ctx,
			builder.ReceivingRelayWithAddress[[]byte](address),
			builder.ReceivingRelayWithBufferSize[[]byte](uint32(buffer)),
			builder.ReceivingRelayWithLogger[[]byte](logger),
			builder.ReceivingRelayWithOutput(wire),
			builder.ReceivingRelayWithTLSConfig[[]byte](tlsSrv),
			builder.ReceivingRelayWithDecryptionKey[[]byte](rx.decKey),
			builder.ReceivingRelayWithAuthenticationOptions[[]byte](builder.NewReceivingRelayAuthenticationOptionsOAuth2(oauth)),
		)
		receiverStart, receiverStop = r.Start, r.Stop

	default:
		r := builder.NewReceivingRelay[[]byte](
			ctx,
			builder.ReceivingRelayWithAddress[[]byte](address),
			builder.ReceivingRelayWithBufferSize[[]byte](uint32(buffer)),
			builder.ReceivingRelayWithLogger[[]byte](logger),
			builder.ReceivingRelayWithOutput(wire),
			builder.ReceivingRelayWithTLSConfig[[]byte](tlsSrv),
			builder.ReceivingRelayWithDecryptionKey[[]byte](rx.decKey),
		)
		receiverStart, receiverStop = r.Start, r.Stop
	}

	if err := wire.Start(ctx); err != nil {
		return nil, err
	}
	if err := receiverStart(ctx); err != nil {
		wire.Stop()
		return nil, err
	}
	return func() {
		receiverStop()
		wire.Stop()
	}, nil
}
