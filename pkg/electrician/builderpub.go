// pkg/electrician/builderpub.go
package electrician

import (
	"context"
	"errors"
	"sync"
)

// NewBuilderRelayFromEnv returns a publish-capable RelayClient powered by
// Electrician's ForwardRelay[[]byte]. It expects:
//
//	ELECTRICIAN_TARGET          = "host:port[,host2:port2]"   (required)
//
// Optional features (all off by default):
//
//	ELECTRICIAN_TLS_ENABLE      = "true" | "false"
//	ELECTRICIAN_TLS_CLIENT_CRT  = path (default: keys/tls/client.crt)
//	ELECTRICIAN_TLS_CLIENT_KEY  = path (default: keys/tls/client.key)
//	ELECTRICIAN_TLS_CA          = path (default: keys/tls/ca.crt)
//	ELECTRICIAN_TLS_INSECURE    = "true" | "false"  (dev only; for OAuth HTTP client)
//	ELECTRICIAN_COMPRESS        = "snappy" | ""
//	ELECTRICIAN_ENCRYPT         = "aesgcm" | ""
//	ELECTRICIAN_AES256_KEY_HEX  = 64 hex chars (32 bytes)
//	ELECTRICIAN_STATIC_HEADERS  = "k=v,k2=v2"
//
// OAuth2 client credentials (issuer, id and secret enable it):
//
//	OAUTH_ISSUER_BASE, OAUTH_CLIENT_ID, OAUTH_CLIENT_SECRET, OAUTH_SCOPES,
//	OAUTH_JWKS_URL, OAUTH_REQUIRED_AUD, OAUTH_REFRESH_LEEWAY, OAUTH_PREFLIGHT_TIMEOUT
//
// If ELECTRICIAN_TARGET is absent, it returns a noop RelayClient. Every
// topic rides the same relay; the far side tells payloads apart.
func NewBuilderRelayFromEnv(ctx context.Context) (RelayClient, error) {
	fwd, err := loadForwardEnv()
	if err != nil {
		return nil, err
	}
	if len(fwd.targets) == 0 {
		return noopRelay{}, nil
	}
	submit, stop, err := startForward(ctx, fwd)
	if err != nil {
		return nil, err
	}
	return &builderClient{submit: submit, stop: stop}, nil
}

type builderClient struct {
	submit func(context.Context, []byte) error // captures wire.Submit
	stop   func()

	once sync.Once
}

// Request is unsupported in builder mode (stream/publish only).
func (c *builderClient) Request(context.Context, RelayRequest) ([]byte, error) {
	return nil, ErrRequestUnsupported
}

// Publish sends bytes into the pipeline.
func (c *builderClient) Publish(ctx context.Context, rr RelayRequest) error {
	if rr.Topic == "" {
		return errors.New("relay: missing topic")
	}
	return c.submit(ctx, rr.Body)
}

// Close stops the relay and its wire. Safe to call more than once.
func (c *builderClient) Close() error {
	c.once.Do(c.stop)
	return nil
}
