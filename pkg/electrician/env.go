package electrician

import (
	"encoding/hex"
	"errors"
	"os"
	"strings"
	"time"
)

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envTrue(k string) bool { return strings.EqualFold(os.Getenv(k), "true") }

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}

func parseKV(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := map[string]string{}
	for _, kv := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if ok {
			out[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return out
}

func parseDur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	if d == 0 {
		d = 20 * time.Second
	}
	return d
}

// aesKeyFromEnv returns the 32 raw key bytes as a string, the form the
// builder API takes, or "" when unset.
func aesKeyFromEnv(hop string) (string, error) {
	k := strings.TrimSpace(os.Getenv("ELECTRICIAN_AES256_KEY_HEX"))
	if k == "" {
		return "", nil
	}
	raw, err := hex.DecodeString(k)
	if err != nil || len(raw) != 32 {
		return "", errors.New(hop + ": ELECTRICIAN_AES256_KEY_HEX must be 64 hex chars (32 bytes)")
	}
	return string(raw), nil
}

// oauthEnv is shared by both hops.
type oauthEnv struct {
	issuer       string
	jwks         string
	clientID     string
	clientSecret string
	scopes       []string
	requiredAud  []string
}

func loadOAuthEnv() oauthEnv {
	return oauthEnv{
		issuer:       strings.TrimSpace(os.Getenv("OAUTH_ISSUER_BASE")),
		jwks:         strings.TrimSpace(os.Getenv("OAUTH_JWKS_URL")),
		clientID:     strings.TrimSpace(os.Getenv("OAUTH_CLIENT_ID")),
		clientSecret: strings.TrimSpace(os.Getenv("OAUTH_CLIENT_SECRET")),
		scopes:       splitCSV(os.Getenv("OAUTH_SCOPES")),
		requiredAud:  splitCSV(os.Getenv("OAUTH_REQUIRED_AUD")),
	}
}

func (o oauthEnv) clientCredentials() bool {
	return o.issuer != "" && o.clientID != "" && o.clientSecret != ""
}

// forwardEnv holds all inputs used to configure the forward hop.
type forwardEnv struct {
	targets       []string
	useTLS        bool
	tlsCrt        string
	tlsKey        string
	tlsCA         string
	tlsInsecure   bool
	useSnappy     bool
	useAESGCM     bool
	aesKey        string
	staticHeaders map[string]string
	oauth         oauthEnv
	leeway        time.Duration
	preflight     time.Duration
}

func loadForwardEnv() (forwardEnv, error) {
	f := forwardEnv{
		targets:       splitCSV(os.Getenv("ELECTRICIAN_TARGET")),
		useTLS:        envTrue("ELECTRICIAN_TLS_ENABLE"),
		tlsCrt:        envOr("ELECTRICIAN_TLS_CLIENT_CRT", "keys/tls/client.crt"),
		tlsKey:        envOr("ELECTRICIAN_TLS_CLIENT_KEY", "keys/tls/client.key"),
		tlsCA:         envOr("ELECTRICIAN_TLS_CA", "keys/tls/ca.crt"),
		tlsInsecure:   envTrue("ELECTRICIAN_TLS_INSECURE"),
		useSnappy:     strings.EqualFold(os.Getenv("ELECTRICIAN_COMPRESS"), "snappy"),
		useAESGCM:     strings.EqualFold(os.Getenv("ELECTRICIAN_ENCRYPT"), "aesgcm"),
		staticHeaders: parseKV(os.Getenv("ELECTRICIAN_STATIC_HEADERS")),
		oauth:         loadOAuthEnv(),
		leeway:        parseDur(envOr("OAUTH_REFRESH_LEEWAY", "20s")),
		preflight:     parseDur(envOr("OAUTH_PREFLIGHT_TIMEOUT", "8s")),
	}
	if f.useAESGCM {
		k, err := aesKeyFromEnv("forward")
		if err != nil {
			return forwardEnv{}, err
		}
		if k == "" {
			return forwardEnv{}, errors.New("forward: ELECTRICIAN_ENCRYPT=aesgcm needs ELECTRICIAN_AES256_KEY_HEX")
		}
		f.aesKey = k
	}
	return f, nil
}

// receiverEnv holds inputs used to configure the receiver hop.
type receiverEnv struct {
	tlsEnable      bool
	crt            string
	key            string
	ca             string
	serverName     string
	decKey         string
	oauth          oauthEnv
	introspectURL  string
	introspectAuth string
	bearer         string
}

func loadReceiverEnv() (receiverEnv, error) {
	r := receiverEnv{
		tlsEnable:      envTrue("ELECTRICIAN_RX_TLS_ENABLE"),
		crt:            envOr("ELECTRICIAN_RX_TLS_SERVER_CRT", "keys/tls/server.crt"),
		key:            envOr("ELECTRICIAN_RX_TLS_SERVER_KEY", "keys/tls/server.key"),
		ca:             envOr("ELECTRICIAN_RX_TLS_CA", "keys/tls/ca.crt"),
		serverName:     os.Getenv("ELECTRICIAN_RX_TLS_SERVER_NAME"),
		oauth:          loadOAuthEnv(),
		introspectURL:  strings.TrimSpace(os.Getenv("OAUTH_INTROSPECT_URL")),
		introspectAuth: envOr("OAUTH_INTROSPECT_AUTH", "basic"),
		bearer:         strings.TrimSpace(os.Getenv("OAUTH_INTROSPECT_BEARER")),
	}
	k, err := aesKeyFromEnv("receiver")
	if err != nil {
		return receiverEnv{}, err
	}
	r.decKey = k
	return r, nil
}
