package metrics

import (
	"net/http"
	"strings"
)

type collectConfig struct {
	skip      map[string]struct{}
	pathLabel func(*http.Request) string
}

// CollectOption configures Collect.
type CollectOption func(*collectConfig)

// SkipPaths excludes paths from the HTTP collectors. "/metrics" is always
// skipped.
func SkipPaths(paths ...string) CollectOption {
	return func(c *collectConfig) {
		for _, p := range paths {
			if p = strings.TrimSpace(p); p != "" {
				c.skip[p] = struct{}{}
			}
		}
	}
}

// PathLabel sets how the uri label is derived, e.g. to collapse ids.
// Defaults to r.URL.Path.
func PathLabel(fn func(*http.Request) string) CollectOption {
	return func(c *collectConfig) {
		if fn != nil {
			c.pathLabel = fn
		}
	}
}

func newCollectConfig(opts []CollectOption) collectConfig {
	c := collectConfig{
		skip:      map[string]struct{}{"/metrics": {}},
		pathLabel: func(r *http.Request) string { return r.URL.Path },
	}
	for _, o := range opts {
		o(&c)
	}
	return c
}
