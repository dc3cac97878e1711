package metrics

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/middleware"
	"github.com/joeydtaylor/steeze-stack/pkg/middleware/auth"
)

// Collect produces the HTTP middleware that records the counters/histogram.
// ca may be nil; requests then count under the empty role.
func Collect(ca *auth.Middleware, opts ...CollectOption) func(next http.Handler) http.Handler {
	cfg := newCollectConfig(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, skip := cfg.skip[r.URL.Path]; skip {
				next.ServeHTTP(w, r)
				return
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			startTime := time.Now()

			defer func() {
				code := strconv.Itoa(ww.Status())
				method := r.Method

				totalHttpRequestsFromRole.WithLabelValues(ca.GetUser(r.Context()).Role.Name).Inc()
				totalHttpRequestsToUri.WithLabelValues(code, cfg.pathLabel(r), method).Inc()
				totalHttpRequests.WithLabelValues(code, method).Inc()
				responseTime.Observe(time.Since(startTime).Seconds())
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
