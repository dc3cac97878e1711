package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	responseTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "response_time",
			Help:    "http response time.",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60},
		},
	)

	totalHttpRequestsFromRole = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "total_http_requests_from_role", Help: "http requests from role"},
		[]string{"role"},
	)

	totalHttpRequestsToUri = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "total_http_requests_to_uri", Help: "http requests to uri"},
		[]string{"code", "uri", "method"},
	)

	totalHttpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "total_http_requests", Help: "http requests by code, and method"},
		[]string{"code", "method"},
	)

	stackHandlersRun = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stack_handlers_run_total", Help: "handler bodies run, by handler and side"},
		[]string{"handler", "side"},
	)

	stackHandoffs = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "stack_handoffs_total", Help: "dispatches that matched a far-side handler"},
	)

	stackDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stack_dispatches_total", Help: "finished dispatch chains by outcome"},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		responseTime,
		totalHttpRequestsFromRole,
		totalHttpRequestsToUri,
		totalHttpRequests,
		stackHandlersRun,
		stackHandoffs,
		stackDispatches,
	)
}
