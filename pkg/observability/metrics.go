// Package observability holds the bridge's Prometheus metrics and the
// /metrics handler. Tool execution metrics live next to the invoker in
// pkg/tools; everything else is registered here.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// UpstreamRequests counts Responses API submissions by mode and
	// outcome ("2xx", "4xx", "5xx", "network_error").
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bruecke_upstream_requests_total",
			Help: "Total Responses API requests",
		},
		[]string{"mode", "status"},
	)

	// UpstreamLatency observes time to response headers for batch calls
	// and time to stream completion for streaming calls.
	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bruecke_upstream_latency_seconds",
			Help:    "Responses API request latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"mode"},
	)

	// TokenUsage accumulates input and output token counts per model.
	TokenUsage = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bruecke_token_usage_total",
			Help: "Token usage reported by the upstream",
		},
		[]string{"model", "direction"},
	)

	// LoopTurns observes how many round-trips each run needed.
	LoopTurns = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bruecke_run_turns",
			Help:    "Round-trips per run",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
	)

	// HTTPRequests counts inbound requests by path and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bruecke_http_requests_total",
			Help: "Total inbound HTTP requests",
		},
		[]string{"path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		UpstreamRequests,
		UpstreamLatency,
		TokenUsage,
		LoopTurns,
		HTTPRequests,
	)
}

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTokens records usage totals for one completed turn.
func ObserveTokens(model string, inputTokens, outputTokens float64) {
	if inputTokens > 0 {
		TokenUsage.WithLabelValues(model, "input").Add(inputTokens)
	}
	if outputTokens > 0 {
		TokenUsage.WithLabelValues(model, "output").Add(outputTokens)
	}
}

// StatusClass buckets an HTTP status code for metric labels.
func StatusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "other"
	}
}
