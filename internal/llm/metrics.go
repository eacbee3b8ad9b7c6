package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder observes what the Router Facade does for each request
// (spec.md §4.6: "emits metrics"). The default is a no-op so constructing a
// Router never requires a metrics backend; PrometheusRecorder is provided
// for callers that want one.
type MetricsRecorder interface {
	RecordCompletion(provider, model string, success bool, latency time.Duration)
	RecordFallback(fromModel, toModel string)
	RecordRateLimit(model string)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) RecordCompletion(string, string, bool, time.Duration) {}
func (noopMetricsRecorder) RecordFallback(string, string)                       {}
func (noopMetricsRecorder) RecordRateLimit(string)                              {}

var _ MetricsRecorder = noopMetricsRecorder{}

var (
	routerCompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmrouter_completions_total",
			Help: "Total completion attempts by provider, model, and outcome.",
		},
		[]string{"provider", "model", "outcome"},
	)
	routerCompletionLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmrouter_completion_latency_ms",
			Help:    "Completion latency in milliseconds by provider and model.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"provider", "model"},
	)
	routerFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmrouter_fallbacks_total",
			Help: "Total fallback transitions from one model to the next in a chain.",
		},
		[]string{"from_model", "to_model"},
	)
	routerRateLimitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmrouter_rate_limits_total",
			Help: "Total rate-limit (429) observations recorded per model.",
		},
		[]string{"model"},
	)
)

// PrometheusRecorder is a MetricsRecorder backed by the default Prometheus
// registry. Call NewPrometheusRecorder once per process; registering the
// same collectors twice panics, matching the teacher's init()-registered
// health-check metrics.
type PrometheusRecorder struct{}

// NewPrometheusRecorder registers the router's collectors and returns a
// recorder backed by them.
func NewPrometheusRecorder() PrometheusRecorder {
	prometheus.MustRegister(
		routerCompletionsTotal,
		routerCompletionLatencyMs,
		routerFallbacksTotal,
		routerRateLimitsTotal,
	)
	return PrometheusRecorder{}
}

func (PrometheusRecorder) RecordCompletion(provider, model string, success bool, latency time.Duration) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	routerCompletionsTotal.WithLabelValues(provider, model, outcome).Inc()
	routerCompletionLatencyMs.WithLabelValues(provider, model).Observe(float64(latency.Milliseconds()))
}

func (PrometheusRecorder) RecordFallback(fromModel, toModel string) {
	routerFallbacksTotal.WithLabelValues(fromModel, toModel).Inc()
}

func (PrometheusRecorder) RecordRateLimit(model string) {
	routerRateLimitsTotal.WithLabelValues(model).Inc()
}

var _ MetricsRecorder = PrometheusRecorder{}
