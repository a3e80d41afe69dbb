package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_runs_total",
			Help: "Total number of question runs by route and outcome",
		},
		[]string{"route", "outcome"},
	)
	RepairAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "copilot_repair_attempts",
			Help:    "Repair loop iterations per run that reached the structured path",
			Buckets: []float64{0, 1, 2, 3, 5},
		},
	)
	NodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "copilot_node_duration_seconds",
			Help: "Duration of graph node executions",
		},
		[]string{"node"},
	)
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_llm_requests_total",
			Help: "Total number of completion requests sent to the language model",
		},
		[]string{"status"},
	)
	CompletionCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_completion_cache_total",
			Help: "Completion cache lookups by result",
		},
		[]string{"result"},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "copilot_http_request_duration_seconds",
			Help: "Duration of HTTP API requests",
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(RepairAttempts)
	prometheus.MustRegister(NodeDuration)
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(CompletionCacheTotal)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
}
