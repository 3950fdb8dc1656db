package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(aiCallsTotal, aiCallLatencySeconds) }

var (
	aiCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_ai_calls_total",
			Help: "Calls to the AI provider per operation and outcome.",
		},
		[]string{"provider", "op", "success"},
	)

	aiCallLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threatlens_ai_call_latency_seconds",
			Help:    "AI call latency distribution in seconds.",
			Buckets: []float64{0.5, 1, 2, 4, 8, 15, 30, 60, 120},
		},
		[]string{"provider", "op"},
	)
)

func ObserveAICall(provider, op string, d time.Duration, success bool) {
	aiCallsTotal.WithLabelValues(norm(provider), op, strconv.FormatBool(success)).Inc()
	aiCallLatencySeconds.WithLabelValues(norm(provider), op).Observe(d.Seconds())
}
