package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(recoveredPanicsTotal) }

var recoveredPanicsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "threatlens_recovered_panics_total",
		Help: "Panics recovered, by where they were caught (http, job).",
	},
	[]string{"where"},
)

func IncRecoveredPanic(where string) {
	recoveredPanicsTotal.WithLabelValues(norm(where)).Inc()
}
