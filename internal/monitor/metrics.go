package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uptimed_probe_total",
			Help: "Total number of completed probes.",
		},
		[]string{"type", "status"},
	)
	probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "uptimed_probe_duration_seconds",
			Help:    "Wall-clock duration of a probe including fallbacks.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"type"},
	)
	fallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uptimed_probe_fallback_total",
			Help: "Number of times a probe escalated to a fallback method.",
		},
		[]string{"reason"},
	)
	scheduledGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "uptimed_monitors_scheduled",
			Help: "Number of monitors with a live probe timer.",
		},
	)
	eventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "uptimed_check_events_dropped_total",
			Help: "Number of check events dropped because the publish queue was full.",
		},
	)
	prunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "uptimed_checks_pruned_total",
			Help: "Number of in-memory checks removed by the retention sweep.",
		},
	)
)

func init() {
	prometheus.MustRegister(probesTotal)
	prometheus.MustRegister(probeDuration)
	prometheus.MustRegister(fallbacksTotal)
	prometheus.MustRegister(scheduledGauge)
	prometheus.MustRegister(prunedTotal)
	prometheus.MustRegister(eventsDroppedTotal)
}
