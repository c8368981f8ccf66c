package server

import "github.com/prometheus/client_golang/prometheus"

var (
	opsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ntfsbridge",
		Name:      "operations_total",
		Help:      "File protocol operations processed, by operation and status.",
	}, []string{"op", "status"})

	opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ntfsbridge",
		Name:      "operation_duration_seconds",
		Help:      "File protocol operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	openHandles = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ntfsbridge",
		Name:      "open_handles",
		Help:      "Currently open file handles.",
	})
)

func init() {
	prometheus.MustRegister(opsTotal, opDuration, openHandles)
}
