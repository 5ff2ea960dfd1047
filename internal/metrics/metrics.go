// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_request_operations_total",
			Help: "Lifecycle and chat operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	upstreamTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_upstream_calls_total",
			Help: "Calls to the classifier and advisory services by outcome",
		},
		[]string{"service", "outcome"},
	)
	upstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "support_upstream_call_duration_seconds",
			Help:    "Duration of calls to the classifier and advisory services",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)
)

// ObserveOperation counts one lifecycle or chat operation. outcome is "ok"
// or the error kind.
func ObserveOperation(operation, outcome string) {
	transitionsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveUpstream records one upstream call.
func ObserveUpstream(service string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	upstreamTotal.WithLabelValues(service, outcome).Inc()
	upstreamDuration.WithLabelValues(service).Observe(d.Seconds())
}
