// Package metrics exports engine operation metrics to Prometheus.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"organcore/internal/match"
)

// Compile-time contract assertion against the engine metrics seam.
var _ match.MetricsRecorder = (*PrometheusRecorder)(nil)

// PrometheusRecorder publishes per-operation durations and outcome counters.
type PrometheusRecorder struct {
	durations *prometheus.HistogramVec
	results   *prometheus.CounterVec
}

// NewPrometheusRecorder registers the engine collectors on the supplied
// registerer. A nil registerer falls back to the default registry.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusRecorder{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "organcore",
			Subsystem: "match",
			Name:      "operation_duration_seconds",
			Help:      "Duration of allocation engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "organcore",
			Subsystem: "match",
			Name:      "operation_results_total",
			Help:      "Engine operation outcomes by status.",
		}, []string{"operation", "status"}),
	}
	reg.MustRegister(r.durations, r.results)
	return r
}

// Observe records one engine operation outcome.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
	r.results.WithLabelValues(operation, status).Inc()
}
