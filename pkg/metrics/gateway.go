package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics records outcomes of outbound payment gateway calls.
type GatewayMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
}

// NewGatewayMetrics registers gateway call metrics on the provided registerer.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_call_duration_seconds",
		Help:    "Duration of outbound payment gateway calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"gateway", "operation"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_call_total",
		Help: "Outbound payment gateway calls by outcome.",
	}, []string{"gateway", "operation", "outcome"})
	reg.MustRegister(duration, outcomes)
	return &GatewayMetrics{
		duration: duration,
		outcomes: outcomes,
	}
}

// ObserveCall records a completed gateway call.
func (g *GatewayMetrics) ObserveCall(gateway, operation, outcome string, duration time.Duration) {
	if g == nil {
		return
	}
	if g.duration != nil {
		g.duration.WithLabelValues(normalizeLabel(gateway), normalizeLabel(operation)).Observe(duration.Seconds())
	}
	if g.outcomes != nil {
		g.outcomes.WithLabelValues(normalizeLabel(gateway), normalizeLabel(operation), normalizeLabel(outcome)).Inc()
	}
}
