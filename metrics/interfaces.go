// Package metrics records pipeline runs as Prometheus-compatible metrics.
//
// Three registries are available:
//   - LocalRegistry keeps metrics in process, for a textfile collector or a /metrics endpoint
//   - PushRegistry buffers samples and sends them to a remote write endpoint on Flush
//   - Nop discards everything, used when monitoring is not configured
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Gauge is a value that can go up and down.
type Gauge interface {
	Set(float64)
}

// Counter is a monotonically increasing value.
type Counter interface {
	Inc()
	// Add panics if v is negative.
	Add(v float64)
}

// GaugeVec is a Gauge partitioned by labels.
type GaugeVec interface {
	With(prometheus.Labels) Gauge
}

// CounterVec is a Counter partitioned by labels.
type CounterVec interface {
	With(prometheus.Labels) Counter
}

// Registry creates metrics.
type Registry interface {
	NewGauge(opts prometheus.GaugeOpts) (Gauge, error)
	NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error)
	NewCounter(opts prometheus.CounterOpts) (Counter, error)
	NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error)
}

// Flusher is implemented by registries that deliver metrics at the end of a run.
type Flusher interface {
	Flush(ctx context.Context) error
}
