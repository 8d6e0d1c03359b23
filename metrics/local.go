package metrics

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LocalRegistry keeps metrics in an in-process Prometheus registry.
// A single run writes them to a node_exporter textfile; the scheduler
// serves them over HTTP.
type LocalRegistry struct {
	prom *prometheus.Registry
	reg  prometheus.Registerer
}

// LocalOption configures a LocalRegistry.
type LocalOption func(*LocalRegistry) error

// WithProcessCollectors adds the Go runtime and process collectors.
func WithProcessCollectors() LocalOption {
	return func(r *LocalRegistry) error {
		if err := r.prom.Register(collectors.NewGoCollector()); err != nil {
			return fmt.Errorf("registering go collector: %w", err)
		}
		if err := r.prom.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return fmt.Errorf("registering process collector: %w", err)
		}
		return nil
	}
}

// WithPrefix prepends prefix and an underscore to the names of metrics
// created through the registry.
func WithPrefix(prefix string) LocalOption {
	return func(r *LocalRegistry) error {
		if prefix != "" {
			r.reg = prometheus.WrapRegistererWithPrefix(prefix+"_", r.prom)
		}
		return nil
	}
}

// NewLocalRegistry creates an empty LocalRegistry.
func NewLocalRegistry(opts ...LocalOption) (*LocalRegistry, error) {
	prom := prometheus.NewRegistry()
	r := &LocalRegistry{prom: prom, reg: prom}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (r *LocalRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// WriteTextfile atomically writes the registry to path for the node_exporter
// textfile collector.
func (r *LocalRegistry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.prom); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}

// Gatherer exposes the underlying registry.
func (r *LocalRegistry) Gatherer() prometheus.Gatherer {
	return r.prom
}

// register adds c to reg. A collector with the same description registered
// earlier is returned instead, so pipelines rebuilt for every run in serve
// mode keep updating the same series.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	var zero T
	return zero, err
}

func (r *LocalRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	g, err := register(r.reg, prometheus.NewGauge(opts))
	if err != nil {
		return nil, fmt.Errorf("registering gauge %q: %w", opts.Name, err)
	}
	return g, nil
}

func (r *LocalRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	g, err := register(r.reg, prometheus.NewGaugeVec(opts, labels))
	if err != nil {
		return nil, fmt.Errorf("registering gauge vec %q: %w", opts.Name, err)
	}
	return localGaugeVec{g}, nil
}

func (r *LocalRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	c, err := register(r.reg, prometheus.NewCounter(opts))
	if err != nil {
		return nil, fmt.Errorf("registering counter %q: %w", opts.Name, err)
	}
	return c, nil
}

func (r *LocalRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	c, err := register(r.reg, prometheus.NewCounterVec(opts, labels))
	if err != nil {
		return nil, fmt.Errorf("registering counter vec %q: %w", opts.Name, err)
	}
	return localCounterVec{c}, nil
}

type localGaugeVec struct {
	vec *prometheus.GaugeVec
}

func (g localGaugeVec) With(labels prometheus.Labels) Gauge {
	return g.vec.With(labels)
}

type localCounterVec struct {
	vec *prometheus.CounterVec
}

func (c localCounterVec) With(labels prometheus.Labels) Counter {
	return c.vec.With(labels)
}
