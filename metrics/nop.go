package metrics

import "github.com/prometheus/client_golang/prometheus"

// Nop is a Registry whose metrics discard every update.
type Nop struct{}

type nopMetric struct{}

func (nopMetric) Set(float64) {}
func (nopMetric) Inc()        {}
func (nopMetric) Add(float64) {}

type nopGaugeVec struct{}

func (nopGaugeVec) With(prometheus.Labels) Gauge { return nopMetric{} }

type nopCounterVec struct{}

func (nopCounterVec) With(prometheus.Labels) Counter { return nopMetric{} }

func (Nop) NewGauge(prometheus.GaugeOpts) (Gauge, error) { return nopMetric{}, nil }

func (Nop) NewGaugeVec(prometheus.GaugeOpts, []string) (GaugeVec, error) {
	return nopGaugeVec{}, nil
}

func (Nop) NewCounter(prometheus.CounterOpts) (Counter, error) { return nopMetric{}, nil }

func (Nop) NewCounterVec(prometheus.CounterOpts, []string) (CounterVec, error) {
	return nopCounterVec{}, nil
}
