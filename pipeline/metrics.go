package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomis52/gostack/metrics"
)

type runMetrics struct {
	steps    metrics.CounterVec
	duration metrics.GaugeVec
	success  metrics.GaugeVec
	lastRun  metrics.GaugeVec
	state    metrics.GaugeVec
	warnings metrics.GaugeVec
}

func newRunMetrics(reg metrics.Registry) (*runMetrics, error) {
	m := &runMetrics{}
	var err error
	if m.steps, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "steps_total",
		Help: "Pipeline steps by component, phase and status.",
	}, []string{"operation", "component", "phase", "status"}); err != nil {
		return nil, err
	}
	if m.duration, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "run_duration_seconds",
		Help: "Wall-clock duration of the last run of an operation.",
	}, []string{"operation"}); err != nil {
		return nil, err
	}
	if m.success, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "last_run_success",
		Help: "1 if the last run of an operation succeeded, 0 otherwise.",
	}, []string{"operation"}); err != nil {
		return nil, err
	}
	if m.lastRun, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "last_run_timestamp_seconds",
		Help: "Unix time the last run of an operation finished.",
	}, []string{"operation"}); err != nil {
		return nil, err
	}
	if m.state, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "component_state",
		Help: "Lifecycle state of each component at the end of the last run.",
	}, []string{"component"}); err != nil {
		return nil, err
	}
	if m.warnings, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "last_run_warnings",
		Help: "Best-effort failures recorded by the last run of an operation.",
	}, []string{"operation"}); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *runMetrics) step(operation string, s Step) {
	m.steps.With(prometheus.Labels{
		"operation": operation,
		"component": s.Component,
		"phase":     string(s.Phase),
		"status":    s.Status.String(),
	}).Inc()
}

func (m *runMetrics) component(c ComponentResult) {
	m.state.With(prometheus.Labels{"component": c.Name}).Set(float64(c.State))
}

func (m *runMetrics) run(r *Run) {
	labels := prometheus.Labels{"operation": r.Operation}
	m.duration.With(labels).Set(r.Duration().Seconds())
	m.lastRun.With(labels).Set(float64(r.Finished.Unix()))
	m.warnings.With(labels).Set(float64(len(r.Warnings)))
	success := 0.0
	if r.Succeeded() {
		success = 1
	}
	m.success.With(labels).Set(success)
}
