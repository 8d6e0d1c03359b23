package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
)

// DefaultTimeout bounds a single remote write request.
const DefaultTimeout = 30 * time.Second

// PushConfig configures a PushRegistry.
type PushConfig struct {
	// URL is the base URL of the remote write endpoint, e.g. http://localhost:8428.
	URL string
	// Prefix is prepended to every metric name, followed by an underscore.
	Prefix   string
	Job      string
	Instance string
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
}

// PushRegistry keeps the latest value of every series and writes them all in
// one remote write request when flushed.
type PushRegistry struct {
	url        string
	httpClient *http.Client
	prefix     string
	job        string
	instance   string

	mu     sync.Mutex
	series map[string]*series
}

type series struct {
	name   string
	labels map[string]string
	value  float64
	at     time.Time
}

// NewPushRegistry creates a PushRegistry for cfg.
func NewPushRegistry(cfg PushConfig) *PushRegistry {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &PushRegistry{
		url:        strings.TrimSuffix(cfg.URL, "/") + "/api/v1/write",
		httpClient: &http.Client{Timeout: timeout},
		prefix:     cfg.Prefix,
		job:        cfg.Job,
		instance:   cfg.Instance,
		series:     make(map[string]*series),
	}
}

func (r *PushRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	return &pushGauge{reg: r, name: opts.Name}, nil
}

func (r *PushRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	return &pushGaugeVec{reg: r, name: opts.Name, labels: labels}, nil
}

func (r *PushRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	return &pushCounter{reg: r, name: opts.Name}, nil
}

func (r *PushRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	return &pushCounterVec{reg: r, name: opts.Name, labels: labels}, nil
}

// update applies fn to the series identified by name and labels.
func (r *PushRegistry) update(name string, labels map[string]string, fn func(old float64) float64) {
	key := seriesKey(name, labels)

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.series[key]
	if !ok {
		s = &series{name: name, labels: labels}
		r.series[key] = s
	}
	s.value = fn(s.value)
	s.at = time.Now()
}

// Pending returns the number of buffered series.
func (r *PushRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.series)
}

// Flush writes every buffered series to the remote write endpoint.
// Series stay buffered so counters keep their totals across flushes.
func (r *PushRegistry) Flush(ctx context.Context) error {
	r.mu.Lock()
	timeseries := make([]prompb.TimeSeries, 0, len(r.series))
	for _, s := range r.series {
		timeseries = append(timeseries, r.toTimeSeries(s))
	}
	r.mu.Unlock()

	if len(timeseries) == 0 {
		return nil
	}

	data, err := proto.Marshal(&prompb.WriteRequest{Timeseries: timeseries})
	if err != nil {
		return fmt.Errorf("marshaling write request: %w", err)
	}
	compressed := snappy.Encode(nil, data)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (r *PushRegistry) toTimeSeries(s *series) prompb.TimeSeries {
	name := s.name
	if r.prefix != "" {
		name = r.prefix + "_" + name
	}
	labels := []prompb.Label{{Name: "__name__", Value: name}}
	if r.job != "" {
		labels = append(labels, prompb.Label{Name: "job", Value: r.job})
	}
	if r.instance != "" {
		labels = append(labels, prompb.Label{Name: "instance", Value: r.instance})
	}
	for _, k := range sortedKeys(s.labels) {
		labels = append(labels, prompb.Label{Name: k, Value: s.labels[k]})
	}
	return prompb.TimeSeries{
		Labels:  labels,
		Samples: []prompb.Sample{{Value: s.value, Timestamp: s.at.UnixMilli()}},
	}
}

type pushGauge struct {
	reg    *PushRegistry
	name   string
	labels map[string]string
}

func (g *pushGauge) Set(v float64) {
	g.reg.update(g.name, g.labels, func(float64) float64 { return v })
}

type pushGaugeVec struct {
	reg    *PushRegistry
	name   string
	labels []string
}

func (g *pushGaugeVec) With(labels prometheus.Labels) Gauge {
	return &pushGauge{reg: g.reg, name: g.name, labels: labels}
}

type pushCounter struct {
	reg    *PushRegistry
	name   string
	labels map[string]string
}

func (c *pushCounter) Inc() {
	c.Add(1)
}

func (c *pushCounter) Add(v float64) {
	if v < 0 {
		panic("counter cannot decrease in value")
	}
	c.reg.update(c.name, c.labels, func(old float64) float64 { return old + v })
}

type pushCounterVec struct {
	reg    *PushRegistry
	name   string
	labels []string
}

func (c *pushCounterVec) With(labels prometheus.Labels) Counter {
	return &pushCounter{reg: c.reg, name: c.name, labels: labels}
}

func seriesKey(name string, labels map[string]string) string {
	var b strings.Builder
	b.WriteString(name)
	for _, k := range sortedKeys(labels) {
		b.WriteString("," + k + "=" + labels[k])
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
