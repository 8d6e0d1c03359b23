package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// remoteWriteServer decodes every request it receives onto the returned channel.
func remoteWriteServer(t *testing.T, status int) (*httptest.Server, <-chan []prompb.TimeSeries) {
	t.Helper()
	received := make(chan []prompb.TimeSeries, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/write", r.URL.Path)
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "application/x-protobuf", r.Header.Get("Content-Type"))
		assert.Equal(t, "0.1.0", r.Header.Get("X-Prometheus-Remote-Write-Version"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)

		var req prompb.WriteRequest
		require.NoError(t, proto.Unmarshal(decoded, &req))
		received <- req.Timeseries
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, received
}

func label(ts prompb.TimeSeries, name string) string {
	for _, l := range ts.Labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

func byName(series []prompb.TimeSeries) map[string]prompb.TimeSeries {
	out := make(map[string]prompb.TimeSeries, len(series))
	for _, ts := range series {
		key := label(ts, "__name__")
		if c := label(ts, "component"); c != "" {
			key += "{" + c + "}"
		}
		out[key] = ts
	}
	return out
}

func TestPushRegistry_BuffersUntilFlush(t *testing.T) {
	server, received := remoteWriteServer(t, http.StatusNoContent)

	reg := NewPushRegistry(PushConfig{URL: server.URL + "/", Prefix: "gostack", Job: "gostack", Instance: "ops1"})

	duration, err := reg.NewGauge(prometheus.GaugeOpts{Name: "run_duration_seconds"})
	require.NoError(t, err)
	steps, err := reg.NewCounterVec(prometheus.CounterOpts{Name: "steps_total"}, []string{"component"})
	require.NoError(t, err)

	duration.Set(12.5)
	steps.With(prometheus.Labels{"component": "frontend"}).Inc()
	steps.With(prometheus.Labels{"component": "frontend"}).Add(2)
	steps.With(prometheus.Labels{"component": "platform"}).Inc()

	assert.Empty(t, received, "nothing is sent before Flush")
	assert.Equal(t, 3, reg.Pending())

	require.NoError(t, reg.Flush(context.Background()))
	series := byName(<-received)
	require.Len(t, series, 3)

	d := series["gostack_run_duration_seconds"]
	assert.Equal(t, "gostack", label(d, "job"))
	assert.Equal(t, "ops1", label(d, "instance"))
	require.Len(t, d.Samples, 1)
	assert.Equal(t, 12.5, d.Samples[0].Value)

	assert.Equal(t, 3.0, series["gostack_steps_total{frontend}"].Samples[0].Value)
	assert.Equal(t, 1.0, series["gostack_steps_total{platform}"].Samples[0].Value)
}

func TestPushRegistry_FlushEmpty(t *testing.T) {
	reg := NewPushRegistry(PushConfig{URL: "http://127.0.0.1:1"})
	assert.NoError(t, reg.Flush(context.Background()))
}

func TestPushRegistry_FlushRejected(t *testing.T) {
	server, _ := remoteWriteServer(t, http.StatusBadRequest)
	reg := NewPushRegistry(PushConfig{URL: server.URL})

	g, err := reg.NewGauge(prometheus.GaugeOpts{Name: "last_run_success"})
	require.NoError(t, err)
	g.Set(1)

	err = reg.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
}

func TestPushCounter_NegativePanics(t *testing.T) {
	reg := NewPushRegistry(PushConfig{URL: "http://127.0.0.1:1"})
	c, err := reg.NewCounter(prometheus.CounterOpts{Name: "steps_total"})
	require.NoError(t, err)
	assert.Panics(t, func() { c.Add(-1) })
}

func TestLocalRegistry_Handler(t *testing.T) {
	reg, err := NewLocalRegistry(WithProcessCollectors())
	require.NoError(t, err)

	g, err := reg.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "A test gauge"})
	require.NoError(t, err)
	g.Set(42)

	cv, err := reg.NewCounterVec(prometheus.CounterOpts{Name: "test_counter", Help: "A test counter"}, []string{"phase"})
	require.NoError(t, err)
	cv.With(prometheus.Labels{"phase": "install"}).Inc()

	w := httptest.NewRecorder()
	reg.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "test_gauge 42")
	assert.Contains(t, body, `test_counter{phase="install"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestLocalRegistry_DuplicateRegistration(t *testing.T) {
	reg, err := NewLocalRegistry()
	require.NoError(t, err)

	first, err := reg.NewCounterVec(prometheus.CounterOpts{Name: "steps_total", Help: "x"}, []string{"status"})
	require.NoError(t, err)
	first.With(prometheus.Labels{"status": "succeeded"}).Inc()

	second, err := reg.NewCounterVec(prometheus.CounterOpts{Name: "steps_total", Help: "x"}, []string{"status"})
	require.NoError(t, err)
	second.With(prometheus.Labels{"status": "succeeded"}).Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(first.(localCounterVec).vec))

	// same name, different type
	_, err = reg.NewGauge(prometheus.GaugeOpts{Name: "steps_total", Help: "x"})
	assert.Error(t, err)
}

func TestLocalRegistry_WriteTextfile(t *testing.T) {
	reg, err := NewLocalRegistry()
	require.NoError(t, err)

	gv, err := reg.NewGaugeVec(prometheus.GaugeOpts{Name: "component_state", Help: "state"}, []string{"component"})
	require.NoError(t, err)
	gv.With(prometheus.Labels{"component": "frontend"}).Set(4)

	path := filepath.Join(t.TempDir(), "gostack.prom")
	require.NoError(t, reg.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `component_state{component="frontend"} 4`)
}

func TestLocalRegistry_WithPrefix(t *testing.T) {
	reg, err := NewLocalRegistry(WithPrefix("gostack"))
	require.NoError(t, err)

	g, err := reg.NewGaugeVec(prometheus.GaugeOpts{Name: "last_run_success", Help: "x"}, []string{"operation"})
	require.NoError(t, err)
	g.With(prometheus.Labels{"operation": "bootstrap"}).Set(1)

	// reused through the wrapping registerer too
	_, err = reg.NewGaugeVec(prometheus.GaugeOpts{Name: "last_run_success", Help: "x"}, []string{"operation"})
	require.NoError(t, err)

	families, err := reg.Gatherer().Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "gostack_last_run_success", families[0].GetName())
}

func TestNop(t *testing.T) {
	var reg Registry = Nop{}
	g, err := reg.NewGaugeVec(prometheus.GaugeOpts{Name: "x"}, []string{"a"})
	require.NoError(t, err)
	g.With(prometheus.Labels{"a": "b"}).Set(1)

	c, err := reg.NewCounter(prometheus.CounterOpts{Name: "y"})
	require.NoError(t, err)
	c.Inc()
}
