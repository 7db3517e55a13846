package metric

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensorfusion/errors"
)

func gatheredNames(t *testing.T, registry *MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())

	names := gatheredNames(t, registry)
	assert.True(t, names["go_goroutines"], "go collector should be registered")
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	require.NoError(t, registry.RegisterCounter("tag_scan", "test_counter", counter))
	counter.Inc()

	assert.True(t, gatheredNames(t, registry)["test_counter"])
	assert.Equal(t, float64(1), testutil.ToFloat64(counter))
}

func TestMetricsRegistry_RegisterGaugeAndHistogram(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "A test gauge"})
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_histogram", Help: "A test histogram"})

	require.NoError(t, registry.RegisterGauge("distance", "test_gauge", gauge))
	require.NoError(t, registry.RegisterHistogram("distance", "test_histogram", histogram))

	gauge.Set(42)
	histogram.Observe(0.5)

	names := gatheredNames(t, registry)
	assert.True(t, names["test_gauge"])
	assert.True(t, names["test_histogram"])
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	first := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_counter", Help: "dup"})
	second := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_counter", Help: "dup"})

	require.NoError(t, registry.RegisterCounter("svc", "dup", first))

	err := registry.RegisterCounter("svc", "dup", second)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// Same Prometheus name under a different key hits the prometheus conflict path.
	err = registry.RegisterCounter("other", "dup", second)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_VecsWithChannelLabels(t *testing.T) {
	registry := NewMetricsRegistry()

	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "frames_total", Help: "frames"}, []string{"result"})
	gvec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "depth", Help: "depth"}, []string{"channel"})

	require.NoError(t, registry.RegisterCounterVec("tablet", "frames", vec))
	require.NoError(t, registry.RegisterGaugeVec("tablet", "depth", gvec))

	vec.WithLabelValues("ok").Add(3)
	gvec.WithLabelValues("tablet").Set(2)

	assert.Equal(t, float64(3), testutil.ToFloat64(vec.WithLabelValues("ok")))
	assert.Equal(t, float64(2), testutil.ToFloat64(gvec.WithLabelValues("tablet")))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "gone_counter", Help: "gone"})
	require.NoError(t, registry.RegisterCounter("svc", "gone", counter))

	assert.True(t, registry.Unregister("svc", "gone"))
	assert.False(t, registry.Unregister("svc", "gone"))

	// Re-registration after unregister succeeds.
	require.NoError(t, registry.RegisterCounter("svc", "gone", counter))
}

func TestMetricsRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			counter := prometheus.NewCounter(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_counter_%d", i),
				Help: "concurrent",
			})
			assert.NoError(t, registry.RegisterCounter("svc", fmt.Sprintf("c%d", i), counter))
		}(i)
	}
	wg.Wait()

	names := gatheredNames(t, registry)
	for i := 0; i < 20; i++ {
		assert.True(t, names[fmt.Sprintf("concurrent_counter_%d", i)])
	}
}

func TestCoreMetrics_Record(t *testing.T) {
	registry := NewMetricsRegistry()
	m := registry.CoreMetrics()

	m.RecordChannelState("tag_scan", 2)
	m.RecordError("tag_scan", "transient")
	m.RecordError("tag_scan", "transient")
	m.RecordDecision("tag_scan", "continue")
	m.RecordReconnect("tag_scan")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ChannelState.WithLabelValues("tag_scan")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("tag_scan", "transient")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PolicyDecisions.WithLabelValues("tag_scan", "continue")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Reconnects.WithLabelValues("tag_scan")))
}

func TestServer_ServesMetricsAndHealth(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordReconnect("volume")

	server := NewServer("127.0.0.1:0", "", registry)
	require.NoError(t, server.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, server.Stop(ctx))
	}()

	err := server.Start()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	base := "http://" + server.Address()

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "fusion_channel_reconnects_total")
}

func TestServer_NilRegistry(t *testing.T) {
	server := NewServer("127.0.0.1:0", "/metrics", nil)
	err := server.Start()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestServer_ExtraRoutes(t *testing.T) {
	server := NewServer("127.0.0.1:0", "/metrics", NewMetricsRegistry())
	server.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	require.NoError(t, server.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, server.Stop(ctx))
	}()

	resp, err := http.Get("http://" + server.Address() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get("http://" + server.Address() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
