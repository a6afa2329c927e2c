package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsIndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.CompletionsTotal.WithLabelValues("score", "success").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(a.CompletionsTotal.WithLabelValues("score", "success")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.CompletionsTotal.WithLabelValues("score", "success")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.TopicImports.WithLabelValues("accepted").Inc()
	m.ActiveSessions.Set(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `lumiverse_topic_imports_total{outcome="accepted"} 1`)
	assert.Contains(t, body, "lumiverse_active_sessions 3")
	assert.Contains(t, body, `lumiverse_completions_total{operation="tips",outcome="failure"} 0`)
	assert.Contains(t, body, "go_goroutines")
}

func TestRegistryAcceptsExternalCollectors(t *testing.T) {
	m := NewMetrics()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "lumiverse_test_gauge", Help: "test"})
	require.NoError(t, m.Registry().Register(g))

	count, err := testutil.GatherAndCount(m.Registry(), "lumiverse_test_gauge")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
