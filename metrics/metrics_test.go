package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGaugeVecReusesExistingCollector(t *testing.T) {
	m := NewMetrics("docstore-test")

	opts := prometheus.GaugeOpts{Name: "component_state", Help: "state gauge"}
	first := m.NewGaugeVec(opts, []string{"name"})
	// 组件热重建会重复注册同名指标，必须复用而不是 panic。
	second := m.NewGaugeVec(opts, []string{"name"})

	assert.Same(t, first, second)
}

func TestRegisterBuildInfo(t *testing.T) {
	m := NewMetrics("docstore-test")
	m.RegisterBuildInfo("docstore-readworker", "1.4.2")

	require.NotNil(t, m.BuildInfo)

	// 重复注册不覆盖首次记录的版本。
	m.RegisterBuildInfo("docstore-readworker", "9.9.9")
	body := scrape(t, m)
	assert.Contains(t, body, `build_info{service="docstore-readworker",version="1.4.2"} 1`)
	assert.NotContains(t, body, "9.9.9")

	var nilMetrics *Metrics
	nilMetrics.RegisterBuildInfo("x", "y")
}

func TestHandlerAggregatesDefaultRegistry(t *testing.T) {
	m := NewMetrics("docstore-test")
	m.RegisterBuildInfo("docstore-test", "dev")

	// 业务包在 init 中向默认注册表注册的指标也要出现在同一端点。
	defaultSide := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docstore_test_handler_probe_total",
		Help: "probe counter",
	})
	require.NoError(t, prometheus.Register(defaultSide))
	t.Cleanup(func() { prometheus.Unregister(defaultSide) })
	defaultSide.Inc()

	body := scrape(t, m)
	assert.Contains(t, body, "build_info")
	assert.Contains(t, body, "docstore_test_handler_probe_total 1")
	assert.Contains(t, body, "go_goroutines")
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	require.Equal(t, 200, res.StatusCode)

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	return string(raw)
}
