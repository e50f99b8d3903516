package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Callback("ephemeral", "ok")
		m.FlowAction("stop", "succeeded")
		m.Hydration("ok")
		m.Deferred("ok")
		m.ActorStarted()
		m.ActorStopped()
	})
}

func TestCounters(t *testing.T) {
	m := New()
	m.Callback("actor-backed", "ok")
	m.Callback("actor-backed", "ok")
	m.Hydration("not_found")
	m.ActorStarted()
	m.ActorStarted()
	m.ActorStopped()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.callbacks.WithLabelValues("actor-backed", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hydrations.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeActors))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.Deferred("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `interflow_deferred_tasks_total{result="ok"} 1`)
}
