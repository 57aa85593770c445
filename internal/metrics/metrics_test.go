package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveTurn("weather", OutcomeReplied, 200*time.Millisecond)
	m.ObserveTurn("weather", OutcomeReplied, time.Second)
	m.ObserveTurn("packing", OutcomeClarified, time.Millisecond)
	m.ObserveTool("get_current_temperature", "ok", 30*time.Millisecond)
	m.ObserveTool("get_current_temperature", "error", 30*time.Millisecond)
	m.ObserveModel("ok")
	m.SetActiveSessions(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("weather", OutcomeReplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("packing", OutcomeClarified)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolInvocations.WithLabelValues("get_current_temperature", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelCallsTotal.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ToolDuration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTurn("chat", OutcomeReplied, time.Second)
		m.ObserveTool("x", "ok", time.Second)
		m.ObserveModel("error")
		m.SetActiveSessions(1)
	})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveTurn("chat", OutcomeFailed, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `tripbot_turns_total{branch="chat",outcome="failed"} 1`)
	assert.Contains(t, body, "tripbot_turn_duration_seconds_bucket")
	assert.Contains(t, body, "go_goroutines")
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ObserveModel("ok")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ModelCallsTotal.WithLabelValues("ok")))
}
