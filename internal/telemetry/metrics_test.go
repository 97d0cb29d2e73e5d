package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics("callbot")

	m.ObserveOutcome(OutcomePromptRequested)
	m.ObserveOutcome(OutcomePromptRequested)
	m.ObserveOutcome(OutcomeTimedOut)
	m.ObservePoll("connected")
	m.ObserveConnect(3 * time.Second)

	require.Equal(t, 2.0, testutil.ToFloat64(m.orchestrations.WithLabelValues(OutcomePromptRequested)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.orchestrations.WithLabelValues(OutcomeTimedOut)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues("connected")))
	require.Equal(t, 1, testutil.CollectAndCount(m.connect))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveOutcome(OutcomeFailed)
	m.ObservePoll("unknown")
	m.ObserveConnect(time.Second)
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics("callbot")
	m.ObserveOutcome(OutcomeTimedOut)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `callbot_orchestrations_total{outcome="timed_out"} 1`)
}
