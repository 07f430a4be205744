package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ProxyRequest("capture", true)
		m.ControlAttempt()
		m.ControlFailure()
		m.PollTick("face", true, nil)
		m.PollStale("face")
		m.Toggle("face", false)
		m.LineSync("crossline", true)
		m.SetConnectionState(2)
		m.AddActivePollers(1)
		m.AddSSEClients(1)
	})
}

func TestPollTickClassification(t *testing.T) {
	m := New()
	m.PollTick("face", false, nil)
	m.PollTick("face", true, nil)
	m.PollTick("face", false, errors.New("timeout"))

	body := scrape(t, m)
	assert.Contains(t, body, `dashboard_poll_ticks_total{feature="face"} 3`)
	assert.Contains(t, body, `dashboard_poll_changes_total{feature="face"} 1`)
	assert.Contains(t, body, `dashboard_poll_errors_total{feature="face"} 1`)
}

func TestHandlerExposesGauges(t *testing.T) {
	m := New()
	m.SetConnectionState(2)
	m.LineSync("pipeline", false)

	body := scrape(t, m)
	assert.Contains(t, body, "dashboard_connection_state 2")
	assert.Contains(t, body, `dashboard_line_syncs_total{feature="pipeline",outcome="failure"} 1`)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}
