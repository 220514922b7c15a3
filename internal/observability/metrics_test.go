package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountsEventsAndClients(t *testing.T) {
	m := NewMetrics()

	m.RecordEvent("ticket.created")
	m.RecordEvent("ticket.created")
	m.RecordHandlerFailure("ticket.created")
	m.ClientConnected()
	m.ClientConnected()
	m.ClientDisconnected()
	m.ClientDropped()
	m.RecordRequest("/api/tickets", "GET", 200, 5*time.Millisecond)
	m.RecordError("/api/tickets/:id", "PUT", "ILLEGAL_TRANSITION")

	require.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("ticket.created")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.handlerFailures.WithLabelValues("ticket.created")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.clients))
	require.Equal(t, 1.0, testutil.ToFloat64(m.droppedClients))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/tickets", "GET", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("/api/tickets/:id", "PUT", "ILLEGAL_TRANSITION")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordEvent("x")
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.ClientDropped()
		m.RecordReplay("ok")
	})
}

func TestMetrics_HandlerExposesCollectors(t *testing.T) {
	m := NewMetrics()
	m.RecordEvent("stats.changed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `helpdesk_events_dispatched_total{type="stats.changed"} 1`)
}
