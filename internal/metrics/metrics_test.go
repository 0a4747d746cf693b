// ABOUTME: Tests for the Prometheus collectors and the exposition handler
// ABOUTME: Verifies nil-safety and that recorded values reach the registry

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("info", "200")
		m.ObserveEngineCall("info", time.Millisecond, "unreachable")
		m.EventReceived()
		m.EventSkipped("decode")
		m.Reconnect()
		m.SetStreamState(2)
		m.SetSubscribers(3)
		m.SubscriberDropped("send_failed")
		m.Broadcast()
	})
}

func TestMetrics_Recording(t *testing.T) {
	m := New()

	m.ObserveRequest("containers", "200")
	m.ObserveRequest("containers", "200")
	m.ObserveEngineCall("info", 10*time.Millisecond, "rejected")
	m.ObserveEngineCall("info", 10*time.Millisecond, "")
	m.EventReceived()
	m.EventSkipped("duplicate")
	m.SetSubscribers(4)
	m.SubscriberDropped("queue_full")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("containers", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineErrorsTotal.WithLabelValues("info", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsSkipped.WithLabelValues("duplicate")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Subscribers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscriberDrops.WithLabelValues("queue_full")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.EventReceived()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "dock_gateway_events_received_total 1")
}
