package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
		m.IncrementHTTPRequestsInFlight()
		m.DecrementHTTPRequestsInFlight()
		m.RecordActivity("joined", ResultPersisted)
		m.RecordSpeakerRotation("evict")
		m.RecordCapabilityToggle("camera", "requested")
		m.RecordDeviceError("camera")
		m.RecordProtocolError("unknown_type")
		m.SetActiveRooms(2)
		m.RecordNotification("push", "sent")
		m.RecordWebhookEvent("participant_joined")
		m.SetWebSocketConnections(3)
		m.SetRedisDegraded(true)
	})
	assert.Nil(t, m.Registry())
}

func TestRecordActivity(t *testing.T) {
	m := NewMetricsWithRegistry("test", prometheus.NewRegistry())

	m.RecordActivity("joined", ResultPersisted)
	m.RecordActivity("joined", ResultDeduplicated)
	m.RecordActivity("joined", ResultDeduplicated)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.activityRecordsTotal.WithLabelValues("joined", ResultPersisted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.activityRecordsTotal.WithLabelValues("joined", ResultDeduplicated)))
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics("a")
		NewMetrics("a")
	})
}

func TestSetRedisDegraded(t *testing.T) {
	m := NewMetricsWithRegistry("test", prometheus.NewRegistry())

	m.SetRedisDegraded(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.redisDegraded))
	m.SetRedisDegraded(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.redisDegraded))
}
