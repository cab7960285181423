package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Activity record results
const (
	ResultPersisted    = "persisted"
	ResultDeduplicated = "deduplicated"
	ResultFailed       = "failed"
)

// Metrics holds all Prometheus metrics for the classroom service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Session Metrics
	activityRecordsTotal  *prometheus.CounterVec
	speakerRotationsTotal *prometheus.CounterVec
	capabilityToggles     *prometheus.CounterVec
	deviceErrorsTotal     *prometheus.CounterVec
	protocolErrorsTotal   *prometheus.CounterVec
	roomsActive           prometheus.Gauge

	// Delivery Metrics
	notificationsTotal *prometheus.CounterVec
	webhookEventsTotal *prometheus.CounterVec

	// WebSocket Metrics
	websocketConnections prometheus.Gauge

	// Redis Metrics
	redisDegraded prometheus.Gauge
}

// NewMetrics creates all metrics on a fresh registry
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetricsWithRegistry(serviceName, reg)
}

// NewMetricsWithRegistry creates all metrics and registers them on reg
func NewMetricsWithRegistry(serviceName string, reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),

		activityRecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "classroom_activity_records_total",
				Help:        "Activity log requests by action and result",
				ConstLabels: labels,
			},
			[]string{"action", "result"},
		),
		speakerRotationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "classroom_speaker_rotations_total",
				Help:        "Speaker changes that moved a participant into the active pool",
				ConstLabels: labels,
			},
			[]string{"mode"},
		),
		capabilityToggles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "classroom_capability_toggles_total",
				Help:        "Local capability toggle requests by outcome",
				ConstLabels: labels,
			},
			[]string{"capability", "outcome"},
		),
		deviceErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "classroom_device_errors_total",
				Help:        "Device errors reported by the media SDK",
				ConstLabels: labels,
			},
			[]string{"capability"},
		),
		protocolErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "classroom_protocol_errors_total",
				Help:        "Dropped data-channel payloads",
				ConstLabels: labels,
			},
			[]string{"reason"},
		),
		roomsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "classroom_rooms_active",
				Help:        "Rooms currently tracked by the monitor",
				ConstLabels: labels,
			},
		),

		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "classroom_notifications_total",
				Help:        "Notifications sent by channel and status",
				ConstLabels: labels,
			},
			[]string{"channel", "status"},
		),
		webhookEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "livekit_webhook_events_total",
				Help:        "Verified LiveKit webhook events by event name",
				ConstLabels: labels,
			},
			[]string{"event"},
		),

		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active room-state WebSocket connections",
				ConstLabels: labels,
			},
		),

		redisDegraded: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "redis_degraded_mode",
				Help:        "Indicates if Redis is in degraded mode (1 = degraded, 0 = healthy)",
				ConstLabels: labels,
			},
		),
	}
}

// Registry returns the registry the metrics were registered on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// HTTP Metrics Methods

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the number of in-flight HTTP requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the number of in-flight HTTP requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.httpRequestsInFlight.Dec()
}

// Session Metrics Methods

// RecordActivity counts one activity log request
func (m *Metrics) RecordActivity(action, result string) {
	if m == nil {
		return
	}
	m.activityRecordsTotal.WithLabelValues(action, result).Inc()
}

// RecordSpeakerRotation counts a promotion; mode is "direct" or "evict"
func (m *Metrics) RecordSpeakerRotation(mode string) {
	if m == nil {
		return
	}
	m.speakerRotationsTotal.WithLabelValues(mode).Inc()
}

// RecordCapabilityToggle counts a toggle request and how it ended
func (m *Metrics) RecordCapabilityToggle(capability, outcome string) {
	if m == nil {
		return
	}
	m.capabilityToggles.WithLabelValues(capability, outcome).Inc()
}

func (m *Metrics) RecordDeviceError(capability string) {
	if m == nil {
		return
	}
	m.deviceErrorsTotal.WithLabelValues(capability).Inc()
}

func (m *Metrics) RecordProtocolError(reason string) {
	if m == nil {
		return
	}
	m.protocolErrorsTotal.WithLabelValues(reason).Inc()
}

// SetActiveRooms sets the number of rooms the monitor is tracking
func (m *Metrics) SetActiveRooms(count int) {
	if m == nil {
		return
	}
	m.roomsActive.Set(float64(count))
}

// Delivery Metrics Methods

// RecordNotification counts a notification attempt on a channel (push, pubsub)
func (m *Metrics) RecordNotification(channel, status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(channel, status).Inc()
}

func (m *Metrics) RecordWebhookEvent(event string) {
	if m == nil {
		return
	}
	m.webhookEventsTotal.WithLabelValues(event).Inc()
}

// WebSocket Metrics Methods

// SetWebSocketConnections sets the number of active WebSocket connections
func (m *Metrics) SetWebSocketConnections(count int) {
	if m == nil {
		return
	}
	m.websocketConnections.Set(float64(count))
}

// SetRedisDegraded flags whether Redis is running in degraded mode
func (m *Metrics) SetRedisDegraded(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.redisDegraded.Set(1)
		return
	}
	m.redisDegraded.Set(0)
}
