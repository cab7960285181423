package webhook

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"liveclass-backend/internal/domain"
	"liveclass-backend/internal/media/livekit"
	"liveclass-backend/pkg/metrics"
)

// MockReceiver is a mock implementation of Receiver
type MockReceiver struct {
	mock.Mock
}

func (m *MockReceiver) Receive(r *http.Request) (*livekit.Notification, error) {
	args := m.Called(r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*livekit.Notification), args.Error(1)
}

// MockSink is a mock implementation of Sink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Handle(n *livekit.Notification) bool {
	return m.Called(n).Bool(0)
}

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/v1/livekit/webhook", h.Receive)
	return router
}

func TestReceive(t *testing.T) {
	n := &livekit.Notification{
		ID:     "EV_1",
		Name:   livekit.EventParticipantJoined,
		RoomID: "MATH101ABC",
		Events: []domain.Event{domain.ParticipantJoined{Participant: domain.Participant{ID: "student-1"}}},
	}
	receiver, sink := new(MockReceiver), new(MockSink)
	receiver.On("Receive", mock.Anything).Return(n, nil)
	sink.On("Handle", n).Return(true)
	m := metrics.NewMetricsWithRegistry("test", prometheus.NewRegistry())

	w := httptest.NewRecorder()
	newRouter(NewHandler(receiver, sink, m)).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/livekit/webhook", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"applied":true`)
	sink.AssertExpectations(t)
	assert.Equal(t, 1, testutil.CollectAndCount(m.Registry(), "livekit_webhook_events_total"))
}

func TestReceive_RedeliveryAcknowledged(t *testing.T) {
	n := &livekit.Notification{ID: "EV_1", Name: livekit.EventRoomStarted, RoomID: "MATH101ABC"}
	receiver, sink := new(MockReceiver), new(MockSink)
	receiver.On("Receive", mock.Anything).Return(n, nil)
	sink.On("Handle", n).Return(false)

	w := httptest.NewRecorder()
	newRouter(NewHandler(receiver, sink, nil)).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/livekit/webhook", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"applied":false`)
}

func TestReceive_BadSignature(t *testing.T) {
	receiver, sink := new(MockReceiver), new(MockSink)
	receiver.On("Receive", mock.Anything).Return(nil, assert.AnError)

	w := httptest.NewRecorder()
	newRouter(NewHandler(receiver, sink, nil)).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/livekit/webhook", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	sink.AssertNotCalled(t, "Handle", mock.Anything)
}
