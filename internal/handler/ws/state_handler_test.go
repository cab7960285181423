package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"liveclass-backend/internal/domain"
	"liveclass-backend/internal/middleware"
	"liveclass-backend/internal/service/monitor"
	apperrors "liveclass-backend/pkg/errors"
)

const origin = "https://classroom.example.com"

// MockMeetings is a mock implementation of Meetings
type MockMeetings struct {
	mock.Mock
}

func (m *MockMeetings) GetMeeting(ctx context.Context, roomID string) (*domain.MeetingSession, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MeetingSession), args.Error(1)
}

// chanFeed hands out one channel per subscription
type chanFeed struct {
	views     chan monitor.RoomView
	cancelled chan struct{}
}

func newChanFeed() *chanFeed {
	return &chanFeed{
		views:     make(chan monitor.RoomView, 4),
		cancelled: make(chan struct{}, 4),
	}
}

func (f *chanFeed) Subscribe(string) (<-chan monitor.RoomView, func()) {
	return f.views, func() { f.cancelled <- struct{}{} }
}

func setupServer(t *testing.T, hub *StateHub, userID string) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/v1/meetings/:roomId/ws", func(c *gin.Context) {
		if userID != "" {
			c.Set(middleware.ContextUserID, userID)
		}
		c.Next()
	}, hub.ServeWS)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/meetings/MATH101ABC/ws"
}

func dial(url, from string) (*websocket.Conn, *http.Response, error) {
	header := http.Header{}
	if from != "" {
		header.Set("Origin", from)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func TestServeWS_StreamsViews(t *testing.T) {
	meetings := new(MockMeetings)
	meetings.On("GetMeeting", mock.Anything, "MATH101ABC").Return(&domain.MeetingSession{RoomID: "MATH101ABC"}, nil)
	feed := newChanFeed()
	hub := NewStateHub(feed, meetings, []string{origin}, 2, nil)
	defer hub.Close()

	conn, _, err := dial(setupServer(t, hub, "student-1"), origin)
	require.NoError(t, err)
	defer conn.Close()

	feed.views <- monitor.RoomView{RoomID: "MATH101ABC", Participants: 3}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var view monitor.RoomView
	require.NoError(t, conn.ReadJSON(&view))
	assert.Equal(t, "MATH101ABC", view.RoomID)
	assert.Equal(t, 3, view.Participants)

	close(feed.views)
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestServeWS_ClientLeaveCancelsSubscription(t *testing.T) {
	meetings := new(MockMeetings)
	meetings.On("GetMeeting", mock.Anything, "MATH101ABC").Return(&domain.MeetingSession{RoomID: "MATH101ABC"}, nil)
	feed := newChanFeed()
	hub := NewStateHub(feed, meetings, []string{origin}, 2, nil)
	defer hub.Close()

	conn, _, err := dial(setupServer(t, hub, "student-1"), origin)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	select {
	case <-feed.cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not cancelled")
	}
}

func TestServeWS_RejectsForeignOrigin(t *testing.T) {
	meetings := new(MockMeetings)
	meetings.On("GetMeeting", mock.Anything, "MATH101ABC").Return(&domain.MeetingSession{RoomID: "MATH101ABC"}, nil)
	hub := NewStateHub(newChanFeed(), meetings, []string{origin}, 2, nil)
	defer hub.Close()
	url := setupServer(t, hub, "student-1")

	_, resp, err := dial(url, "https://evil.example.com")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = dial(url, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServeWS_StaleRoom(t *testing.T) {
	meetings := new(MockMeetings)
	meetings.On("GetMeeting", mock.Anything, "MATH101ABC").Return(nil, apperrors.StaleRoomError("MATH101ABC"))
	hub := NewStateHub(newChanFeed(), meetings, []string{origin}, 2, nil)
	defer hub.Close()

	_, resp, err := dial(setupServer(t, hub, "student-1"), origin)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeWS_RequiresUser(t *testing.T) {
	hub := NewStateHub(newChanFeed(), new(MockMeetings), []string{origin}, 2, nil)
	defer hub.Close()

	_, resp, err := dial(setupServer(t, hub, ""), origin)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWS_AtCapacity(t *testing.T) {
	meetings := new(MockMeetings)
	meetings.On("GetMeeting", mock.Anything, "MATH101ABC").Return(&domain.MeetingSession{RoomID: "MATH101ABC"}, nil)
	hub := NewStateHub(newChanFeed(), meetings, []string{origin}, 1, nil)
	defer hub.Close()
	url := setupServer(t, hub, "student-1")

	first, _, err := dial(url, origin)
	require.NoError(t, err)
	defer first.Close()

	_, resp, err := dial(url, origin)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
