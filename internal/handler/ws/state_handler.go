package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"liveclass-backend/internal/domain"
	"liveclass-backend/internal/middleware"
	"liveclass-backend/internal/service/monitor"
	"liveclass-backend/pkg/constants"
	"liveclass-backend/pkg/logger"
	"liveclass-backend/pkg/metrics"
	"liveclass-backend/pkg/response"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultMaxConnections bounds concurrent state feeds per instance
const DefaultMaxConnections = 1000

// Feed streams room views
type Feed interface {
	Subscribe(roomID string) (<-chan monitor.RoomView, func())
}

// Meetings resolves open meetings
type Meetings interface {
	GetMeeting(ctx context.Context, roomID string) (*domain.MeetingSession, error)
}

// StateHub manages the websocket clients following room state
type StateHub struct {
	feed     Feed
	meetings Meetings
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	clients map[*StateClient]struct{}

	register   chan *StateClient
	unregister chan *StateClient
	done       chan struct{}
	closeOnce  sync.Once

	maxConnections int
	semaphore      chan struct{}
}

// StateClient is one websocket following one room
type StateClient struct {
	hub    *StateHub
	conn   *websocket.Conn
	views  <-chan monitor.RoomView
	cancel func()
	userID string
	roomID string
}

// NewStateHub creates a hub and starts its loop. Handshakes must carry an
// Origin from allowedOrigins.
func NewStateHub(feed Feed, meetings Meetings, allowedOrigins []string, maxConnections int, m *metrics.Metrics) *StateHub {
	if maxConnections <= 0 {
		maxConnections = DefaultMaxConnections
	}

	hub := &StateHub{
		feed:           feed,
		meetings:       meetings,
		metrics:        m,
		clients:        make(map[*StateClient]struct{}),
		register:       make(chan *StateClient),
		unregister:     make(chan *StateClient),
		done:           make(chan struct{}),
		maxConnections: maxConnections,
		semaphore:      make(chan struct{}, maxConnections),
	}
	hub.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin != "" && lo.Contains(allowedOrigins, origin)
		},
	}

	go hub.run()

	return hub
}

// run owns the client set
func (h *StateHub) run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.metrics.SetWebSocketConnections(len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.cancel()
				<-h.semaphore
				h.metrics.SetWebSocketConnections(len(h.clients))
			}

		case <-h.done:
			for client := range h.clients {
				client.cancel()
				delete(h.clients, client)
			}
			h.metrics.SetWebSocketConnections(0)
			return
		}
	}
}

// ServeWS upgrades the request and streams the room's views
// GET /v1/meetings/:roomId/ws
func (h *StateHub) ServeWS(c *gin.Context) {
	roomID := c.Param("roomId")
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if _, err := h.meetings.GetMeeting(c.Request.Context(), roomID); err != nil {
		response.FromError(c, err)
		return
	}

	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		response.Error(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Server at capacity, please try again later")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		<-h.semaphore
		logger.Warn("WebSocket upgrade failed",
			zap.String("room_id", roomID),
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}

	views, cancel := h.feed.Subscribe(roomID)
	client := &StateClient{
		hub:    h,
		conn:   conn,
		views:  views,
		cancel: cancel,
		userID: userID,
		roomID: roomID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		cancel()
		<-h.semaphore
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Close disconnects every client
func (h *StateHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// readPump only watches for the peer going away; clients never send state
func (c *StateClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("room_id", c.roomID),
					zap.String("user_id", c.userID),
					zap.Error(err))
			}
			return
		}
	}
}

// writePump forwards views until the feed closes
func (c *StateClient) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case view, ok := <-c.views:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room closed"))
				return
			}

			data, err := json.Marshal(view)
			if err != nil {
				logger.Error("Failed to encode room view",
					zap.String("room_id", c.roomID),
					zap.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
