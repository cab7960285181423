package webhook

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"liveclass-backend/internal/media/livekit"
	"liveclass-backend/pkg/logger"
	"liveclass-backend/pkg/metrics"
	"liveclass-backend/pkg/response"
)

// Receiver verifies and decodes a webhook request
type Receiver interface {
	Receive(r *http.Request) (*livekit.Notification, error)
}

// Sink consumes verified notifications
type Sink interface {
	Handle(n *livekit.Notification) bool
}

// Handler receives media server webhooks
type Handler struct {
	receiver Receiver
	sink     Sink
	metrics  *metrics.Metrics
}

// NewHandler creates a new webhook handler
func NewHandler(receiver Receiver, sink Sink, m *metrics.Metrics) *Handler {
	return &Handler{
		receiver: receiver,
		sink:     sink,
		metrics:  m,
	}
}

// Receive applies one webhook. Redeliveries are acknowledged so the media
// server stops retrying.
// POST /v1/livekit/webhook
func (h *Handler) Receive(c *gin.Context) {
	n, err := h.receiver.Receive(c.Request)
	if err != nil {
		logger.Warn("Rejected webhook",
			zap.String("client_ip", c.ClientIP()),
			zap.Error(err))
		response.Unauthorized(c, "Invalid webhook signature")
		return
	}

	h.metrics.RecordWebhookEvent(n.Name)
	applied := h.sink.Handle(n)

	logger.Debug("Webhook received",
		zap.String("webhook_id", n.ID),
		zap.String("event", n.Name),
		zap.String("room_id", n.RoomID),
		zap.Bool("applied", applied))

	response.Success(c, http.StatusOK, gin.H{"applied": applied})
}
