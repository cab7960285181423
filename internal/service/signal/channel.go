package signal

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"liveclass-backend/internal/domain"
	"liveclass-backend/pkg/constants"
	"liveclass-backend/pkg/errors"
	"liveclass-backend/pkg/logger"
	"liveclass-backend/pkg/metrics"
)

// DefaultTimeFormat renders chat send times as hour:minute
const DefaultTimeFormat = "15:04"

// Sender publishes raw payloads on the data channel
type Sender interface {
	SendChatMessage(ctx context.Context, payload []byte) error
}

// LoadingMarker flags a participant's slot while a stream is starting
type LoadingMarker interface {
	SetLoading(participantID string, loading bool) bool
}

// RaisedHand is a pending raise-hand signal
type RaisedHand struct {
	ParticipantID string    `json:"participant_id"`
	Name          string    `json:"name"`
	At            time.Time `json:"at"`
}

// Channel dispatches inbound payloads and sends outbound ones.
// The transcript lives only as long as the Channel.
type Channel struct {
	mu          sync.Mutex
	sender      Sender
	timeFormat  string
	transcript  []domain.ChatMessage
	raisedHands []RaisedHand
	metrics     *metrics.Metrics
}

// NewChannel creates a channel; sender may be bound later with SetSender
func NewChannel(sender Sender, timeFormat string, m *metrics.Metrics) *Channel {
	if timeFormat == "" {
		timeFormat = DefaultTimeFormat
	}
	return &Channel{
		sender:     sender,
		timeFormat: timeFormat,
		metrics:    m,
	}
}

func (c *Channel) SetSender(sender Sender) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sender = sender
}

// Receive decodes ev and applies it. Chat goes to the transcript, loading
// signals mark the sender's slot and raise-hand is queued for the host.
// Bad payloads are dropped and returned as protocol errors.
func (c *Channel) Receive(ev domain.ChatReceived, slots LoadingMarker) (Payload, error) {
	payload, err := Decode(ev.Payload)
	if err != nil {
		appErr := errors.GetAppError(err)
		c.metrics.RecordProtocolError(appErr.Message)
		logger.Warn("Dropped data-channel payload",
			zap.String("sender_id", ev.SenderID),
			zap.Error(err))
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch p := payload.(type) {
	case Chat:
		c.appendLocked(domain.ChatMessage{
			SenderID:      ev.SenderID,
			SenderName:    ev.SenderName,
			Body:          p.Body,
			FormattedTime: ev.At.Format(c.timeFormat),
			Profile:       ev.Profile,
			SentAt:        ev.At,
		})
	case WebcamLoading, ShareLoading:
		if slots != nil {
			slots.SetLoading(ev.SenderID, true)
		}
	case RaiseHand:
		if !lo.ContainsBy(c.raisedHands, func(h RaisedHand) bool { return h.ParticipantID == ev.SenderID }) {
			c.raisedHands = append(c.raisedHands, RaisedHand{
				ParticipantID: ev.SenderID,
				Name:          ev.SenderName,
				At:            ev.At,
			})
		}
	}

	return payload, nil
}

func (c *Channel) appendLocked(msg domain.ChatMessage) {
	c.transcript = append(c.transcript, msg)
	if over := len(c.transcript) - constants.MaxTranscriptLength; over > 0 {
		c.transcript = c.transcript[over:]
	}
}

// SendChat sends body to every participant
func (c *Channel) SendChat(ctx context.Context, body string) error {
	return c.send(ctx, Chat{Body: body})
}

func (c *Channel) SignalWebcamLoading(ctx context.Context) error {
	return c.send(ctx, WebcamLoading{})
}

func (c *Channel) SignalShareLoading(ctx context.Context) error {
	return c.send(ctx, ShareLoading{})
}

func (c *Channel) RaiseHand(ctx context.Context) error {
	return c.send(ctx, RaiseHand{})
}

func (c *Channel) send(ctx context.Context, p Payload) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}

	c.mu.Lock()
	sender := c.sender
	c.mu.Unlock()
	if sender == nil {
		return errors.InvalidStateError("media client is not connected")
	}

	if err := sender.SendChatMessage(ctx, data); err != nil {
		return errors.NetworkError("Could not send message", err)
	}
	return nil
}

// LowerHand removes a raised hand, for example when the participant leaves
func (c *Channel) LowerHand(participantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raisedHands = lo.Reject(c.raisedHands, func(h RaisedHand, _ int) bool {
		return h.ParticipantID == participantID
	})
}

// Transcript returns a copy of the chat transcript
func (c *Channel) Transcript() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ChatMessage(nil), c.transcript...)
}

// RaisedHands returns a copy of the pending raise-hand queue
func (c *Channel) RaisedHands() []RaisedHand {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]RaisedHand(nil), c.raisedHands...)
}

// Reset clears transcript, raised hands and the sender
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sender = nil
	c.transcript = nil
	c.raisedHands = nil
}
