// Package signal types the payloads exchanged over the media data channel.
package signal

import (
	"strings"

	jsoniter "github.com/json-iterator/go"

	"liveclass-backend/pkg/constants"
	"liveclass-backend/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Wire type discriminators
const (
	TypeChat          = "CHAT"
	TypeWebcamLoading = "webcam-enabled"
	TypeShareLoading  = "share-enabled"
	TypeRaiseHand     = "RAISE_HAND"
)

// Payload is one of Chat, WebcamLoading, ShareLoading or RaiseHand
type Payload interface {
	Type() string
}

// Chat is a transcript message
type Chat struct {
	Body string
}

// WebcamLoading tells peers the sender's camera is starting
type WebcamLoading struct{}

// ShareLoading tells peers the sender's screen share is starting
type ShareLoading struct{}

// RaiseHand asks the host for attention
type RaiseHand struct{}

func (Chat) Type() string          { return TypeChat }
func (WebcamLoading) Type() string { return TypeWebcamLoading }
func (ShareLoading) Type() string  { return TypeShareLoading }
func (RaiseHand) Type() string     { return TypeRaiseHand }

type wireMessage struct {
	Type    *string `json:"type,omitempty"`
	Message string  `json:"message"`
}

// Encode renders p as {"type": ..., "message": ...}
func Encode(p Payload) ([]byte, error) {
	kind := p.Type()
	msg := wireMessage{Type: &kind}

	switch v := p.(type) {
	case Chat:
		if err := validateBody(v.Body); err != nil {
			return nil, err
		}
		msg.Message = v.Body
	case WebcamLoading, ShareLoading, RaiseHand:
	default:
		return nil, errors.ProtocolError("unsupported payload", nil)
	}

	return json.Marshal(msg)
}

// Decode parses a data-channel payload. A missing type is a chat message from
// an older client; any other unrecognized type is a protocol error.
func Decode(data []byte) (Payload, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.ProtocolError("malformed payload", err)
	}

	kind := TypeChat
	if msg.Type != nil {
		kind = *msg.Type
	}

	switch kind {
	case TypeChat:
		if err := validateBody(msg.Message); err != nil {
			return nil, err
		}
		return Chat{Body: msg.Message}, nil
	case TypeWebcamLoading:
		return WebcamLoading{}, nil
	case TypeShareLoading:
		return ShareLoading{}, nil
	case TypeRaiseHand:
		return RaiseHand{}, nil
	default:
		return nil, errors.ProtocolError("unknown payload type", nil).
			WithDetails(map[string]string{"type": kind})
	}
}

func validateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return errors.ProtocolError("empty chat message", nil)
	}
	if len(body) > constants.MaxChatMessageLength {
		return errors.ProtocolError("chat message too long", nil)
	}
	return nil
}
