package livekit

import (
	"net/http"
	"time"

	"github.com/livekit/protocol/auth"
	lkproto "github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/webhook"

	"liveclass-backend/internal/domain"
	"liveclass-backend/internal/media"
	"liveclass-backend/pkg/config"
)

// Webhook event names sent by the server
const (
	EventRoomStarted       = "room_started"
	EventRoomFinished      = "room_finished"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventTrackPublished    = "track_published"
	EventTrackUnpublished  = "track_unpublished"
)

// Notification is a verified webhook translated into domain events
type Notification struct {
	ID     string
	Name   string
	RoomID string
	At     time.Time
	Events []domain.Event
}

// WebhookReceiver verifies webhook signatures against the API key pair
type WebhookReceiver struct {
	keys auth.KeyProvider
}

func NewWebhookReceiver(cfg config.LiveKitConfig) *WebhookReceiver {
	return &WebhookReceiver{keys: auth.NewSimpleKeyProvider(cfg.APIKey, cfg.APISecret)}
}

// Receive verifies r and translates its event
func (w *WebhookReceiver) Receive(r *http.Request) (*Notification, error) {
	ev, err := webhook.ReceiveWebhookEvent(r, w.keys)
	if err != nil {
		return nil, err
	}
	return TranslateWebhook(ev), nil
}

// TranslateWebhook maps a webhook event to domain events. Event kinds the
// controller does not track produce an empty Events slice.
func TranslateWebhook(ev *lkproto.WebhookEvent) *Notification {
	n := &Notification{
		ID:     ev.GetId(),
		Name:   ev.GetEvent(),
		RoomID: ev.GetRoom().GetName(),
	}
	if ts := ev.GetCreatedAt(); ts > 0 {
		n.At = time.Unix(ts, 0).UTC()
	}

	switch ev.GetEvent() {
	case EventRoomStarted:
		n.Events = []domain.Event{domain.RoomStarted{RoomID: n.RoomID}}

	case EventRoomFinished:
		n.Events = []domain.Event{domain.RoomFinished{RoomID: n.RoomID}}

	case EventParticipantJoined:
		n.Events = []domain.Event{domain.ParticipantJoined{Participant: participantFromInfo(ev.GetParticipant())}}

	case EventParticipantLeft:
		n.Events = []domain.Event{domain.ParticipantLeft{Participant: participantFromInfo(ev.GetParticipant())}}

	case EventTrackPublished:
		if kind, ok := streamKind(ev.GetTrack()); ok {
			n.Events = []domain.Event{domain.StreamEnabled{
				Participant: participantFromInfo(ev.GetParticipant()),
				Stream:      media.RemoteTrack{TrackID: ev.GetTrack().GetSid(), TrackKind: kind},
			}}
		}

	case EventTrackUnpublished:
		if kind, ok := streamKind(ev.GetTrack()); ok {
			n.Events = []domain.Event{domain.StreamDisabled{
				Participant: participantFromInfo(ev.GetParticipant()),
				Kind:        kind,
			}}
		}
	}

	return n
}

// streamKind classifies a track by source, falling back to its media type.
// Screen-share audio rides along with the share and is not tracked.
func streamKind(track *lkproto.TrackInfo) (domain.StreamKind, bool) {
	switch track.GetSource() {
	case lkproto.TrackSource_CAMERA:
		return domain.StreamVideo, true
	case lkproto.TrackSource_MICROPHONE:
		return domain.StreamAudio, true
	case lkproto.TrackSource_SCREEN_SHARE:
		return domain.StreamScreen, true
	case lkproto.TrackSource_SCREEN_SHARE_AUDIO:
		return "", false
	}

	switch track.GetType() {
	case lkproto.TrackType_VIDEO:
		return domain.StreamVideo, true
	case lkproto.TrackType_AUDIO:
		return domain.StreamAudio, true
	default:
		return "", false
	}
}
