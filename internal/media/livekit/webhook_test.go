package livekit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	lkproto "github.com/livekit/protocol/livekit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveclass-backend/internal/domain"
	"liveclass-backend/internal/media"
)

var (
	hostInfo = &lkproto.ParticipantInfo{Identity: "teacher-1", Name: "Ms. Rivera", Metadata: `{"role":"host"}`}
	room     = &lkproto.Room{Name: "MATH101ABC"}
)

func TestTranslateWebhook(t *testing.T) {
	tests := []struct {
		name string
		ev   *lkproto.WebhookEvent
		want []domain.Event
	}{
		{
			name: "room started",
			ev:   &lkproto.WebhookEvent{Event: EventRoomStarted, Room: room},
			want: []domain.Event{domain.RoomStarted{RoomID: "MATH101ABC"}},
		},
		{
			name: "room finished",
			ev:   &lkproto.WebhookEvent{Event: EventRoomFinished, Room: room},
			want: []domain.Event{domain.RoomFinished{RoomID: "MATH101ABC"}},
		},
		{
			name: "participant joined",
			ev:   &lkproto.WebhookEvent{Event: EventParticipantJoined, Room: room, Participant: hostInfo},
			want: []domain.Event{domain.ParticipantJoined{Participant: domain.Participant{ID: "teacher-1", Name: "Ms. Rivera", Role: domain.RoleHost}}},
		},
		{
			name: "participant left",
			ev:   &lkproto.WebhookEvent{Event: EventParticipantLeft, Room: room, Participant: &lkproto.ParticipantInfo{Identity: "student-1"}},
			want: []domain.Event{domain.ParticipantLeft{Participant: domain.Participant{ID: "student-1", Role: domain.RoleAttendee}}},
		},
		{
			name: "camera published",
			ev: &lkproto.WebhookEvent{Event: EventTrackPublished, Room: room, Participant: hostInfo,
				Track: &lkproto.TrackInfo{Sid: "TR_cam", Source: lkproto.TrackSource_CAMERA, Type: lkproto.TrackType_VIDEO}},
			want: []domain.Event{domain.StreamEnabled{
				Participant: domain.Participant{ID: "teacher-1", Name: "Ms. Rivera", Role: domain.RoleHost},
				Stream:      media.RemoteTrack{TrackID: "TR_cam", TrackKind: domain.StreamVideo},
			}},
		},
		{
			name: "screen share unpublished",
			ev: &lkproto.WebhookEvent{Event: EventTrackUnpublished, Room: room, Participant: hostInfo,
				Track: &lkproto.TrackInfo{Sid: "TR_scr", Source: lkproto.TrackSource_SCREEN_SHARE}},
			want: []domain.Event{domain.StreamDisabled{
				Participant: domain.Participant{ID: "teacher-1", Name: "Ms. Rivera", Role: domain.RoleHost},
				Kind:        domain.StreamScreen,
			}},
		},
		{
			name: "unknown source falls back to type",
			ev: &lkproto.WebhookEvent{Event: EventTrackPublished, Room: room, Participant: hostInfo,
				Track: &lkproto.TrackInfo{Sid: "TR_aud", Type: lkproto.TrackType_AUDIO}},
			want: []domain.Event{domain.StreamEnabled{
				Participant: domain.Participant{ID: "teacher-1", Name: "Ms. Rivera", Role: domain.RoleHost},
				Stream:      media.RemoteTrack{TrackID: "TR_aud", TrackKind: domain.StreamAudio},
			}},
		},
		{
			name: "screen share audio ignored",
			ev: &lkproto.WebhookEvent{Event: EventTrackPublished, Room: room, Participant: hostInfo,
				Track: &lkproto.TrackInfo{Sid: "TR_sa", Source: lkproto.TrackSource_SCREEN_SHARE_AUDIO, Type: lkproto.TrackType_AUDIO}},
		},
		{
			name: "egress events ignored",
			ev:   &lkproto.WebhookEvent{Event: "egress_started", Room: room},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := TranslateWebhook(tt.ev)
			assert.Equal(t, tt.ev.Event, n.Name)
			assert.Equal(t, "MATH101ABC", n.RoomID)
			assert.Equal(t, tt.want, n.Events)
		})
	}
}

func TestTranslateWebhook_Metadata(t *testing.T) {
	n := TranslateWebhook(&lkproto.WebhookEvent{
		Id:        "EV_1",
		Event:     EventRoomStarted,
		Room:      room,
		CreatedAt: 1725267600,
	})

	assert.Equal(t, "EV_1", n.ID)
	assert.Equal(t, time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC), n.At)
}

func TestWebhookReceiver_RejectsUnsigned(t *testing.T) {
	receiver := NewWebhookReceiver(testLiveKit)
	req := httptest.NewRequest(http.MethodPost, "/v1/livekit/webhook", strings.NewReader(`{"event":"room_started"}`))
	req.Header.Set("Content-Type", "application/webhook+json")

	_, err := receiver.Receive(req)

	require.Error(t, err)
}
