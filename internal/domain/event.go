package domain

import "time"

// Event is a media SDK callback turned into a value.
// The set of implementations below is closed.
type Event interface {
	EventName() string
}

// MeetingJoined confirms the local participant is in the room
type MeetingJoined struct{}

// MeetingLeft reports the local participant has left the room
type MeetingLeft struct {
	Reason string
}

type ParticipantJoined struct {
	Participant Participant
}

type ParticipantLeft struct {
	Participant Participant
}

// StreamEnabled hands ownership of Stream to the receiver
type StreamEnabled struct {
	Participant Participant
	Stream      StreamHandle
}

type StreamDisabled struct {
	Participant Participant
	Kind        StreamKind
}

type SpeakerChanged struct {
	ParticipantID string
}

// ChatReceived carries a raw data-channel payload
type ChatReceived struct {
	SenderID   string
	SenderName string
	Profile    string
	Payload    []byte
	At         time.Time
}

// SDKError is an error callback; Code is a media.ErrorCode value
type SDKError struct {
	Code    int
	Message string
}

type RoomStarted struct {
	RoomID string
}

type RoomFinished struct {
	RoomID string
}

func (MeetingJoined) EventName() string     { return "meeting-joined" }
func (MeetingLeft) EventName() string       { return "meeting-left" }
func (ParticipantJoined) EventName() string { return "participant-joined" }
func (ParticipantLeft) EventName() string   { return "participant-left" }
func (StreamEnabled) EventName() string     { return "stream-enabled" }
func (StreamDisabled) EventName() string    { return "stream-disabled" }
func (SpeakerChanged) EventName() string    { return "speaker-changed" }
func (ChatReceived) EventName() string      { return "chat-message" }
func (SDKError) EventName() string          { return "error" }
func (RoomStarted) EventName() string       { return "room-started" }
func (RoomFinished) EventName() string      { return "room-finished" }
