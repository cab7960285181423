// Package media describes the real-time media SDK the classroom controller drives.
package media

import (
	"context"

	"liveclass-backend/internal/domain"
)

// Client is a connected media SDK session. Imperative calls only request a
// change; the outcome arrives later on Events.
type Client interface {
	Join(ctx context.Context) error
	Leave(ctx context.Context) error

	EnableWebcam(ctx context.Context) error
	DisableWebcam(ctx context.Context) error
	UnmuteMic(ctx context.Context) error
	MuteMic(ctx context.Context) error
	EnableScreenShare(ctx context.Context) error
	DisableScreenShare(ctx context.Context) error

	SendChatMessage(ctx context.Context, payload []byte) error

	// Events is closed by the SDK after the final MeetingLeft
	Events() <-chan domain.Event
}

// Connector creates a Client bound to one room
type Connector interface {
	Connect(ctx context.Context, roomID string, self domain.Participant) (Client, error)
}

// ErrorCode is a numeric SDK error code
type ErrorCode int

// Device error codes reported through domain.SDKError
const (
	ErrCameraPermissionDenied ErrorCode = 3011
	ErrMicPermissionDenied    ErrorCode = 3012
	ErrCameraInUse            ErrorCode = 3013
	ErrMicInUse               ErrorCode = 3014
	ErrCameraNotFound         ErrorCode = 3015
	ErrMicNotFound            ErrorCode = 3016
	ErrScreenShareDenied      ErrorCode = 3017
)

// DeviceCapability maps a device error code to the capability it blocks.
// ok is false for codes that are not device errors.
func DeviceCapability(code int) (domain.Capability, bool) {
	switch ErrorCode(code) {
	case ErrCameraPermissionDenied, ErrCameraInUse, ErrCameraNotFound:
		return domain.CapabilityCamera, true
	case ErrMicPermissionDenied, ErrMicInUse, ErrMicNotFound:
		return domain.CapabilityMicrophone, true
	case ErrScreenShareDenied:
		return domain.CapabilityScreenShare, true
	default:
		return "", false
	}
}

// DeviceMessage is the user-facing text shown when c fails to start
func DeviceMessage(c domain.Capability) string {
	switch c {
	case domain.CapabilityCamera:
		return "cannot start camera"
	case domain.CapabilityMicrophone:
		return "cannot start microphone"
	default:
		return "cannot share screen"
	}
}

// RemoteTrack is a handle known only by id, such as a track announced by a
// server webhook. Releasing it frees nothing locally.
type RemoteTrack struct {
	TrackID   string
	TrackKind domain.StreamKind
}

func (t RemoteTrack) ID() string               { return t.TrackID }
func (t RemoteTrack) Kind() domain.StreamKind { return t.TrackKind }
func (t RemoteTrack) Release()                 {}
