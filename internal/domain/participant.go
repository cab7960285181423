package domain

// Role of a participant inside a classroom room
type Role string

const (
	RoleHost     Role = "host"
	RoleAttendee Role = "attendee"
)

// Participant is a member of a live classroom
type Participant struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         Role   `json:"role"`
	ProfileImage string `json:"profile_image,omitempty"`
	CameraOn     bool   `json:"camera_on"`
	MicOn        bool   `json:"mic_on"`
	Local        bool   `json:"local,omitempty"` // the participant running this controller
}

func (p Participant) IsHost() bool {
	return p.Role == RoleHost
}

// StreamKind identifies the media carried by a stream
type StreamKind string

const (
	StreamVideo  StreamKind = "video"
	StreamAudio  StreamKind = "audio"
	StreamScreen StreamKind = "screen-share"
)

// StreamHandle is a live media stream owned by the stream router.
// Release is called exactly once, when the router stops holding the handle.
type StreamHandle interface {
	ID() string
	Kind() StreamKind
	Release()
}

// Capability is a locally togglable media source
type Capability string

const (
	CapabilityCamera      Capability = "camera"
	CapabilityMicrophone  Capability = "microphone"
	CapabilityScreenShare Capability = "screen-share"
)

// Capabilities lists every capability in a stable order
var Capabilities = []Capability{CapabilityCamera, CapabilityMicrophone, CapabilityScreenShare}

// StreamKind returns the kind of stream that confirms c
func (c Capability) StreamKind() StreamKind {
	switch c {
	case CapabilityCamera:
		return StreamVideo
	case CapabilityMicrophone:
		return StreamAudio
	default:
		return StreamScreen
	}
}

// CapabilityFor maps a stream kind back to the local capability producing it
func CapabilityFor(kind StreamKind) Capability {
	switch kind {
	case StreamVideo:
		return CapabilityCamera
	case StreamAudio:
		return CapabilityMicrophone
	default:
		return CapabilityScreenShare
	}
}
