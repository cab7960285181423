package domain

import (
	"time"
)

// SessionState is the lifecycle state of one local classroom session
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionCreating
	SessionValidating
	SessionActive
	SessionEnded
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionCreating:
		return "creating"
	case SessionValidating:
		return "validating"
	case SessionActive:
		return "active"
	case SessionEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON snapshots
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MeetingSession represents a live class held in one media room
type MeetingSession struct {
	ID            string     `json:"id"`
	RoomID        string     `json:"room_id"`
	HostID        string     `json:"host_id"`
	ClassID       string     `json:"class_id,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	HighWaterMark int        `json:"high_water_mark"` // most participants seen at once
}

// Observe raises the high-water mark to count if it is larger
func (m *MeetingSession) Observe(count int) {
	if count > m.HighWaterMark {
		m.HighWaterMark = count
	}
}

// Ended reports whether the session has an end time
func (m *MeetingSession) Ended() bool {
	return m.EndedAt != nil
}
