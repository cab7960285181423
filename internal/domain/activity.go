package domain

import (
	"time"

	"github.com/google/uuid"
)

// Action is a meeting lifecycle event recorded in the activity log
type Action string

const (
	ActionJoined  Action = "joined"
	ActionLeft    Action = "left"
	ActionStarted Action = "started"
	ActionEnded   Action = "ended"
)

// ActivityLogEntry is one persisted lifecycle record
type ActivityLogEntry struct {
	ID        uuid.UUID `json:"id"`
	ActorID   string    `json:"actor_id"`
	MeetingID string    `json:"meeting_id"`
	Action    Action    `json:"action"`
	Role      Role      `json:"role,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatMessage is a transcript line; it is never persisted
type ChatMessage struct {
	SenderID      string    `json:"sender_id"`
	SenderName    string    `json:"sender_name"`
	Body          string    `json:"body"`
	FormattedTime string    `json:"formatted_time"`
	Profile       string    `json:"profile,omitempty"`
	SentAt        time.Time `json:"sent_at"`
}
